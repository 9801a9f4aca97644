package models

// Condition is the closed set of equipment condition values.
type Condition string

const (
	ConditionNew     Condition = "New"
	ConditionGood    Condition = "Good"
	ConditionFair    Condition = "Fair"
	ConditionPoor    Condition = "Poor"
	ConditionDamaged Condition = "Damaged"
	ConditionRetired Condition = "Retired"
)

// Valid reports whether c is a known condition value.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionGood, ConditionFair, ConditionPoor, ConditionDamaged, ConditionRetired:
		return true
	}
	return false
}

// TransactionType is the closed set of ledger entry types.
type TransactionType string

const (
	TransactionCheckout TransactionType = "checkout"
	TransactionCheckin  TransactionType = "checkin"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionCheckout || t == TransactionCheckin
}

// AvailabilityStatus is the derived two-state lifecycle of an asset or bundle.
type AvailabilityStatus string

const (
	StatusAvailable  AvailabilityStatus = "available"
	StatusCheckedOut AvailabilityStatus = "checked_out"
)
