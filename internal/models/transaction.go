package models

import "time"

// Transaction is a ledger entry for an equipment item. Rows are append-only
// except that a checkin stamps returned_date on the original checkout row.
type Transaction struct {
	ID              int64           `json:"id"`
	EquipmentID     int64           `json:"equipment_id"`
	EmployeeID      int64           `json:"employee_id"`
	TransactionType TransactionType `json:"transaction_type"`
	Location        *string         `json:"location,omitempty"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	ConditionOut    *Condition      `json:"condition_out,omitempty"`
	ConditionIn     *Condition      `json:"condition_in,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	ProcessedBy     *int64          `json:"processed_by,omitempty"`
	ProcessedAt     time.Time       `json:"processed_at"`
	ReturnedDate    *time.Time      `json:"returned_date,omitempty"`

	// Denormalized join fields for caller convenience.
	AssetTag        string  `json:"asset_tag,omitempty"`
	Manufacturer    string  `json:"manufacturer,omitempty"`
	Make            string  `json:"make,omitempty"`
	Model           string  `json:"model,omitempty"`
	EmployeeName    string  `json:"employee_name,omitempty"`
	EmployeeEmail   string  `json:"employee_email,omitempty"`
	ProcessedByName *string `json:"processed_by_name,omitempty"`
	DaysOverdue     *int    `json:"days_overdue,omitempty"`
}

// BundleTransaction is a ledger entry for a bundle. The bundle ledger is
// independent of the equipment ledger.
type BundleTransaction struct {
	ID              int64           `json:"id"`
	BundleID        int64           `json:"bundle_id"`
	EmployeeID      int64           `json:"employee_id"`
	TransactionType TransactionType `json:"transaction_type"`
	Location        *string         `json:"location,omitempty"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	ConditionOut    *Condition      `json:"condition_out,omitempty"`
	ConditionIn     *Condition      `json:"condition_in,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	ProcessedBy     *int64          `json:"processed_by,omitempty"`
	ProcessedAt     time.Time       `json:"processed_at"`
	ReturnedDate    *time.Time      `json:"returned_date,omitempty"`

	BundleName    string `json:"bundle_name,omitempty"`
	EmployeeName  string `json:"employee_name,omitempty"`
	EmployeeEmail string `json:"employee_email,omitempty"`
}

// AvailabilityView is the derived current status of an asset or bundle.
type AvailabilityView struct {
	Status       AvailabilityStatus `json:"status"`
	HolderID     *int64             `json:"holder_id,omitempty"`
	HolderName   *string            `json:"holder_name,omitempty"`
	Location     *string            `json:"location,omitempty"`
	DueDate      *time.Time         `json:"due_date,omitempty"`
	CheckoutDate *time.Time         `json:"checkout_date,omitempty"`
}

// CheckoutRequest is the body for an explicit checkout.
type CheckoutRequest struct {
	EquipmentID  int64      `json:"equipment_id"`
	EmployeeID   int64      `json:"employee_id"`
	Location     *string    `json:"location,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ConditionOut *Condition `json:"condition_out,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
}

// CheckinRequest is the body for an explicit checkin. The open checkout must
// match both equipment and employee.
type CheckinRequest struct {
	EquipmentID int64      `json:"equipment_id"`
	EmployeeID  int64      `json:"employee_id"`
	ConditionIn *Condition `json:"condition_in,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// QuickCheckoutRequest is the body for the scan-driven checkout flow.
type QuickCheckoutRequest struct {
	AssetTag       string     `json:"asset_tag"`
	EmployeeSearch string     `json:"employee_search"`
	Location       *string    `json:"location,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
}

// QuickCheckinRequest is the body for the scan-driven checkin flow. The
// holder is implied by the ledger.
type QuickCheckinRequest struct {
	AssetTag    string     `json:"asset_tag"`
	ConditionIn *Condition `json:"condition_in,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// BundleCheckoutRequest is the body for checking out a bundle.
type BundleCheckoutRequest struct {
	EmployeeID int64      `json:"employee_id"`
	Location   *string    `json:"location,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
}

// BundleCheckinRequest is the body for checking in a bundle.
type BundleCheckinRequest struct {
	EmployeeID  int64      `json:"employee_id"`
	ConditionIn *Condition `json:"condition_in,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}
