package models

import "time"

// Employee represents a checkout counterparty.
type Employee struct {
	ID         int64     `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Department *string   `json:"department,omitempty"`
	JobTitle   *string   `json:"job_title,omitempty"`
	Phone      *string   `json:"phone,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FullName returns "first last" for display and activity log entries.
func (e Employee) FullName() string {
	return e.FirstName + " " + e.LastName
}

// EmployeeWithCounts is an employee row with ledger-derived counts for the
// listing endpoint.
type EmployeeWithCounts struct {
	Employee
	TransactionCount int `json:"transaction_count"`
	CheckedOutCount  int `json:"checked_out_count"`
}

// CreateEmployeeRequest is the body for creating an employee.
type CreateEmployeeRequest struct {
	EmployeeID string  `json:"employee_id"`
	Email      string  `json:"email"`
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Department *string `json:"department,omitempty"`
	JobTitle   *string `json:"job_title,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

// UpdateEmployeeRequest is the body for partial employee updates.
type UpdateEmployeeRequest struct {
	EmployeeID *string `json:"employee_id,omitempty"`
	Email      *string `json:"email,omitempty"`
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
	Department *string `json:"department,omitempty"`
	JobTitle   *string `json:"job_title,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}
