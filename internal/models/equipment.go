package models

import "time"

// Equipment represents a tracked physical asset.
type Equipment struct {
	ID              int64      `json:"id"`
	AssetTag        string     `json:"asset_tag"`
	CategoryID      *int64     `json:"category_id,omitempty"`
	CategoryName    *string    `json:"category_name,omitempty"`
	Manufacturer    string     `json:"manufacturer"`
	Make            string     `json:"make"`
	Model           string     `json:"model"`
	SerialNumber    string     `json:"serial_number"`
	Condition       Condition  `json:"condition"`
	PurchaseDate    *time.Time `json:"purchase_date,omitempty"`
	PurchaseCost    *float64   `json:"purchase_cost,omitempty"`
	WarrantyEndDate *time.Time `json:"warranty_end_date,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	Active          bool       `json:"active"`
	Tags            []string   `json:"tags,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// EquipmentWithStatus is an equipment row enriched with its derived
// availability, as returned by list/get endpoints.
type EquipmentWithStatus struct {
	Equipment
	Status          AvailabilityStatus `json:"status"`
	CheckedOutTo    *string            `json:"checked_out_to,omitempty"`
	CurrentLocation *string            `json:"current_location,omitempty"`
	DueDate         *time.Time         `json:"due_date,omitempty"`
}

// CreateEquipmentRequest is the body for creating equipment. The asset tag is
// generated server side.
type CreateEquipmentRequest struct {
	CategoryID      *int64     `json:"category_id,omitempty"`
	Manufacturer    string     `json:"manufacturer"`
	Make            string     `json:"make"`
	Model           string     `json:"model"`
	SerialNumber    string     `json:"serial_number"`
	Condition       *Condition `json:"condition,omitempty"`
	PurchaseDate    *time.Time `json:"purchase_date,omitempty"`
	PurchaseCost    *float64   `json:"purchase_cost,omitempty"`
	WarrantyEndDate *time.Time `json:"warranty_end_date,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	TagIDs          []int64    `json:"tags,omitempty"`
}

// UpdateEquipmentRequest is the body for partial equipment updates.
type UpdateEquipmentRequest struct {
	CategoryID      *int64     `json:"category_id,omitempty"`
	Manufacturer    *string    `json:"manufacturer,omitempty"`
	Make            *string    `json:"make,omitempty"`
	Model           *string    `json:"model,omitempty"`
	SerialNumber    *string    `json:"serial_number,omitempty"`
	Condition       *Condition `json:"condition,omitempty"`
	PurchaseDate    *time.Time `json:"purchase_date,omitempty"`
	PurchaseCost    *float64   `json:"purchase_cost,omitempty"`
	WarrantyEndDate *time.Time `json:"warranty_end_date,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	TagIDs          []int64    `json:"tags,omitempty"`
}

// Category is an equipment category lookup row.
type Category struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// Tag is an equipment tag lookup row.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
