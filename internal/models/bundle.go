package models

import "time"

// Bundle is a named group of equipment checked out and in as one unit.
type Bundle struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	BundleType  *string   `json:"bundle_type,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BundleWithStatus is a bundle row enriched with its derived availability and
// content count.
type BundleWithStatus struct {
	Bundle
	EquipmentCount int                `json:"equipment_count"`
	Status         AvailabilityStatus `json:"status"`
	CheckedOutTo   *string            `json:"checked_out_to,omitempty"`
}

// BundleContent is a member equipment row of a bundle. EquipmentStatus
// reflects the item's own equipment-level ledger, which the bundle ledger
// does not reconcile against.
type BundleContent struct {
	BundleID        int64              `json:"bundle_id"`
	EquipmentID     int64              `json:"equipment_id"`
	Quantity        int                `json:"quantity"`
	AssetTag        string             `json:"asset_tag"`
	Manufacturer    string             `json:"manufacturer"`
	Make            string             `json:"make"`
	Model           string             `json:"model"`
	SerialNumber    string             `json:"serial_number"`
	CategoryName    *string            `json:"category_name,omitempty"`
	EquipmentStatus AvailabilityStatus `json:"equipment_status"`
}

// CreateBundleRequest is the body for creating a bundle.
type CreateBundleRequest struct {
	Name         string  `json:"name"`
	Description  *string `json:"description,omitempty"`
	BundleType   *string `json:"bundle_type,omitempty"`
	EquipmentIDs []int64 `json:"equipment_ids,omitempty"`
}

// UpdateBundleRequest is the body for updating a bundle. EquipmentIDs, when
// present, replaces the membership set.
type UpdateBundleRequest struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	BundleType   *string `json:"bundle_type,omitempty"`
	EquipmentIDs []int64 `json:"equipment_ids,omitempty"`
}
