package internal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"equiptrack-api/internal/auth"
	"equiptrack-api/internal/ledger"
	"equiptrack-api/internal/models"

	"github.com/go-chi/chi/v5"
)

// LIST with derived availability & pagination
func (s *Server) listBundles(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	values := r.URL.Query()

	clauses := []string{"b.active"}
	args := []interface{}{}
	arg := 1

	if values.Get("include_inactive") == "true" {
		clauses = clauses[:0]
	}

	if params.q != "" {
		clauses = append(clauses, fmt.Sprintf("(b.name ILIKE $%d OR b.description ILIKE $%d)", arg, arg))
		args = append(args, "%"+params.q+"%")
		arg++
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	sqlStr := fmt.Sprintf(`
		SELECT b.id, b.name, b.description, b.bundle_type, b.active, b.created_at, b.updated_at,
		       (SELECT COUNT(*) FROM bundle_contents bc WHERE bc.bundle_id = b.id),
		       open.holder_name,
		       COUNT(*) OVER() as total_count
		FROM bundles b
		LEFT JOIN LATERAL (
			SELECT emp.first_name || ' ' || emp.last_name AS holder_name
			FROM bundle_transactions t
			JOIN employees emp ON t.employee_id = emp.id
			WHERE t.bundle_id = b.id
			  AND t.transaction_type = 'checkout' AND t.returned_date IS NULL
			ORDER BY t.processed_at DESC
			LIMIT 1
		) open ON true%s`, whereClause)

	allowedSort := map[string]string{
		"id":         "b.id",
		"name":       "b.name",
		"created_at": "b.created_at",
	}
	sqlStr += buildOrderBy(params.sort, allowedSort)
	sqlStr += fmt.Sprintf(" LIMIT %d OFFSET %d", params.limit, params.offset)

	rows, err := s.DB.QueryContext(r.Context(), sqlStr, args...)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	items := []interface{}{}
	var totalCount int
	for rows.Next() {
		var b models.BundleWithStatus
		var description, bundleType, holderName sql.NullString
		if err := rows.Scan(
			&b.ID, &b.Name, &description, &bundleType, &b.Active, &b.CreatedAt, &b.UpdatedAt,
			&b.EquipmentCount, &holderName,
			&totalCount,
		); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if description.Valid {
			b.Description = &description.String
		}
		if bundleType.Valid {
			b.BundleType = &bundleType.String
		}
		if holderName.Valid {
			b.Status = models.StatusCheckedOut
			b.CheckedOutTo = &holderName.String
		} else {
			b.Status = models.StatusAvailable
		}
		items = append(items, b)
	}

	sendListResponse(w, items, totalCount, params)
}

// getBundle returns the bundle, its derived availability and its contents.
// Each content row carries the item's own equipment-level availability, which
// the bundle ledger does not reconcile against.
func (s *Server) getBundle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", 400)
		return
	}

	var b models.BundleWithStatus
	var description, bundleType sql.NullString
	err = s.DB.QueryRowContext(r.Context(), `
		SELECT id, name, description, bundle_type, active, created_at, updated_at
		FROM bundles WHERE id = $1`, id).Scan(
		&b.ID, &b.Name, &description, &bundleType, &b.Active, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if description.Valid {
		b.Description = &description.String
	}
	if bundleType.Valid {
		b.BundleType = &bundleType.String
	}

	view, err := s.Ledger.ResolveBundleStatus(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	b.Status = view.Status
	b.CheckedOutTo = view.HolderName

	rows, err := s.DB.QueryContext(r.Context(), `
		SELECT bc.bundle_id, bc.equipment_id, bc.quantity,
		       e.asset_tag, e.manufacturer, e.make, e.model, e.serial_number, c.name,
		       CASE WHEN open.equipment_id IS NULL THEN 'available' ELSE 'checked_out' END
		FROM bundle_contents bc
		JOIN equipment e ON bc.equipment_id = e.id
		LEFT JOIN equipment_categories c ON e.category_id = c.id
		LEFT JOIN LATERAL (
			SELECT t.equipment_id
			FROM equipment_transactions t
			WHERE t.equipment_id = e.id
			  AND t.transaction_type = 'checkout' AND t.returned_date IS NULL
			LIMIT 1
		) open ON true
		WHERE bc.bundle_id = $1
		ORDER BY e.asset_tag`, id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	contents := []models.BundleContent{}
	for rows.Next() {
		var bc models.BundleContent
		var categoryName sql.NullString
		if err := rows.Scan(
			&bc.BundleID, &bc.EquipmentID, &bc.Quantity,
			&bc.AssetTag, &bc.Manufacturer, &bc.Make, &bc.Model, &bc.SerialNumber, &categoryName,
			&bc.EquipmentStatus,
		); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if categoryName.Valid {
			bc.CategoryName = &categoryName.String
		}
		contents = append(contents, bc)
	}

	b.EquipmentCount = len(contents)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"bundle":   b,
		"contents": contents,
	})
}

func (s *Server) createBundle(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "name is required", 400)
		return
	}

	tx, err := s.DB.BeginTx(r.Context(), nil)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	var b models.Bundle
	err = tx.QueryRowContext(r.Context(), `
		INSERT INTO bundles (name, description, bundle_type)
		VALUES ($1, $2, $3)
		RETURNING id, active, created_at, updated_at`,
		req.Name, nullIfEmpty(req.Description), nullIfEmpty(req.BundleType)).
		Scan(&b.ID, &b.Active, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	for _, eqID := range req.EquipmentIDs {
		if _, err := tx.ExecContext(r.Context(), `
			INSERT INTO bundle_contents (bundle_id, equipment_id) VALUES ($1, $2)
			ON CONFLICT (bundle_id, equipment_id) DO UPDATE SET quantity = bundle_contents.quantity + 1`,
			b.ID, eqID); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	b.Name = req.Name
	b.Description = req.Description
	b.BundleType = req.BundleType

	s.logActivity(r.Context(), auth.AdminIDFromContext(r.Context()), "create", "bundle", b.ID, map[string]any{
		"name": b.Name,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(b)
}

func (s *Server) updateBundle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", 400)
		return
	}

	var in models.UpdateBundleRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}

	type set struct {
		sql string
		val interface{}
	}
	sets := make([]set, 0, 3)
	if in.Name != nil {
		sets = append(sets, set{"name = $%d", *in.Name})
	}
	if in.Description != nil {
		sets = append(sets, set{"description = $%d", nullIfEmpty(in.Description)})
	}
	if in.BundleType != nil {
		sets = append(sets, set{"bundle_type = $%d", nullIfEmpty(in.BundleType)})
	}
	if len(sets) == 0 && in.EquipmentIDs == nil {
		http.Error(w, "no fields to update", 400)
		return
	}

	tx, err := s.DB.BeginTx(r.Context(), nil)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	var out models.Bundle
	var description, bundleType sql.NullString
	if len(sets) > 0 {
		args := make([]interface{}, 0, len(sets)+1)
		sqlStr := "UPDATE bundles SET updated_at = now()"
		for i, sset := range sets {
			sqlStr += ", " + fmt.Sprintf(sset.sql, i+1)
			args = append(args, sset.val)
		}
		sqlStr += fmt.Sprintf(" WHERE id = $%d RETURNING id, name, description, bundle_type, active, created_at, updated_at", len(args)+1)
		args = append(args, id)

		if err := tx.QueryRowContext(r.Context(), sqlStr, args...).Scan(
			&out.ID, &out.Name, &description, &bundleType, &out.Active, &out.CreatedAt, &out.UpdatedAt,
		); err != nil {
			if err == sql.ErrNoRows {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), 500)
			return
		}
	} else {
		if err := tx.QueryRowContext(r.Context(), `
			SELECT id, name, description, bundle_type, active, created_at, updated_at
			FROM bundles WHERE id = $1`, id).Scan(
			&out.ID, &out.Name, &description, &bundleType, &out.Active, &out.CreatedAt, &out.UpdatedAt,
		); err != nil {
			if err == sql.ErrNoRows {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), 500)
			return
		}
	}
	if description.Valid {
		out.Description = &description.String
	}
	if bundleType.Valid {
		out.BundleType = &bundleType.String
	}

	// EquipmentIDs replaces the membership set when present.
	if in.EquipmentIDs != nil {
		if _, err := tx.ExecContext(r.Context(),
			`DELETE FROM bundle_contents WHERE bundle_id = $1`, id); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		for _, eqID := range in.EquipmentIDs {
			if _, err := tx.ExecContext(r.Context(), `
				INSERT INTO bundle_contents (bundle_id, equipment_id) VALUES ($1, $2)
				ON CONFLICT (bundle_id, equipment_id) DO UPDATE SET quantity = bundle_contents.quantity + 1`,
				id, eqID); err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
		}
	}

	if err := tx.Commit(); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	s.logActivity(r.Context(), auth.AdminIDFromContext(r.Context()), "update", "bundle", out.ID, nil)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// deleteBundle soft-deletes; a bundle with an open checkout cannot be retired.
func (s *Server) deleteBundle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", 400)
		return
	}

	open, err := s.Ledger.BundleHasOpenCheckout(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if open {
		http.Error(w, "bundle is checked out; check it in first", http.StatusConflict)
		return
	}

	res, err := s.DB.ExecContext(r.Context(),
		`UPDATE bundles SET active = false, updated_at = now() WHERE id = $1 AND active`, id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	s.logActivity(r.Context(), auth.AdminIDFromContext(r.Context()), "delete", "bundle", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) checkoutBundle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", 400)
		return
	}

	var req models.BundleCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}
	if req.EmployeeID <= 0 {
		http.Error(w, "employee_id is required", 400)
		return
	}

	adminID := auth.AdminIDFromContext(r.Context())
	tx, err := s.Ledger.CheckoutBundle(r.Context(), ledger.BundleCheckoutParams{
		BundleID:    id,
		EmployeeID:  req.EmployeeID,
		Location:    req.Location,
		DueDate:     req.DueDate,
		Notes:       req.Notes,
		ProcessedBy: adminID,
	})
	if err != nil {
		ledgerError(w, err)
		return
	}

	s.Metrics.RecordTransaction("bundle", "checkout")
	s.logActivity(r.Context(), adminID, "checkout", "bundle", id, map[string]any{
		"transaction_id": tx.ID,
		"employee_id":    req.EmployeeID,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tx)
}

func (s *Server) checkinBundle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", 400)
		return
	}

	var req models.BundleCheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}
	if req.EmployeeID <= 0 {
		http.Error(w, "employee_id is required", 400)
		return
	}
	if req.ConditionIn != nil && !req.ConditionIn.Valid() {
		http.Error(w, "invalid condition_in", 400)
		return
	}

	adminID := auth.AdminIDFromContext(r.Context())
	tx, err := s.Ledger.CheckinBundle(r.Context(), ledger.BundleCheckinParams{
		BundleID:    id,
		EmployeeID:  req.EmployeeID,
		ConditionIn: req.ConditionIn,
		Notes:       req.Notes,
		ProcessedBy: adminID,
	})
	if err != nil {
		ledgerError(w, err)
		return
	}

	s.Metrics.RecordTransaction("bundle", "checkin")
	s.logActivity(r.Context(), adminID, "checkin", "bundle", id, map[string]any{
		"transaction_id": tx.ID,
		"employee_id":    req.EmployeeID,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}
