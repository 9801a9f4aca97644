package internal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"equiptrack-api/internal/auth"
	"equiptrack-api/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
)

// LIST with basic filters, derived availability & pagination
func (s *Server) listEquipment(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	values := r.URL.Query()

	clauses := []string{"e.active"}
	args := []interface{}{}
	arg := 1

	if values.Get("include_inactive") == "true" {
		clauses = clauses[:0]
	}

	if v := strings.TrimSpace(values.Get("category_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid category_id", 400)
			return
		}
		clauses = append(clauses, fmt.Sprintf("e.category_id = $%d", arg))
		args = append(args, id)
		arg++
	}

	if v := strings.TrimSpace(values.Get("condition")); v != "" {
		if !models.Condition(v).Valid() {
			http.Error(w, "invalid condition", 400)
			return
		}
		clauses = append(clauses, fmt.Sprintf("e.condition = $%d", arg))
		args = append(args, v)
		arg++
	}

	if v := strings.TrimSpace(values.Get("tag")); v != "" {
		clauses = append(clauses, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM equipment_tag_assignments ta
			JOIN equipment_tags tg ON ta.tag_id = tg.id
			WHERE ta.equipment_id = e.id AND tg.name = $%d)`, arg))
		args = append(args, v)
		arg++
	}

	switch strings.TrimSpace(values.Get("status")) {
	case "":
	case "available":
		clauses = append(clauses, "open.employee_id IS NULL")
	case "checked_out":
		clauses = append(clauses, "open.employee_id IS NOT NULL")
	default:
		http.Error(w, "invalid status, expected available or checked_out", 400)
		return
	}

	// optional text search on tag/serial/manufacturer/model
	if params.q != "" {
		clauses = append(clauses, fmt.Sprintf(
			"(e.asset_tag ILIKE $%d OR e.serial_number ILIKE $%d OR e.manufacturer ILIKE $%d OR e.model ILIKE $%d)",
			arg, arg, arg, arg))
		args = append(args, "%"+params.q+"%")
		arg++
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	sqlStr := fmt.Sprintf(`
		SELECT e.id, e.asset_tag, e.category_id, c.name, e.manufacturer, e.make, e.model,
		       e.serial_number, e.condition, e.purchase_date, e.purchase_cost,
		       e.warranty_end_date, e.notes, e.active, e.created_at, e.updated_at,
		       (SELECT COALESCE(array_agg(tg.name ORDER BY tg.name), '{}')
		        FROM equipment_tag_assignments ta
		        JOIN equipment_tags tg ON ta.tag_id = tg.id
		        WHERE ta.equipment_id = e.id),
		       open.holder_name, open.location, open.due_date,
		       COUNT(*) OVER() as total_count
		FROM equipment e
		LEFT JOIN equipment_categories c ON e.category_id = c.id
		LEFT JOIN LATERAL (
			SELECT t.employee_id, emp.first_name || ' ' || emp.last_name AS holder_name,
			       t.location, t.due_date
			FROM equipment_transactions t
			JOIN employees emp ON t.employee_id = emp.id
			WHERE t.equipment_id = e.id
			  AND t.transaction_type = 'checkout' AND t.returned_date IS NULL
			ORDER BY t.processed_at DESC
			LIMIT 1
		) open ON true%s`, whereClause)

	allowedSort := map[string]string{
		"id":         "e.id",
		"asset_tag":  "e.asset_tag",
		"created_at": "e.created_at",
		"updated_at": "e.updated_at",
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
		var eq models.EquipmentWithStatus
		var categoryID sql.NullInt64
		var categoryName, notes, holderName, location sql.NullString
		var purchaseDate, warrantyEnd, dueDate sql.NullTime
		var purchaseCost sql.NullFloat64
		var tags pq.StringArray
		if err := rows.Scan(
			&eq.ID, &eq.AssetTag, &categoryID, &categoryName, &eq.Manufacturer, &eq.Make, &eq.Model,
			&eq.SerialNumber, &eq.Condition, &purchaseDate, &purchaseCost,
			&warrantyEnd, &notes, &eq.Active, &eq.CreatedAt, &eq.UpdatedAt,
			&tags,
			&holderName, &location, &dueDate,
			&totalCount,
		); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if categoryID.Valid {
			eq.CategoryID = &categoryID.Int64
		}
		if categoryName.Valid {
			eq.CategoryName = &categoryName.String
		}
		if purchaseDate.Valid {
			eq.PurchaseDate = &purchaseDate.Time
		}
		if purchaseCost.Valid {
			eq.PurchaseCost = &purchaseCost.Float64
		}
		if warrantyEnd.Valid {
			eq.WarrantyEndDate = &warrantyEnd.Time
		}
		if notes.Valid {
			eq.Notes = &notes.String
		}
		eq.Tags = tags
		if holderName.Valid {
			eq.Status = models.StatusCheckedOut
			eq.CheckedOutTo = &holderName.String
			if location.Valid {
				eq.CurrentLocation = &location.String
			}
			if dueDate.Valid {
				eq.DueDate = &dueDate.Time
			}
		} else {
			eq.Status = models.StatusAvailable
		}
		items = append(items, eq)
	}

	sendListResponse(w, items, totalCount, params)
}

func (s *Server) getEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", 400)
		return
	}

	var eq models.EquipmentWithStatus
	var categoryID sql.NullInt64
	var categoryName, notes sql.NullString
	var purchaseDate, warrantyEnd sql.NullTime
	var purchaseCost sql.NullFloat64
	var tags pq.StringArray
	err = s.DB.QueryRowContext(r.Context(), `
		SELECT e.id, e.asset_tag, e.category_id, c.name, e.manufacturer, e.make, e.model,
		       e.serial_number, e.condition, e.purchase_date, e.purchase_cost,
		       e.warranty_end_date, e.notes, e.active, e.created_at, e.updated_at,
		       (SELECT COALESCE(array_agg(tg.name ORDER BY tg.name), '{}')
		        FROM equipment_tag_assignments ta
		        JOIN equipment_tags tg ON ta.tag_id = tg.id
		        WHERE ta.equipment_id = e.id)
		FROM equipment e
		LEFT JOIN equipment_categories c ON e.category_id = c.id
		WHERE e.id = $1`, id).Scan(
		&eq.ID, &eq.AssetTag, &categoryID, &categoryName, &eq.Manufacturer, &eq.Make, &eq.Model,
		&eq.SerialNumber, &eq.Condition, &purchaseDate, &purchaseCost,
		&warrantyEnd, &notes, &eq.Active, &eq.CreatedAt, &eq.UpdatedAt,
		&tags,
	)
	if err == sql.ErrNoRows {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if categoryID.Valid {
		eq.CategoryID = &categoryID.Int64
	}
	if categoryName.Valid {
		eq.CategoryName = &categoryName.String
	}
	if purchaseDate.Valid {
		eq.PurchaseDate = &purchaseDate.Time
	}
	if purchaseCost.Valid {
		eq.PurchaseCost = &purchaseCost.Float64
	}
	if warrantyEnd.Valid {
		eq.WarrantyEndDate = &warrantyEnd.Time
	}
	if notes.Valid {
		eq.Notes = &notes.String
	}
	eq.Tags = tags

	view, err := s.Ledger.ResolveStatus(r.Context(), eq.ID)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	eq.Status = view.Status
	eq.CheckedOutTo = view.HolderName
	eq.CurrentLocation = view.Location
	eq.DueDate = view.DueDate

	history, err := s.equipmentTransactions(r, eq.ID, 20)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"equipment": eq,
		"history":   history,
	})
}

// equipmentTransactions returns the most recent ledger rows for one item.
func (s *Server) equipmentTransactions(r *http.Request, equipmentID int64, limit int) ([]models.Transaction, error) {
	sqlStr := fmt.Sprintf(`
		SELECT t.id, t.equipment_id, t.employee_id, t.transaction_type, t.location,
		       t.due_date, t.condition_out, t.condition_in, t.notes, t.processed_by,
		       t.processed_at, t.returned_date,
		       emp.first_name || ' ' || emp.last_name, emp.email
		FROM equipment_transactions t
		JOIN employees emp ON t.employee_id = emp.id
		WHERE t.equipment_id = $1
		ORDER BY t.processed_at DESC LIMIT %d`, limit)

	rows, err := s.DB.QueryContext(r.Context(), sqlStr, equipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		var location, notes sql.NullString
		var conditionOut, conditionIn sql.NullString
		var dueDate, returnedDate sql.NullTime
		var processedBy sql.NullInt64
		if err := rows.Scan(
			&t.ID, &t.EquipmentID, &t.EmployeeID, &t.TransactionType, &location,
			&dueDate, &conditionOut, &conditionIn, &notes, &processedBy,
			&t.ProcessedAt, &returnedDate,
			&t.EmployeeName, &t.EmployeeEmail,
		); err != nil {
			return nil, err
		}
		if location.Valid {
			t.Location = &location.String
		}
		if dueDate.Valid {
			t.DueDate = &dueDate.Time
		}
		if conditionOut.Valid {
			c := models.Condition(conditionOut.String)
			t.ConditionOut = &c
		}
		if conditionIn.Valid {
			c := models.Condition(conditionIn.String)
			t.ConditionIn = &c
		}
		if notes.Valid {
			t.Notes = &notes.String
		}
		if processedBy.Valid {
			t.ProcessedBy = &processedBy.Int64
		}
		if returnedDate.Valid {
			t.ReturnedDate = &returnedDate.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const tagSuffixCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateAssetTag builds an "IT-<digits>-<suffix>" tag from the current
// timestamp plus a random suffix. Uniqueness is enforced by the DB; callers
// retry on collision.
func generateAssetTag() string {
	digits := time.Now().UnixMilli() % 1000000
	suffix := make([]byte, 3)
	for i := range suffix {
		suffix[i] = tagSuffixCharset[rand.Intn(len(tagSuffixCharset))]
	}
	return fmt.Sprintf("IT-%06d-%s", digits, suffix)
}

func (s *Server) createEquipment(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEquipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}
	if req.Manufacturer == "" || req.Model == "" || req.SerialNumber == "" {
		http.Error(w, "manufacturer, model and serial_number are required", 400)
		return
	}
	condition := models.ConditionGood
	if req.Condition != nil {
		if !req.Condition.Valid() {
			http.Error(w, "invalid condition", 400)
			return
		}
		condition = *req.Condition
	}

	var eq models.Equipment
	// Retry a few times in case the generated tag collides.
	for attempt := 0; ; attempt++ {
		assetTag := generateAssetTag()
		err := s.DB.QueryRowContext(r.Context(), `
			INSERT INTO equipment (asset_tag, category_id, manufacturer, make, model, serial_number,
			                       condition, purchase_date, purchase_cost, warranty_end_date, notes)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			RETURNING id, asset_tag, condition, active, created_at, updated_at`,
			assetTag, req.CategoryID, req.Manufacturer, req.Make, req.Model, req.SerialNumber,
			condition, req.PurchaseDate, req.PurchaseCost, req.WarrantyEndDate, nullIfEmpty(req.Notes)).
			Scan(&eq.ID, &eq.AssetTag, &eq.Condition, &eq.Active, &eq.CreatedAt, &eq.UpdatedAt)
		if err == nil {
			break
		}
		lower := strings.ToLower(err.Error())
		if strings.Contains(lower, "equipment_serial_number_key") {
			http.Error(w, "serial_number already exists", http.StatusConflict)
			return
		}
		if strings.Contains(lower, "equipment_asset_tag_key") && attempt < 5 {
			continue
		}
		if strings.Contains(lower, "unique") {
			http.Error(w, "duplicate equipment", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}

	if len(req.TagIDs) > 0 {
		if err := s.replaceEquipmentTags(r, eq.ID, req.TagIDs); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
	}

	eq.CategoryID = req.CategoryID
	eq.Manufacturer = req.Manufacturer
	eq.Make = req.Make
	eq.Model = req.Model
	eq.SerialNumber = req.SerialNumber
	eq.PurchaseDate = req.PurchaseDate
	eq.PurchaseCost = req.PurchaseCost
	eq.WarrantyEndDate = req.WarrantyEndDate
	eq.Notes = req.Notes

	s.logActivity(r.Context(), auth.AdminIDFromContext(r.Context()), "create", "equipment", eq.ID, map[string]any{
		"asset_tag": eq.AssetTag,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(eq)
}

func (s *Server) replaceEquipmentTags(r *http.Request, equipmentID int64, tagIDs []int64) error {
	tx, err := s.DB.BeginTx(r.Context(), nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(r.Context(),
		`DELETE FROM equipment_tag_assignments WHERE equipment_id = $1`, equipmentID); err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(r.Context(),
			`INSERT INTO equipment_tag_assignments (equipment_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			equipmentID, tagID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Server) updateEquipment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var in models.UpdateEquipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}
	if in.Condition != nil && !in.Condition.Valid() {
		http.Error(w, "invalid condition", 400)
		return
	}

	type set struct {
		sql string
		val interface{}
	}
	sets := make([]set, 0, 10)
	if in.CategoryID != nil {
		sets = append(sets, set{"category_id = $%d", in.CategoryID})
	}
	if in.Manufacturer != nil {
		sets = append(sets, set{"manufacturer = $%d", *in.Manufacturer})
	}
	if in.Make != nil {
		sets = append(sets, set{"make = $%d", *in.Make})
	}
	if in.Model != nil {
		sets = append(sets, set{"model = $%d", *in.Model})
	}
	if in.SerialNumber != nil {
		sets = append(sets, set{"serial_number = $%d", *in.SerialNumber})
	}
	if in.Condition != nil {
		sets = append(sets, set{"condition = $%d", *in.Condition})
	}
	if in.PurchaseDate != nil {
		sets = append(sets, set{"purchase_date = $%d", in.PurchaseDate})
	}
	if in.PurchaseCost != nil {
		sets = append(sets, set{"purchase_cost = $%d", in.PurchaseCost})
	}
	if in.WarrantyEndDate != nil {
		sets = append(sets, set{"warranty_end_date = $%d", in.WarrantyEndDate})
	}
	if in.Notes != nil {
		sets = append(sets, set{"notes = $%d", nullIfEmpty(in.Notes)})
	}
	if len(sets) == 0 && in.TagIDs == nil {
		http.Error(w, "no fields to update", 400)
		return
	}

	var out models.Equipment
	if len(sets) > 0 {
		args := make([]interface{}, 0, len(sets)+1)
		sqlStr := "UPDATE equipment SET updated_at = now()"
		for i, sset := range sets {
			sqlStr += ", " + fmt.Sprintf(sset.sql, i+1)
			args = append(args, sset.val)
		}
		sqlStr += fmt.Sprintf(" WHERE id = $%d RETURNING id, asset_tag, category_id, manufacturer, make, model, serial_number, condition, purchase_date, purchase_cost, warranty_end_date, notes, active, created_at, updated_at", len(args)+1)
		args = append(args, id)

		var categoryID sql.NullInt64
		var notes sql.NullString
		var purchaseDate, warrantyEnd sql.NullTime
		var purchaseCost sql.NullFloat64
		if err := s.DB.QueryRowContext(r.Context(), sqlStr, args...).Scan(
			&out.ID, &out.AssetTag, &categoryID, &out.Manufacturer, &out.Make, &out.Model,
			&out.SerialNumber, &out.Condition, &purchaseDate, &purchaseCost,
			&warrantyEnd, &notes, &out.Active, &out.CreatedAt, &out.UpdatedAt,
		); err != nil {
			if err == sql.ErrNoRows {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			if strings.Contains(strings.ToLower(err.Error()), "unique") {
				http.Error(w, "serial_number already exists", http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), 500)
			return
		}
		if categoryID.Valid {
			out.CategoryID = &categoryID.Int64
		}
		if purchaseDate.Valid {
			out.PurchaseDate = &purchaseDate.Time
		}
		if purchaseCost.Valid {
			out.PurchaseCost = &purchaseCost.Float64
		}
		if warrantyEnd.Valid {
			out.WarrantyEndDate = &warrantyEnd.Time
		}
		if notes.Valid {
			out.Notes = &notes.String
		}
	}

	if in.TagIDs != nil {
		eqID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			http.Error(w, "invalid id", 400)
			return
		}
		if err := s.replaceEquipmentTags(r, eqID, in.TagIDs); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
	}

	s.logActivity(r.Context(), auth.AdminIDFromContext(r.Context()), "update", "equipment", out.ID, nil)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// deleteEquipment soft-deletes; an item with an open checkout cannot be
// retired until it is checked in.
func (s *Server) deleteEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", 400)
		return
	}

	open, err := s.Ledger.HasOpenCheckout(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if open {
		http.Error(w, "equipment is checked out; check it in first", http.StatusConflict)
		return
	}

	res, err := s.DB.ExecContext(r.Context(),
		`UPDATE equipment SET active = false, updated_at = now() WHERE id = $1 AND active`, id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	s.logActivity(r.Context(), auth.AdminIDFromContext(r.Context()), "delete", "equipment", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	rows, err := s.DB.QueryContext(r.Context(),
		`SELECT id, name, description FROM equipment_categories ORDER BY name`)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	items := []models.Category{}
	for rows.Next() {
		var c models.Category
		var description sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &description); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if description.Valid {
			c.Description = &description.String
		}
		items = append(items, c)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	rows, err := s.DB.QueryContext(r.Context(),
		`SELECT id, name FROM equipment_tags ORDER BY name`)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	items := []models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		items = append(items, t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}
