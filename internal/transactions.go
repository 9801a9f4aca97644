package internal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"equiptrack-api/internal/auth"
	"equiptrack-api/internal/ledger"
	"equiptrack-api/internal/models"

	"github.com/go-chi/chi/v5"
)

// ledgerError translates ledger sentinel errors into HTTP status codes.
// Missing referenced rows are 404. A checkout of a held item is a state
// conflict (409); a checkin with no matching open checkout is a bad request
// (400), same class as a malformed body.
func ledgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrEquipmentNotFound),
		errors.Is(err, ledger.ErrEmployeeNotFound),
		errors.Is(err, ledger.ErrBundleNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrAlreadyCheckedOut):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrNoOpenCheckout):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), 500)
	}
}

// parseDateParam accepts a calendar date or an RFC 3339 timestamp.
func parseDateParam(v string) (time.Time, error) {
	if ts, err := time.Parse("2006-01-02", v); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, v)
}

// LIST with type/status/equipment/employee/date filters & pagination
func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	values := r.URL.Query()

	clauses := []string{}
	args := []interface{}{}
	arg := 1

	if t := strings.TrimSpace(values.Get("type")); t != "" {
		if !models.TransactionType(t).Valid() {
			http.Error(w, "invalid transaction type", 400)
			return
		}
		clauses = append(clauses, fmt.Sprintf("t.transaction_type = $%d", arg))
		args = append(args, t)
		arg++
	}

	// status filters checkout rows by whether they are still open
	switch strings.TrimSpace(values.Get("status")) {
	case "":
	case "active", "open":
		clauses = append(clauses, "t.transaction_type = 'checkout' AND t.returned_date IS NULL")
	case "returned", "closed":
		clauses = append(clauses, "t.transaction_type = 'checkout' AND t.returned_date IS NOT NULL")
	default:
		http.Error(w, "invalid status, expected active or returned", 400)
		return
	}

	if v := strings.TrimSpace(values.Get("equipment_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid equipment_id", 400)
			return
		}
		clauses = append(clauses, fmt.Sprintf("t.equipment_id = $%d", arg))
		args = append(args, id)
		arg++
	}

	if v := strings.TrimSpace(values.Get("employee_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid employee_id", 400)
			return
		}
		clauses = append(clauses, fmt.Sprintf("t.employee_id = $%d", arg))
		args = append(args, id)
		arg++
	}

	if v := strings.TrimSpace(values.Get("from")); v != "" {
		ts, err := parseDateParam(v)
		if err != nil {
			http.Error(w, "invalid from date", 400)
			return
		}
		clauses = append(clauses, fmt.Sprintf("t.processed_at >= $%d", arg))
		args = append(args, ts)
		arg++
	}
	if v := strings.TrimSpace(values.Get("to")); v != "" {
		ts, err := parseDateParam(v)
		if err != nil {
			http.Error(w, "invalid to date", 400)
			return
		}
		clauses = append(clauses, fmt.Sprintf("t.processed_at <= $%d", arg))
		args = append(args, ts)
		arg++
	}

	// optional text search on asset tag or employee name
	if params.q != "" {
		clauses = append(clauses, fmt.Sprintf("(e.asset_tag ILIKE $%d OR (emp.first_name || ' ' || emp.last_name) ILIKE $%d)", arg, arg))
		args = append(args, "%"+params.q+"%")
		arg++
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	sqlStr := fmt.Sprintf(`
		SELECT t.id, t.equipment_id, t.employee_id, t.transaction_type, t.location,
		       t.due_date, t.condition_out, t.condition_in, t.notes, t.processed_by,
		       t.processed_at, t.returned_date,
		       e.asset_tag, e.manufacturer, e.make, e.model,
		       emp.first_name || ' ' || emp.last_name, emp.email, adm.name,
		       COUNT(*) OVER() as total_count
		FROM equipment_transactions t
		JOIN equipment e ON t.equipment_id = e.id
		JOIN employees emp ON t.employee_id = emp.id
		LEFT JOIN admins adm ON t.processed_by = adm.id%s`, whereClause)

	allowedSort := map[string]string{
		"id":           "t.id",
		"processed_at": "t.processed_at",
		"due_date":     "t.due_date",
	}
	if params.sort == "" {
		sqlStr += " ORDER BY t.processed_at DESC"
	} else {
		sqlStr += buildOrderBy(params.sort, allowedSort)
	}
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
		var t models.Transaction
		var location, notes, processedByName sql.NullString
		var conditionOut, conditionIn sql.NullString
		var dueDate, returnedDate sql.NullTime
		var processedBy sql.NullInt64
		if err := rows.Scan(
			&t.ID, &t.EquipmentID, &t.EmployeeID, &t.TransactionType, &location,
			&dueDate, &conditionOut, &conditionIn, &notes, &processedBy,
			&t.ProcessedAt, &returnedDate,
			&t.AssetTag, &t.Manufacturer, &t.Make, &t.Model,
			&t.EmployeeName, &t.EmployeeEmail, &processedByName,
			&totalCount,
		); err != nil {
			http.Error(w, err.Error(), 500)
			return
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
		if processedByName.Valid {
			t.ProcessedByName = &processedByName.String
		}
		items = append(items, t)
	}

	sendListResponse(w, items, totalCount, params)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", 400)
		return
	}

	t, err := s.Ledger.GetTransaction(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t)
}

func (s *Server) listOverdueTransactions(w http.ResponseWriter, r *http.Request) {
	items, err := s.Ledger.ListOverdue(r.Context())
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"items":       items,
		"total_count": len(items),
	})
}

func (s *Server) checkoutEquipment(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}
	if req.EquipmentID <= 0 || req.EmployeeID <= 0 {
		http.Error(w, "equipment_id and employee_id are required", 400)
		return
	}
	if req.ConditionOut != nil && !req.ConditionOut.Valid() {
		http.Error(w, "invalid condition_out", 400)
		return
	}

	adminID := auth.AdminIDFromContext(r.Context())
	tx, err := s.Ledger.Checkout(r.Context(), ledger.CheckoutParams{
		EquipmentID:  req.EquipmentID,
		EmployeeID:   req.EmployeeID,
		Location:     req.Location,
		DueDate:      req.DueDate,
		ConditionOut: req.ConditionOut,
		Notes:        req.Notes,
		ProcessedBy:  adminID,
	})
	if err != nil {
		ledgerError(w, err)
		return
	}

	s.Metrics.RecordTransaction("equipment", "checkout")
	s.logActivity(r.Context(), adminID, "checkout", "equipment", req.EquipmentID, map[string]any{
		"transaction_id": tx.ID,
		"employee_id":    req.EmployeeID,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tx)
}

func (s *Server) checkinEquipment(w http.ResponseWriter, r *http.Request) {
	var req models.CheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}
	if req.EquipmentID <= 0 || req.EmployeeID <= 0 {
		http.Error(w, "equipment_id and employee_id are required", 400)
		return
	}
	if req.ConditionIn != nil && !req.ConditionIn.Valid() {
		http.Error(w, "invalid condition_in", 400)
		return
	}

	adminID := auth.AdminIDFromContext(r.Context())
	tx, err := s.Ledger.Checkin(r.Context(), ledger.CheckinParams{
		EquipmentID: req.EquipmentID,
		EmployeeID:  req.EmployeeID,
		ConditionIn: req.ConditionIn,
		Notes:       req.Notes,
		ProcessedBy: adminID,
	})
	if err != nil {
		ledgerError(w, err)
		return
	}

	s.Metrics.RecordTransaction("equipment", "checkin")
	s.logActivity(r.Context(), adminID, "checkin", "equipment", req.EquipmentID, map[string]any{
		"transaction_id": tx.ID,
		"employee_id":    req.EmployeeID,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

func (s *Server) quickCheckout(w http.ResponseWriter, r *http.Request) {
	var req models.QuickCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}
	if strings.TrimSpace(req.AssetTag) == "" || strings.TrimSpace(req.EmployeeSearch) == "" {
		http.Error(w, "asset_tag and employee_search are required", 400)
		return
	}

	adminID := auth.AdminIDFromContext(r.Context())
	res, err := s.Ledger.QuickCheckout(r.Context(), ledger.QuickCheckoutParams{
		AssetTag:       strings.TrimSpace(req.AssetTag),
		EmployeeSearch: strings.TrimSpace(req.EmployeeSearch),
		Location:       req.Location,
		DueDate:        req.DueDate,
		Notes:          req.Notes,
		ProcessedBy:    adminID,
	})
	if err != nil {
		ledgerError(w, err)
		return
	}

	s.Metrics.RecordTransaction("equipment", "checkout")
	s.logActivity(r.Context(), adminID, "quick_checkout", "equipment", res.Equipment.ID, map[string]any{
		"transaction_id": res.Transaction.ID,
		"employee_id":    res.Employee.ID,
		"employee_name":  res.Employee.FullName(),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"transaction": res.Transaction,
		"equipment":   res.Equipment,
		"employee":    res.Employee,
	})
}

func (s *Server) quickCheckin(w http.ResponseWriter, r *http.Request) {
	var req models.QuickCheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}
	if strings.TrimSpace(req.AssetTag) == "" {
		http.Error(w, "asset_tag is required", 400)
		return
	}
	if req.ConditionIn != nil && !req.ConditionIn.Valid() {
		http.Error(w, "invalid condition_in", 400)
		return
	}

	adminID := auth.AdminIDFromContext(r.Context())
	res, err := s.Ledger.QuickCheckin(r.Context(), ledger.QuickCheckinParams{
		AssetTag:    strings.TrimSpace(req.AssetTag),
		ConditionIn: req.ConditionIn,
		Notes:       req.Notes,
		ProcessedBy: adminID,
	})
	if err != nil {
		ledgerError(w, err)
		return
	}

	s.Metrics.RecordTransaction("equipment", "checkin")
	s.logActivity(r.Context(), adminID, "quick_checkin", "equipment", res.Equipment.ID, map[string]any{
		"returned_from": res.EmployeeName,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"equipment":     res.Equipment,
		"returned_from": res.EmployeeName,
		"checkout_date": res.CheckoutDate,
	})
}
