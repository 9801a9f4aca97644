package internal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"equiptrack-api/internal/auth"
	"equiptrack-api/internal/models"

	"github.com/go-chi/chi/v5"
)

// LIST with ledger-derived counts & pagination
func (s *Server) listEmployees(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	values := r.URL.Query()

	clauses := []string{"e.active"}
	args := []interface{}{}
	arg := 1

	if values.Get("include_inactive") == "true" {
		clauses = clauses[:0]
	}

	if v := strings.TrimSpace(values.Get("department")); v != "" {
		clauses = append(clauses, fmt.Sprintf("e.department = $%d", arg))
		args = append(args, v)
		arg++
	}

	if params.q != "" {
		clauses = append(clauses, fmt.Sprintf(
			"(e.employee_id ILIKE $%d OR e.email ILIKE $%d OR (e.first_name || ' ' || e.last_name) ILIKE $%d)",
			arg, arg, arg))
		args = append(args, "%"+params.q+"%")
		arg++
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	sqlStr := fmt.Sprintf(`
		SELECT e.id, e.employee_id, e.email, e.first_name, e.last_name,
		       e.department, e.job_title, e.phone, e.active, e.created_at, e.updated_at,
		       (SELECT COUNT(*) FROM equipment_transactions t WHERE t.employee_id = e.id),
		       (SELECT COUNT(*) FROM equipment_transactions t
		        WHERE t.employee_id = e.id AND t.transaction_type = 'checkout' AND t.returned_date IS NULL),
		       COUNT(*) OVER() as total_count
		FROM employees e%s`, whereClause)

	allowedSort := map[string]string{
		"id":         "e.id",
		"last_name":  "e.last_name",
		"department": "e.department",
		"created_at": "e.created_at",
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
		var emp models.EmployeeWithCounts
		var department, jobTitle, phone sql.NullString
		if err := rows.Scan(
			&emp.ID, &emp.EmployeeID, &emp.Email, &emp.FirstName, &emp.LastName,
			&department, &jobTitle, &phone, &emp.Active, &emp.CreatedAt, &emp.UpdatedAt,
			&emp.TransactionCount, &emp.CheckedOutCount,
			&totalCount,
		); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if department.Valid {
			emp.Department = &department.String
		}
		if jobTitle.Valid {
			emp.JobTitle = &jobTitle.String
		}
		if phone.Valid {
			emp.Phone = &phone.String
		}
		items = append(items, emp)
	}

	sendListResponse(w, items, totalCount, params)
}

// getEmployee returns the employee plus what they currently hold and their
// recent ledger history.
func (s *Server) getEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", 400)
		return
	}

	var emp models.Employee
	var department, jobTitle, phone sql.NullString
	err = s.DB.QueryRowContext(r.Context(), `
		SELECT id, employee_id, email, first_name, last_name, department, job_title, phone,
		       active, created_at, updated_at
		FROM employees WHERE id = $1`, id).Scan(
		&emp.ID, &emp.EmployeeID, &emp.Email, &emp.FirstName, &emp.LastName,
		&department, &jobTitle, &phone, &emp.Active, &emp.CreatedAt, &emp.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if department.Valid {
		emp.Department = &department.String
	}
	if jobTitle.Valid {
		emp.JobTitle = &jobTitle.String
	}
	if phone.Valid {
		emp.Phone = &phone.String
	}

	current, err := s.employeeTransactions(r, id, true, 200)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	history, err := s.employeeTransactions(r, id, false, 50)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"employee":          emp,
		"current_equipment": current,
		"history":           history,
	})
}

// employeeTransactions lists an employee's ledger rows, either just the open
// checkouts or the full history, newest first.
func (s *Server) employeeTransactions(r *http.Request, employeeID int64, openOnly bool, limit int) ([]models.Transaction, error) {
	sqlStr := `
		SELECT t.id, t.equipment_id, t.employee_id, t.transaction_type, t.location,
		       t.due_date, t.condition_out, t.condition_in, t.notes, t.processed_by,
		       t.processed_at, t.returned_date,
		       e.asset_tag, e.manufacturer, e.make, e.model
		FROM equipment_transactions t
		JOIN equipment e ON t.equipment_id = e.id
		WHERE t.employee_id = $1`
	if openOnly {
		sqlStr += ` AND t.transaction_type = 'checkout' AND t.returned_date IS NULL`
	}
	sqlStr += fmt.Sprintf(` ORDER BY t.processed_at DESC LIMIT %d`, limit)

	rows, err := s.DB.QueryContext(r.Context(), sqlStr, employeeID)
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
			&t.AssetTag, &t.Manufacturer, &t.Make, &t.Model,
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

// searchEmployees resolves a free-text term the same way quick-checkout does
// but returns all matches instead of the tie-break winner.
func (s *Server) searchEmployees(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(chi.URLParam(r, "term"))
	if term == "" {
		http.Error(w, "search term is required", 400)
		return
	}

	rows, err := s.DB.QueryContext(r.Context(), `
		SELECT id, employee_id, email, first_name, last_name, department, job_title, phone,
		       active, created_at, updated_at
		FROM employees
		WHERE active AND (
			employee_id = $1 OR
			email = $1 OR
			(first_name || ' ' || last_name) ILIKE '%' || $1 || '%'
		)
		ORDER BY id
		LIMIT 20`, term)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	items := []models.Employee{}
	for rows.Next() {
		var emp models.Employee
		var department, jobTitle, phone sql.NullString
		if err := rows.Scan(
			&emp.ID, &emp.EmployeeID, &emp.Email, &emp.FirstName, &emp.LastName,
			&department, &jobTitle, &phone, &emp.Active, &emp.CreatedAt, &emp.UpdatedAt,
		); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if department.Valid {
			emp.Department = &department.String
		}
		if jobTitle.Valid {
			emp.JobTitle = &jobTitle.String
		}
		if phone.Valid {
			emp.Phone = &phone.String
		}
		items = append(items, emp)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

func (s *Server) createEmployee(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}
	if req.EmployeeID == "" || req.Email == "" || req.FirstName == "" || req.LastName == "" {
		http.Error(w, "employee_id, email, first_name and last_name are required", 400)
		return
	}

	var emp models.Employee
	err := s.DB.QueryRowContext(r.Context(), `
		INSERT INTO employees (employee_id, email, first_name, last_name, department, job_title, phone)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, active, created_at, updated_at`,
		req.EmployeeID, req.Email, req.FirstName, req.LastName,
		nullIfEmpty(req.Department), nullIfEmpty(req.JobTitle), nullIfEmpty(req.Phone)).
		Scan(&emp.ID, &emp.Active, &emp.CreatedAt, &emp.UpdatedAt)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			http.Error(w, "employee_id or email already exists", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}

	emp.EmployeeID = req.EmployeeID
	emp.Email = req.Email
	emp.FirstName = req.FirstName
	emp.LastName = req.LastName
	emp.Department = req.Department
	emp.JobTitle = req.JobTitle
	emp.Phone = req.Phone

	s.logActivity(r.Context(), auth.AdminIDFromContext(r.Context()), "create", "employee", emp.ID, map[string]any{
		"employee_id": emp.EmployeeID,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(emp)
}

func (s *Server) updateEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var in models.UpdateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}

	type set struct {
		sql string
		val interface{}
	}
	sets := make([]set, 0, 7)
	if in.EmployeeID != nil {
		sets = append(sets, set{"employee_id = $%d", *in.EmployeeID})
	}
	if in.Email != nil {
		sets = append(sets, set{"email = $%d", *in.Email})
	}
	if in.FirstName != nil {
		sets = append(sets, set{"first_name = $%d", *in.FirstName})
	}
	if in.LastName != nil {
		sets = append(sets, set{"last_name = $%d", *in.LastName})
	}
	if in.Department != nil {
		sets = append(sets, set{"department = $%d", nullIfEmpty(in.Department)})
	}
	if in.JobTitle != nil {
		sets = append(sets, set{"job_title = $%d", nullIfEmpty(in.JobTitle)})
	}
	if in.Phone != nil {
		sets = append(sets, set{"phone = $%d", nullIfEmpty(in.Phone)})
	}
	if len(sets) == 0 {
		http.Error(w, "no fields to update", 400)
		return
	}

	args := make([]interface{}, 0, len(sets)+1)
	sqlStr := "UPDATE employees SET updated_at = now()"
	for i, sset := range sets {
		sqlStr += ", " + fmt.Sprintf(sset.sql, i+1)
		args = append(args, sset.val)
	}
	sqlStr += fmt.Sprintf(" WHERE id = $%d RETURNING id, employee_id, email, first_name, last_name, department, job_title, phone, active, created_at, updated_at", len(args)+1)
	args = append(args, id)

	var out models.Employee
	var department, jobTitle, phone sql.NullString
	if err := s.DB.QueryRowContext(r.Context(), sqlStr, args...).Scan(
		&out.ID, &out.EmployeeID, &out.Email, &out.FirstName, &out.LastName,
		&department, &jobTitle, &phone, &out.Active, &out.CreatedAt, &out.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			http.Error(w, "employee_id or email already exists", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}
	if department.Valid {
		out.Department = &department.String
	}
	if jobTitle.Valid {
		out.JobTitle = &jobTitle.String
	}
	if phone.Valid {
		out.Phone = &phone.String
	}

	s.logActivity(r.Context(), auth.AdminIDFromContext(r.Context()), "update", "employee", out.ID, nil)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// deactivateEmployee soft-deletes; an employee still holding equipment cannot
// be deactivated until everything is returned.
func (s *Server) deactivateEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", 400)
		return
	}

	held, err := s.Ledger.OpenCheckoutCount(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if held > 0 {
		http.Error(w, fmt.Sprintf("employee holds %d item(s); check them in first", held), http.StatusConflict)
		return
	}

	res, err := s.DB.ExecContext(r.Context(),
		`UPDATE employees SET active = false, updated_at = now() WHERE id = $1 AND active`, id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	s.logActivity(r.Context(), auth.AdminIDFromContext(r.Context()), "deactivate", "employee", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
