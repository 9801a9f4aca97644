// Package ledger implements the checkout/checkin transaction engine. It owns
// the append-mostly transaction history for equipment and bundles and derives
// current availability from it. All storage access goes through the injected
// *sql.DB; the package keeps no globals.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"equiptrack-api/internal/models"
)

// Business-rule rejections surfaced to the handler layer. Storage failures
// propagate as-is and are never retried: a retried checkout could double-book
// equipment if the first attempt actually committed.
var (
	ErrEquipmentNotFound = errors.New("equipment not found or inactive")
	ErrEmployeeNotFound  = errors.New("employee not found or inactive")
	ErrBundleNotFound    = errors.New("bundle not found or inactive")
	ErrAlreadyCheckedOut = errors.New("already checked out")
	ErrNoOpenCheckout    = errors.New("no matching open checkout")
)

// Ledger is the transaction engine. Construct with New and share across
// requests; the *sql.DB handles pooling.
type Ledger struct {
	DB *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{DB: db}
}

// CheckoutParams are the inputs for an explicit checkout.
type CheckoutParams struct {
	EquipmentID  int64
	EmployeeID   int64
	Location     *string
	DueDate      *time.Time
	ConditionOut *models.Condition
	Notes        *string
	ProcessedBy  int64
}

// CheckinParams are the inputs for an explicit checkin. The open checkout row
// must match both EquipmentID and EmployeeID; a checkin attempted with the
// wrong employee fails with ErrNoOpenCheckout even when another employee
// holds the item. That strictness is intentional and load-bearing for the
// explicit flow.
type CheckinParams struct {
	EquipmentID int64
	EmployeeID  int64
	ConditionIn *models.Condition
	Notes       *string
	ProcessedBy int64
}

// QuickCheckoutParams are the inputs for the scan-driven checkout flow.
type QuickCheckoutParams struct {
	AssetTag       string
	EmployeeSearch string
	Location       *string
	DueDate        *time.Time
	Notes          *string
	ProcessedBy    int64
}

// QuickCheckinParams are the inputs for the scan-driven checkin flow.
type QuickCheckinParams struct {
	AssetTag    string
	ConditionIn *models.Condition
	Notes       *string
	ProcessedBy int64
}

// QuickCheckoutResult carries the new transaction plus the resolved rows so
// the caller can echo them back without extra lookups.
type QuickCheckoutResult struct {
	Transaction *models.Transaction
	Equipment   models.Equipment
	Employee    models.Employee
}

// QuickCheckinResult reports what was returned and who had it.
type QuickCheckinResult struct {
	Equipment    models.Equipment
	EmployeeName string
	CheckoutDate time.Time
}

// ResolveStatus derives the availability of an equipment item from its latest
// open checkout row. No open checkout means available. Read-only.
func (l *Ledger) ResolveStatus(ctx context.Context, equipmentID int64) (models.AvailabilityView, error) {
	var view models.AvailabilityView
	var holderID int64
	var holderName string
	var location sql.NullString
	var dueDate, checkoutDate sql.NullTime

	err := l.DB.QueryRowContext(ctx, `
		SELECT t.employee_id, emp.first_name || ' ' || emp.last_name,
		       t.location, t.due_date, t.processed_at
		FROM equipment_transactions t
		JOIN employees emp ON t.employee_id = emp.id
		WHERE t.equipment_id = $1 AND t.transaction_type = 'checkout' AND t.returned_date IS NULL
		ORDER BY t.processed_at DESC
		LIMIT 1`, equipmentID).Scan(&holderID, &holderName, &location, &dueDate, &checkoutDate)
	if err == sql.ErrNoRows {
		view.Status = models.StatusAvailable
		return view, nil
	}
	if err != nil {
		return view, err
	}

	view.Status = models.StatusCheckedOut
	view.HolderID = &holderID
	view.HolderName = &holderName
	if location.Valid {
		view.Location = &location.String
	}
	if dueDate.Valid {
		view.DueDate = &dueDate.Time
	}
	if checkoutDate.Valid {
		view.CheckoutDate = &checkoutDate.Time
	}
	return view, nil
}

// Checkout validates preconditions in order (equipment, availability,
// employee; first failure wins) and appends one checkout row. The partial
// unique index on open checkouts backstops the availability check: if two
// requests race past it, one insert loses and is reported as
// ErrAlreadyCheckedOut.
func (l *Ledger) Checkout(ctx context.Context, p CheckoutParams) (*models.Transaction, error) {
	var equipmentID int64
	err := l.DB.QueryRowContext(ctx,
		`SELECT id FROM equipment WHERE id = $1 AND active`, p.EquipmentID).Scan(&equipmentID)
	if err == sql.ErrNoRows {
		return nil, ErrEquipmentNotFound
	}
	if err != nil {
		return nil, err
	}

	view, err := l.ResolveStatus(ctx, p.EquipmentID)
	if err != nil {
		return nil, err
	}
	if view.Status == models.StatusCheckedOut {
		return nil, ErrAlreadyCheckedOut
	}

	var employeeID int64
	err = l.DB.QueryRowContext(ctx,
		`SELECT id FROM employees WHERE id = $1 AND active`, p.EmployeeID).Scan(&employeeID)
	if err == sql.ErrNoRows {
		return nil, ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}

	var id int64
	err = l.DB.QueryRowContext(ctx, `
		INSERT INTO equipment_transactions
			(equipment_id, employee_id, transaction_type, location, due_date, condition_out, notes, processed_by)
		VALUES ($1, $2, 'checkout', $3, $4, $5, $6, $7)
		RETURNING id`,
		p.EquipmentID, p.EmployeeID, p.Location, p.DueDate, p.ConditionOut, p.Notes, p.ProcessedBy).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyCheckedOut
		}
		return nil, err
	}

	return l.GetTransaction(ctx, id)
}

// Checkin closes the open checkout matching both equipment and employee and
// records a checkin row. The row update, the checkin insert and the optional
// equipment condition update commit or roll back as one unit.
func (l *Ledger) Checkin(ctx context.Context, p CheckinParams) (*models.Transaction, error) {
	var checkoutID int64
	err := l.DB.QueryRowContext(ctx, `
		SELECT id FROM equipment_transactions
		WHERE equipment_id = $1 AND employee_id = $2
		  AND transaction_type = 'checkout' AND returned_date IS NULL
		ORDER BY processed_at DESC
		LIMIT 1`, p.EquipmentID, p.EmployeeID).Scan(&checkoutID)
	if err == sql.ErrNoRows {
		return nil, ErrNoOpenCheckout
	}
	if err != nil {
		return nil, err
	}

	id, err := l.closeCheckout(ctx, checkoutID, p.EquipmentID, p.EmployeeID, p.ConditionIn, p.Notes, p.ProcessedBy)
	if err != nil {
		return nil, err
	}
	return l.GetTransaction(ctx, id)
}

// QuickCheckout resolves a scanned asset tag and a free-text employee search
// term, then performs a checkout. The condition recorded on the way out
// defaults to the equipment's current condition.
func (l *Ledger) QuickCheckout(ctx context.Context, p QuickCheckoutParams) (*QuickCheckoutResult, error) {
	eq, err := l.MatchEquipment(ctx, p.AssetTag)
	if err != nil {
		return nil, err
	}

	view, err := l.ResolveStatus(ctx, eq.ID)
	if err != nil {
		return nil, err
	}
	if view.Status == models.StatusCheckedOut {
		return nil, ErrAlreadyCheckedOut
	}

	emp, err := l.MatchEmployee(ctx, p.EmployeeSearch)
	if err != nil {
		return nil, err
	}

	conditionOut := eq.Condition
	tx, err := l.Checkout(ctx, CheckoutParams{
		EquipmentID:  eq.ID,
		EmployeeID:   emp.ID,
		Location:     p.Location,
		DueDate:      p.DueDate,
		ConditionOut: &conditionOut,
		Notes:        p.Notes,
		ProcessedBy:  p.ProcessedBy,
	})
	if err != nil {
		return nil, err
	}

	return &QuickCheckoutResult{Transaction: tx, Equipment: *eq, Employee: *emp}, nil
}

// QuickCheckin resolves a scanned asset tag and closes the item's open
// checkout regardless of who scanned it; the holder is implied by the ledger.
func (l *Ledger) QuickCheckin(ctx context.Context, p QuickCheckinParams) (*QuickCheckinResult, error) {
	eq, err := l.MatchEquipment(ctx, p.AssetTag)
	if err != nil {
		return nil, err
	}

	var checkoutID, holderID int64
	var holderName string
	var checkoutDate time.Time
	err = l.DB.QueryRowContext(ctx, `
		SELECT t.id, t.employee_id, emp.first_name || ' ' || emp.last_name, t.processed_at
		FROM equipment_transactions t
		JOIN employees emp ON t.employee_id = emp.id
		WHERE t.equipment_id = $1 AND t.transaction_type = 'checkout' AND t.returned_date IS NULL
		ORDER BY t.processed_at DESC
		LIMIT 1`, eq.ID).Scan(&checkoutID, &holderID, &holderName, &checkoutDate)
	if err == sql.ErrNoRows {
		return nil, ErrNoOpenCheckout
	}
	if err != nil {
		return nil, err
	}

	if _, err := l.closeCheckout(ctx, checkoutID, eq.ID, holderID, p.ConditionIn, p.Notes, p.ProcessedBy); err != nil {
		return nil, err
	}

	return &QuickCheckinResult{
		Equipment:    *eq,
		EmployeeName: holderName,
		CheckoutDate: checkoutDate,
	}, nil
}

// closeCheckout performs the checkin write sequence in one DB transaction:
// stamp the original checkout row, insert the checkin row, and update the
// equipment condition when one was reported. Returns the new checkin row id.
func (l *Ledger) closeCheckout(ctx context.Context, checkoutID, equipmentID, employeeID int64, conditionIn *models.Condition, notes *string, processedBy int64) (int64, error) {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE equipment_transactions
		SET returned_date = now(), condition_in = $1, notes = COALESCE($2, notes)
		WHERE id = $3 AND returned_date IS NULL`, conditionIn, notes, checkoutID)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost a race with another checkin for the same row.
		return 0, ErrNoOpenCheckout
	}

	var checkinID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO equipment_transactions
			(equipment_id, employee_id, transaction_type, condition_in, notes, processed_by)
		VALUES ($1, $2, 'checkin', $3, $4, $5)
		RETURNING id`, equipmentID, employeeID, conditionIn, notes, processedBy).Scan(&checkinID)
	if err != nil {
		return 0, err
	}

	if conditionIn != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE equipment SET condition = $1, updated_at = now() WHERE id = $2`,
			*conditionIn, equipmentID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return checkinID, nil
}

// MatchEquipment resolves a scanned asset tag to an active equipment row.
func (l *Ledger) MatchEquipment(ctx context.Context, assetTag string) (*models.Equipment, error) {
	var eq models.Equipment
	var notes sql.NullString
	err := l.DB.QueryRowContext(ctx, `
		SELECT id, asset_tag, manufacturer, make, model, serial_number, condition, notes, active, created_at, updated_at
		FROM equipment
		WHERE asset_tag = $1 AND active`, assetTag).Scan(
		&eq.ID, &eq.AssetTag, &eq.Manufacturer, &eq.Make, &eq.Model,
		&eq.SerialNumber, &eq.Condition, &notes, &eq.Active, &eq.CreatedAt, &eq.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrEquipmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if notes.Valid {
		eq.Notes = &notes.String
	}
	return &eq, nil
}

// MatchEmployee resolves a free-text search term to an active employee:
// exact employee_id, exact email, or case-insensitive substring of
// "first last". When several employees match the substring, the lowest id
// wins so resolution never depends on storage order.
func (l *Ledger) MatchEmployee(ctx context.Context, term string) (*models.Employee, error) {
	var emp models.Employee
	var department, jobTitle, phone sql.NullString
	err := l.DB.QueryRowContext(ctx, `
		SELECT id, employee_id, email, first_name, last_name, department, job_title, phone, active, created_at, updated_at
		FROM employees
		WHERE active AND (
			employee_id = $1 OR
			email = $1 OR
			(first_name || ' ' || last_name) ILIKE '%' || $1 || '%'
		)
		ORDER BY id
		LIMIT 1`, term).Scan(
		&emp.ID, &emp.EmployeeID, &emp.Email, &emp.FirstName, &emp.LastName,
		&department, &jobTitle, &phone, &emp.Active, &emp.CreatedAt, &emp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
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
	return &emp, nil
}

// ListOverdue returns open checkouts whose due date has passed, oldest due
// first.
func (l *Ledger) ListOverdue(ctx context.Context) ([]models.Transaction, error) {
	rows, err := l.DB.QueryContext(ctx, `
		SELECT `+transactionColumns+`,
		       GREATEST(0, (CURRENT_DATE - t.due_date))::int AS days_overdue
		FROM equipment_transactions t
		JOIN equipment e ON t.equipment_id = e.id
		JOIN employees emp ON t.employee_id = emp.id
		LEFT JOIN admins adm ON t.processed_by = adm.id
		WHERE t.transaction_type = 'checkout'
		  AND t.returned_date IS NULL
		  AND t.due_date < CURRENT_DATE
		ORDER BY t.due_date ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		var daysOverdue int
		if err := scanTransaction(rows, &t, &daysOverdue); err != nil {
			return nil, err
		}
		t.DaysOverdue = &daysOverdue
		out = append(out, t)
	}
	return out, rows.Err()
}

// HasOpenCheckout reports whether an equipment item currently has an open
// checkout. Used as the soft-delete guard.
func (l *Ledger) HasOpenCheckout(ctx context.Context, equipmentID int64) (bool, error) {
	var n int
	err := l.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM equipment_transactions
		WHERE equipment_id = $1 AND transaction_type = 'checkout' AND returned_date IS NULL`,
		equipmentID).Scan(&n)
	return n > 0, err
}

// OpenCheckoutCount reports how many items an employee currently holds. Used
// as the deactivation guard.
func (l *Ledger) OpenCheckoutCount(ctx context.Context, employeeID int64) (int, error) {
	var n int
	err := l.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM equipment_transactions
		WHERE employee_id = $1 AND transaction_type = 'checkout' AND returned_date IS NULL`,
		employeeID).Scan(&n)
	return n, err
}

const transactionColumns = `
	t.id, t.equipment_id, t.employee_id, t.transaction_type, t.location,
	t.due_date, t.condition_out, t.condition_in, t.notes, t.processed_by,
	t.processed_at, t.returned_date,
	e.asset_tag, e.manufacturer, e.make, e.model,
	emp.first_name || ' ' || emp.last_name, emp.email, adm.name`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner, t *models.Transaction, extra ...any) error {
	var location, notes, processedByName sql.NullString
	var conditionOut, conditionIn sql.NullString
	var dueDate, returnedDate sql.NullTime
	var processedBy sql.NullInt64

	dest := []any{
		&t.ID, &t.EquipmentID, &t.EmployeeID, &t.TransactionType, &location,
		&dueDate, &conditionOut, &conditionIn, &notes, &processedBy,
		&t.ProcessedAt, &returnedDate,
		&t.AssetTag, &t.Manufacturer, &t.Make, &t.Model,
		&t.EmployeeName, &t.EmployeeEmail, &processedByName,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
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
	return nil
}

// GetTransaction fetches a single ledger entry enriched with equipment and
// employee join fields.
func (l *Ledger) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	var t models.Transaction
	err := scanTransaction(l.DB.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM equipment_transactions t
		JOIN equipment e ON t.equipment_id = e.id
		JOIN employees emp ON t.employee_id = emp.id
		LEFT JOIN admins adm ON t.processed_by = adm.id
		WHERE t.id = $1`, id), &t)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %d: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
