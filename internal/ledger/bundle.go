package ledger

import (
	"context"
	"database/sql"
	"time"

	"equiptrack-api/internal/models"
)

// The bundle ledger runs the same state machine as the equipment ledger over
// its own table. A bundle checkout does not mark member equipment as
// individually checked out; the two ledgers are deliberately independent.

// BundleCheckoutParams are the inputs for checking out a bundle.
type BundleCheckoutParams struct {
	BundleID    int64
	EmployeeID  int64
	Location    *string
	DueDate     *time.Time
	Notes       *string
	ProcessedBy int64
}

// BundleCheckinParams are the inputs for checking in a bundle. Like the
// explicit equipment checkin, the open row must match both bundle and
// employee.
type BundleCheckinParams struct {
	BundleID    int64
	EmployeeID  int64
	ConditionIn *models.Condition
	Notes       *string
	ProcessedBy int64
}

// ResolveBundleStatus derives the availability of a bundle from its latest
// open checkout row.
func (l *Ledger) ResolveBundleStatus(ctx context.Context, bundleID int64) (models.AvailabilityView, error) {
	var view models.AvailabilityView
	var holderID int64
	var holderName string
	var location sql.NullString
	var dueDate, checkoutDate sql.NullTime

	err := l.DB.QueryRowContext(ctx, `
		SELECT t.employee_id, emp.first_name || ' ' || emp.last_name,
		       t.location, t.due_date, t.processed_at
		FROM bundle_transactions t
		JOIN employees emp ON t.employee_id = emp.id
		WHERE t.bundle_id = $1 AND t.transaction_type = 'checkout' AND t.returned_date IS NULL
		ORDER BY t.processed_at DESC
		LIMIT 1`, bundleID).Scan(&holderID, &holderName, &location, &dueDate, &checkoutDate)
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

// CheckoutBundle validates bundle, availability and employee in that order,
// then appends one checkout row to the bundle ledger. The partial unique
// index on open bundle checkouts closes the same race as on equipment.
func (l *Ledger) CheckoutBundle(ctx context.Context, p BundleCheckoutParams) (*models.BundleTransaction, error) {
	var bundleID int64
	err := l.DB.QueryRowContext(ctx,
		`SELECT id FROM bundles WHERE id = $1 AND active`, p.BundleID).Scan(&bundleID)
	if err == sql.ErrNoRows {
		return nil, ErrBundleNotFound
	}
	if err != nil {
		return nil, err
	}

	view, err := l.ResolveBundleStatus(ctx, p.BundleID)
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
		INSERT INTO bundle_transactions
			(bundle_id, employee_id, transaction_type, location, due_date, notes, processed_by)
		VALUES ($1, $2, 'checkout', $3, $4, $5, $6)
		RETURNING id`,
		p.BundleID, p.EmployeeID, p.Location, p.DueDate, p.Notes, p.ProcessedBy).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyCheckedOut
		}
		return nil, err
	}

	return l.GetBundleTransaction(ctx, id)
}

// CheckinBundle closes the open bundle checkout matching both bundle and
// employee and records a checkin row, atomically.
func (l *Ledger) CheckinBundle(ctx context.Context, p BundleCheckinParams) (*models.BundleTransaction, error) {
	var checkoutID int64
	err := l.DB.QueryRowContext(ctx, `
		SELECT id FROM bundle_transactions
		WHERE bundle_id = $1 AND employee_id = $2
		  AND transaction_type = 'checkout' AND returned_date IS NULL
		ORDER BY processed_at DESC
		LIMIT 1`, p.BundleID, p.EmployeeID).Scan(&checkoutID)
	if err == sql.ErrNoRows {
		return nil, ErrNoOpenCheckout
	}
	if err != nil {
		return nil, err
	}

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE bundle_transactions
		SET returned_date = now(), condition_in = $1, notes = COALESCE($2, notes)
		WHERE id = $3 AND returned_date IS NULL`, p.ConditionIn, p.Notes, checkoutID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNoOpenCheckout
	}

	var checkinID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO bundle_transactions
			(bundle_id, employee_id, transaction_type, condition_in, notes, processed_by)
		VALUES ($1, $2, 'checkin', $3, $4, $5)
		RETURNING id`, p.BundleID, p.EmployeeID, p.ConditionIn, p.Notes, p.ProcessedBy).Scan(&checkinID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return l.GetBundleTransaction(ctx, checkinID)
}

// BundleHasOpenCheckout reports whether a bundle currently has an open
// checkout. Used as the bundle soft-delete guard.
func (l *Ledger) BundleHasOpenCheckout(ctx context.Context, bundleID int64) (bool, error) {
	var n int
	err := l.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bundle_transactions
		WHERE bundle_id = $1 AND transaction_type = 'checkout' AND returned_date IS NULL`,
		bundleID).Scan(&n)
	return n > 0, err
}

// GetBundleTransaction fetches a single bundle ledger entry with join fields.
func (l *Ledger) GetBundleTransaction(ctx context.Context, id int64) (*models.BundleTransaction, error) {
	var t models.BundleTransaction
	var location, notes sql.NullString
	var conditionOut, conditionIn sql.NullString
	var dueDate, returnedDate sql.NullTime
	var processedBy sql.NullInt64

	err := l.DB.QueryRowContext(ctx, `
		SELECT t.id, t.bundle_id, t.employee_id, t.transaction_type, t.location,
		       t.due_date, t.condition_out, t.condition_in, t.notes, t.processed_by,
		       t.processed_at, t.returned_date,
		       b.name, emp.first_name || ' ' || emp.last_name, emp.email
		FROM bundle_transactions t
		JOIN bundles b ON t.bundle_id = b.id
		JOIN employees emp ON t.employee_id = emp.id
		WHERE t.id = $1`, id).Scan(
		&t.ID, &t.BundleID, &t.EmployeeID, &t.TransactionType, &location,
		&dueDate, &conditionOut, &conditionIn, &notes, &processedBy,
		&t.ProcessedAt, &returnedDate,
		&t.BundleName, &t.EmployeeName, &t.EmployeeEmail)
	if err != nil {
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
	return &t, nil
}
