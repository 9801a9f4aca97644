//go:build integration

package tests

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"equiptrack-api/internal/ledger"
	"equiptrack-api/internal/models"
	"equiptrack-api/internal/testutil"
)

var seq int64

func nextSeq() int64 {
	seq++
	return seq
}

func createTestAdmin(t *testing.T) int64 {
	t.Helper()
	var id int64
	err := testDB.QueryRow(`
		INSERT INTO admins (email, password_hash, roles)
		VALUES ($1, 'x', '{admin}')
		RETURNING id`, fmt.Sprintf("ledger-admin-%d@test.local", nextSeq())).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create test admin: %v", err)
	}
	return id
}

func createTestEquipment(t *testing.T) int64 {
	t.Helper()
	n := nextSeq()
	var id int64
	err := testDB.QueryRow(`
		INSERT INTO equipment (asset_tag, manufacturer, model, serial_number, condition)
		VALUES ($1, 'Dell', 'Latitude 7440', $2, 'Good')
		RETURNING id`,
		fmt.Sprintf("IT-900%03d-TST", n), fmt.Sprintf("SN-LEDGER-%d", n)).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create test equipment: %v", err)
	}
	return id
}

func createTestEmployee(t *testing.T, firstName, lastName string) int64 {
	t.Helper()
	n := nextSeq()
	var id int64
	err := testDB.QueryRow(`
		INSERT INTO employees (employee_id, email, first_name, last_name, department)
		VALUES ($1, $2, $3, $4, 'Engineering')
		RETURNING id`,
		fmt.Sprintf("EMP-%04d", n), fmt.Sprintf("emp%d@test.local", n),
		firstName, lastName).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create test employee: %v", err)
	}
	return id
}

func TestCheckoutCheckinLifecycle(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()
	l := ledger.New(testDB)

	adminID := createTestAdmin(t)
	equipmentID := createTestEquipment(t)
	employeeID := createTestEmployee(t, "Grace", "Hopper")

	// New equipment is available
	view, err := l.ResolveStatus(ctx, equipmentID)
	if err != nil {
		t.Fatalf("ResolveStatus failed: %v", err)
	}
	if view.Status != models.StatusAvailable {
		t.Errorf("Expected status available, got %s", view.Status)
	}

	due := time.Now().AddDate(0, 0, 14)
	tx, err := l.Checkout(ctx, ledger.CheckoutParams{
		EquipmentID: equipmentID,
		EmployeeID:  employeeID,
		DueDate:     &due,
		ProcessedBy: adminID,
	})
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	if tx.ID == 0 {
		t.Error("Expected transaction ID to be set")
	}

	// Checked out now, held by the employee
	view, err = l.ResolveStatus(ctx, equipmentID)
	if err != nil {
		t.Fatalf("ResolveStatus failed: %v", err)
	}
	if view.Status != models.StatusCheckedOut {
		t.Errorf("Expected status checked_out, got %s", view.Status)
	}
	if view.HolderID == nil || *view.HolderID != employeeID {
		t.Errorf("Expected holder %d, got %v", employeeID, view.HolderID)
	}
	if view.HolderName == nil || *view.HolderName != "Grace Hopper" {
		t.Errorf("Expected holder name 'Grace Hopper', got %v", view.HolderName)
	}

	// Second checkout of the same item is rejected
	_, err = l.Checkout(ctx, ledger.CheckoutParams{
		EquipmentID: equipmentID,
		EmployeeID:  createTestEmployee(t, "Ada", "Lovelace"),
		ProcessedBy: adminID,
	})
	if !errors.Is(err, ledger.ErrAlreadyCheckedOut) {
		t.Errorf("Expected ErrAlreadyCheckedOut, got %v", err)
	}

	// Checkin closes the cycle
	cond := models.ConditionFair
	checkin, err := l.Checkin(ctx, ledger.CheckinParams{
		EquipmentID: equipmentID,
		EmployeeID:  employeeID,
		ConditionIn: &cond,
		ProcessedBy: adminID,
	})
	if err != nil {
		t.Fatalf("Checkin failed: %v", err)
	}
	if checkin.TransactionType != models.TransactionCheckin {
		t.Errorf("Expected checkin transaction, got %s", checkin.TransactionType)
	}

	view, err = l.ResolveStatus(ctx, equipmentID)
	if err != nil {
		t.Fatalf("ResolveStatus failed: %v", err)
	}
	if view.Status != models.StatusAvailable {
		t.Errorf("Expected status available after checkin, got %s", view.Status)
	}

	// Condition recorded at checkin sticks to the equipment row
	var condition string
	if err := testDB.QueryRow(`SELECT condition FROM equipment WHERE id = $1`, equipmentID).Scan(&condition); err != nil {
		t.Fatalf("Failed to read equipment condition: %v", err)
	}
	if condition != "Fair" {
		t.Errorf("Expected condition 'Fair', got %q", condition)
	}

	// History keeps both rows
	var count int
	if err := testDB.QueryRow(`SELECT COUNT(*) FROM equipment_transactions WHERE equipment_id = $1`, equipmentID).Scan(&count); err != nil {
		t.Fatalf("Failed to count transactions: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 transaction rows, got %d", count)
	}
}

func TestCheckinWrongEmployeeFails(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()
	l := ledger.New(testDB)

	adminID := createTestAdmin(t)
	equipmentID := createTestEquipment(t)
	holderID := createTestEmployee(t, "Katherine", "Johnson")
	otherID := createTestEmployee(t, "Margaret", "Hamilton")

	if _, err := l.Checkout(ctx, ledger.CheckoutParams{
		EquipmentID: equipmentID,
		EmployeeID:  holderID,
		ProcessedBy: adminID,
	}); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}

	_, err := l.Checkin(ctx, ledger.CheckinParams{
		EquipmentID: equipmentID,
		EmployeeID:  otherID,
		ProcessedBy: adminID,
	})
	if !errors.Is(err, ledger.ErrNoOpenCheckout) {
		t.Errorf("Expected ErrNoOpenCheckout, got %v", err)
	}

	// Still held by the original employee
	view, err := l.ResolveStatus(ctx, equipmentID)
	if err != nil {
		t.Fatalf("ResolveStatus failed: %v", err)
	}
	if view.Status != models.StatusCheckedOut {
		t.Errorf("Expected status checked_out, got %s", view.Status)
	}
}

func TestCheckoutPreconditionOrder(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()
	l := ledger.New(testDB)
	adminID := createTestAdmin(t)

	// Unknown equipment beats unknown employee
	_, err := l.Checkout(ctx, ledger.CheckoutParams{
		EquipmentID: 99999999,
		EmployeeID:  99999999,
		ProcessedBy: adminID,
	})
	if !errors.Is(err, ledger.ErrEquipmentNotFound) {
		t.Errorf("Expected ErrEquipmentNotFound, got %v", err)
	}

	// Known equipment, unknown employee
	equipmentID := createTestEquipment(t)
	_, err = l.Checkout(ctx, ledger.CheckoutParams{
		EquipmentID: equipmentID,
		EmployeeID:  99999999,
		ProcessedBy: adminID,
	})
	if !errors.Is(err, ledger.ErrEmployeeNotFound) {
		t.Errorf("Expected ErrEmployeeNotFound, got %v", err)
	}
}

func TestQuickFlows(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()
	l := ledger.New(testDB)

	adminID := createTestAdmin(t)
	equipmentID := createTestEquipment(t)
	createTestEmployee(t, "Alan", "Turing")

	var assetTag string
	if err := testDB.QueryRow(`SELECT asset_tag FROM equipment WHERE id = $1`, equipmentID).Scan(&assetTag); err != nil {
		t.Fatalf("Failed to read asset tag: %v", err)
	}

	out, err := l.QuickCheckout(ctx, ledger.QuickCheckoutParams{
		AssetTag:       assetTag,
		EmployeeSearch: "Turing",
		ProcessedBy:    adminID,
	})
	if err != nil {
		t.Fatalf("QuickCheckout failed: %v", err)
	}
	if out.Equipment.ID != equipmentID {
		t.Errorf("Expected equipment %d, got %d", equipmentID, out.Equipment.ID)
	}
	if out.Employee.LastName != "Turing" {
		t.Errorf("Expected employee Turing, got %s", out.Employee.LastName)
	}
	// Condition at checkout defaults to the equipment's current condition
	if out.Transaction.ConditionOut == nil || *out.Transaction.ConditionOut != models.ConditionGood {
		t.Errorf("Expected condition_out 'good', got %v", out.Transaction.ConditionOut)
	}

	// Quick checkout of a held item reports the conflict
	if _, err := l.QuickCheckout(ctx, ledger.QuickCheckoutParams{
		AssetTag:       assetTag,
		EmployeeSearch: "Turing",
		ProcessedBy:    adminID,
	}); !errors.Is(err, ledger.ErrAlreadyCheckedOut) {
		t.Errorf("Expected ErrAlreadyCheckedOut, got %v", err)
	}

	in, err := l.QuickCheckin(ctx, ledger.QuickCheckinParams{
		AssetTag:    assetTag,
		ProcessedBy: adminID,
	})
	if err != nil {
		t.Fatalf("QuickCheckin failed: %v", err)
	}
	if in.EmployeeName != "Alan Turing" {
		t.Errorf("Expected 'Alan Turing', got %q", in.EmployeeName)
	}

	// Nothing open anymore
	if _, err := l.QuickCheckin(ctx, ledger.QuickCheckinParams{
		AssetTag:    assetTag,
		ProcessedBy: adminID,
	}); !errors.Is(err, ledger.ErrNoOpenCheckout) {
		t.Errorf("Expected ErrNoOpenCheckout, got %v", err)
	}
}

func TestMatchEmployeeTieBreak(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()
	l := ledger.New(testDB)

	firstID := createTestEmployee(t, "Tiebreak", "Zeta")
	createTestEmployee(t, "Tiebreak", "Omega")

	emp, err := l.MatchEmployee(ctx, "Tiebreak")
	if err != nil {
		t.Fatalf("MatchEmployee failed: %v", err)
	}
	if emp.ID != firstID {
		t.Errorf("Expected lowest id %d to win the tie, got %d", firstID, emp.ID)
	}
}

func TestListOverdue(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()
	l := ledger.New(testDB)

	adminID := createTestAdmin(t)
	employeeID := createTestEmployee(t, "Late", "Returner")

	older := createTestEquipment(t)
	newer := createTestEquipment(t)
	onTime := createTestEquipment(t)

	pastFar := time.Now().AddDate(0, 0, -10)
	pastNear := time.Now().AddDate(0, 0, -2)
	future := time.Now().AddDate(0, 0, 7)

	for _, c := range []struct {
		equipmentID int64
		due         time.Time
	}{
		{older, pastFar},
		{newer, pastNear},
		{onTime, future},
	} {
		if _, err := l.Checkout(ctx, ledger.CheckoutParams{
			EquipmentID: c.equipmentID,
			EmployeeID:  employeeID,
			DueDate:     &c.due,
			ProcessedBy: adminID,
		}); err != nil {
			t.Fatalf("Checkout failed: %v", err)
		}
	}

	overdue, err := l.ListOverdue(ctx)
	if err != nil {
		t.Fatalf("ListOverdue failed: %v", err)
	}

	var gotOlder, gotNewer, gotOnTime bool
	olderPos, newerPos := -1, -1
	for i, tx := range overdue {
		switch tx.EquipmentID {
		case older:
			gotOlder = true
			olderPos = i
		case newer:
			gotNewer = true
			newerPos = i
		case onTime:
			gotOnTime = true
		}
	}

	if !gotOlder || !gotNewer {
		t.Fatalf("Expected both overdue items in the list, got older=%v newer=%v", gotOlder, gotNewer)
	}
	if gotOnTime {
		t.Error("Item due in the future must not be listed as overdue")
	}
	if olderPos > newerPos {
		t.Errorf("Expected most overdue first, got positions %d and %d", olderPos, newerPos)
	}

	for _, tx := range overdue {
		if tx.EquipmentID == older {
			if tx.DaysOverdue == nil || *tx.DaysOverdue < 9 {
				t.Errorf("Expected at least 9 days overdue, got %v", tx.DaysOverdue)
			}
		}
	}
}

func TestDeactivateEmployeeBlockedWhileHolding(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()
	l := ledger.New(testDB)

	adminID := createTestAdmin(t)
	equipmentID := createTestEquipment(t)
	employeeID := createTestEmployee(t, "Departing", "Holder")

	if _, err := l.Checkout(ctx, ledger.CheckoutParams{
		EquipmentID: equipmentID,
		EmployeeID:  employeeID,
		ProcessedBy: adminID,
	}); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}

	deactivate := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("PUT", fmt.Sprintf("/employees/%d/deactivate", employeeID), nil)
		req.Header.Set("Authorization", "Bearer "+adminToken(t))
		w := httptest.NewRecorder()
		testServer.Router.ServeHTTP(w, req)
		return w
	}

	// Holding an open checkout blocks deactivation
	if w := deactivate(); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 while holding equipment, got %d", w.Code)
	}

	var active bool
	if err := testDB.QueryRow(`SELECT active FROM employees WHERE id = $1`, employeeID).Scan(&active); err != nil {
		t.Fatalf("Failed to read employee: %v", err)
	}
	if !active {
		t.Error("Employee must stay active after rejected deactivation")
	}

	if _, err := l.Checkin(ctx, ledger.CheckinParams{
		EquipmentID: equipmentID,
		EmployeeID:  employeeID,
		ProcessedBy: adminID,
	}); err != nil {
		t.Fatalf("Checkin failed: %v", err)
	}

	// Nothing held anymore, deactivation goes through
	if w := deactivate(); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204 after checkin, got %d", w.Code)
	}

	if err := testDB.QueryRow(`SELECT active FROM employees WHERE id = $1`, employeeID).Scan(&active); err != nil {
		t.Fatalf("Failed to read employee: %v", err)
	}
	if active {
		t.Error("Employee must be inactive after deactivation")
	}
}

func TestBundleLedgerIndependence(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()
	l := ledger.New(testDB)

	adminID := createTestAdmin(t)
	employeeID := createTestEmployee(t, "Bundle", "Borrower")
	equipmentID := createTestEquipment(t)

	var bundleID int64
	if err := testDB.QueryRow(`
		INSERT INTO bundles (name, description)
		VALUES ($1, 'field kit')
		RETURNING id`, fmt.Sprintf("Kit %d", nextSeq())).Scan(&bundleID); err != nil {
		t.Fatalf("Failed to create bundle: %v", err)
	}
	if _, err := testDB.Exec(`
		INSERT INTO bundle_contents (bundle_id, equipment_id) VALUES ($1, $2)`,
		bundleID, equipmentID); err != nil {
		t.Fatalf("Failed to add bundle contents: %v", err)
	}

	if _, err := l.CheckoutBundle(ctx, ledger.BundleCheckoutParams{
		BundleID:    bundleID,
		EmployeeID:  employeeID,
		ProcessedBy: adminID,
	}); err != nil {
		t.Fatalf("CheckoutBundle failed: %v", err)
	}

	// Bundle checkout does not touch the member item's own ledger
	view, err := l.ResolveStatus(ctx, equipmentID)
	if err != nil {
		t.Fatalf("ResolveStatus failed: %v", err)
	}
	if view.Status != models.StatusAvailable {
		t.Errorf("Expected member equipment to stay available, got %s", view.Status)
	}

	bundleView, err := l.ResolveBundleStatus(ctx, bundleID)
	if err != nil {
		t.Fatalf("ResolveBundleStatus failed: %v", err)
	}
	if bundleView.Status != models.StatusCheckedOut {
		t.Errorf("Expected bundle checked_out, got %s", bundleView.Status)
	}

	// Double bundle checkout rejected
	if _, err := l.CheckoutBundle(ctx, ledger.BundleCheckoutParams{
		BundleID:    bundleID,
		EmployeeID:  employeeID,
		ProcessedBy: adminID,
	}); !errors.Is(err, ledger.ErrAlreadyCheckedOut) {
		t.Errorf("Expected ErrAlreadyCheckedOut, got %v", err)
	}

	if _, err := l.CheckinBundle(ctx, ledger.BundleCheckinParams{
		BundleID:    bundleID,
		EmployeeID:  employeeID,
		ProcessedBy: adminID,
	}); err != nil {
		t.Fatalf("CheckinBundle failed: %v", err)
	}

	bundleView, err = l.ResolveBundleStatus(ctx, bundleID)
	if err != nil {
		t.Fatalf("ResolveBundleStatus failed: %v", err)
	}
	if bundleView.Status != models.StatusAvailable {
		t.Errorf("Expected bundle available after checkin, got %s", bundleView.Status)
	}
}
