//go:build integration

package tests

import (
	"bytes"
	"context"
	"testing"

	"equiptrack-api/internal/testutil"
	"equiptrack-api/pkg/importer"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"
)

func buildRosterWorkbook(t *testing.T, rows [][]string) *bytes.Buffer {
	t.Helper()

	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("Roster")
	require.NoError(t, err)

	header := sheet.AddRow()
	for _, col := range []string{"Employee ID", "Email", "First Name", "Last Name", "Department"} {
		header.AddCell().SetString(col)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, val := range r {
			row.AddCell().SetString(val)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))
	return &buf
}

func TestImportEmployeesIntegration(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testutil.DSN())
	require.NoError(t, err)
	defer pool.Close()

	countEmployees := func(pattern string) int {
		var n int
		err := testDB.QueryRow(
			`SELECT COUNT(*) FROM employees WHERE employee_id LIKE $1`, pattern).Scan(&n)
		require.NoError(t, err)
		return n
	}

	t.Run("dry run leaves no rows", func(t *testing.T) {
		buf := buildRosterWorkbook(t, [][]string{
			{"IMP-DRY-1", "dry1@test.local", "Dry", "Run", "IT"},
		})

		sum, err := importer.ImportEmployees(ctx, pool, buf, importer.ImportOptions{DryRun: true})
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Inserted)
		assert.True(t, sum.DryRun)

		assert.Equal(t, 0, countEmployees("IMP-DRY-%"))
	})

	t.Run("inserts and updates", func(t *testing.T) {
		buf := buildRosterWorkbook(t, [][]string{
			{"IMP-1001", "imp1@test.local", "First", "Import", "IT"},
			{"IMP-1002", "imp2@test.local", "Second", "Import", "HR"},
		})

		sum, err := importer.ImportEmployees(ctx, pool, buf, importer.ImportOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Inserted)
		assert.Equal(t, 0, sum.Updated)
		assert.Equal(t, 2, countEmployees("IMP-10%"))

		// Re-import with changed data: same employee_id means update
		buf = buildRosterWorkbook(t, [][]string{
			{"IMP-1001", "imp1-new@test.local", "First", "Import", "Finance"},
		})

		sum, err = importer.ImportEmployees(ctx, pool, buf, importer.ImportOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, sum.Inserted)
		assert.Equal(t, 1, sum.Updated)

		var email, department string
		require.NoError(t, testDB.QueryRow(
			`SELECT email, department FROM employees WHERE employee_id = 'IMP-1001'`).
			Scan(&email, &department))
		assert.Equal(t, "imp1-new@test.local", email)
		assert.Equal(t, "Finance", department)
	})

	t.Run("collects row errors", func(t *testing.T) {
		buf := buildRosterWorkbook(t, [][]string{
			{"IMP-2001", "ok@test.local", "Good", "Row", "IT"},
			{"IMP-2002", "", "Missing", "Email", "IT"},
			{"IMP-2003", "no-at-sign", "Bad", "Email", "IT"},
		})

		sum, err := importer.ImportEmployees(ctx, pool, buf, importer.ImportOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Inserted)
		assert.Equal(t, 2, sum.Errors)
		require.Len(t, sum.Samples, 2)
		assert.Equal(t, "Roster", sum.Samples[0].Sheet)
	})

	t.Run("fails on missing required column", func(t *testing.T) {
		wb := xlsx.NewFile()
		sheet, err := wb.AddSheet("Roster")
		require.NoError(t, err)
		header := sheet.AddRow()
		header.AddCell().SetString("Employee ID")
		header.AddCell().SetString("Department")

		var buf bytes.Buffer
		require.NoError(t, wb.Write(&buf))

		_, err = importer.ImportEmployees(ctx, pool, &buf, importer.ImportOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing required column")
	})
}
