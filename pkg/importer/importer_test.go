package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"
)

func TestLoadMappingConfig(t *testing.T) {
	t.Run("falls back to default when path is empty", func(t *testing.T) {
		cfg, err := loadMappingConfig("")
		require.NoError(t, err)
		assert.Equal(t, "employee_id", cfg.Columns["Employee ID"])
	})

	t.Run("falls back to default when file is missing", func(t *testing.T) {
		cfg, err := loadMappingConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "email", cfg.Columns["Email"])
	})

	t.Run("reads mapping from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mapping.yaml")
		content := "version: 1\nsheet: Staff\ncolumns:\n  \"Badge\": employee_id\n  \"Mail\": email\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := loadMappingConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "Staff", cfg.Sheet)
		assert.Equal(t, "employee_id", cfg.Columns["Badge"])
	})

	t.Run("rejects mapping without columns", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.yaml")
		require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

		_, err := loadMappingConfig(path)
		assert.Error(t, err)
	})

	t.Run("rejects invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("columns: [not: a: map"), 0o644))

		_, err := loadMappingConfig(path)
		assert.Error(t, err)
	})
}

func TestHeaderIndex(t *testing.T) {
	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("Roster")
	require.NoError(t, err)
	row := sheet.AddRow()
	for _, col := range []string{"  Emp ID ", "WORK EMAIL", "First Name", "Last Name", "Unrelated"} {
		row.AddCell().SetString(col)
	}

	idx := headerIndex(row, sheet.MaxCol, defaultMapping())

	assert.Equal(t, 0, idx["employee_id"]) // via alias, trimmed
	assert.Equal(t, 1, idx["email"])       // via alias, case-insensitive
	assert.Equal(t, 2, idx["first_name"])
	assert.Equal(t, 3, idx["last_name"])
	_, ok := idx["department"]
	assert.False(t, ok)
}

func TestValidateRow(t *testing.T) {
	valid := map[string]string{
		"employee_id": "E-1001",
		"email":       "jane@example.com",
		"first_name":  "Jane",
		"last_name":   "Doe",
	}
	assert.Empty(t, validateRow(valid))

	missing := map[string]string{"employee_id": "E-1001"}
	assert.Contains(t, validateRow(missing), "missing")

	badEmail := map[string]string{
		"employee_id": "E-1001",
		"email":       "not-an-email",
		"first_name":  "Jane",
		"last_name":   "Doe",
	}
	assert.Contains(t, validateRow(badEmail), "invalid email")
}
