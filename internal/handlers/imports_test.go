package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"

	"equiptrack-api/pkg/importer"
)

func TestNewImportsHandler(t *testing.T) {
	h := NewImportsHandler(nil)

	assert.Nil(t, h.DB)
	assert.Equal(t, int64(20<<20), h.MaxBytes)
	assert.Equal(t, "configs/mapping/employees.yaml", h.DefaultMap)
}

func TestUploadEmployees(t *testing.T) {
	handler := NewImportsHandler(nil)

	t.Run("rejects non-multipart request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/imports/employees", strings.NewReader("not multipart"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		handler.UploadEmployees(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "multipart/form-data")
	})

	t.Run("rejects request without file", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("dry_run", "true"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/imports/employees", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()

		handler.UploadEmployees(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "file is required")
	})

	t.Run("rejects non-xlsx file", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "roster.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte("employee_id,email\nE1,a@b.c\n"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/imports/employees", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()

		handler.UploadEmployees(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), ".xlsx")
	})

	t.Run("fails without database pool", func(t *testing.T) {
		wb := xlsx.NewFile()
		sheet, err := wb.AddSheet("Roster")
		require.NoError(t, err)
		header := sheet.AddRow()
		for _, col := range []string{"Employee ID", "Email", "First Name", "Last Name"} {
			header.AddCell().SetString(col)
		}
		row := sheet.AddRow()
		for _, val := range []string{"E-1001", "jane@example.com", "Jane", "Doe"} {
			row.AddCell().SetString(val)
		}

		var xlsxBuf bytes.Buffer
		require.NoError(t, wb.Write(&xlsxBuf))

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "roster.xlsx")
		require.NoError(t, err)
		_, err = fw.Write(xlsxBuf.Bytes())
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/imports/employees", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()

		handler.UploadEmployees(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "IMPORT_FAILED", resp["error"])
	})
}

func TestIsXLSX(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"roster.xlsx", true},
		{"ROSTER.XLSX", true},
		{"roster.xls", false},
		{"roster.csv", false},
		{"roster", false},
		{"roster.xlsx.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			h := &multipart.FileHeader{Filename: tt.filename}
			assert.Equal(t, tt.want, isXLSX(h))
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()

	writeJSON(rec, http.StatusTeapot, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "world", body["hello"])
}

func TestImportOptionsDefaults(t *testing.T) {
	opts := importer.ImportOptions{}

	assert.Empty(t, opts.MappingPath)
	assert.False(t, opts.DryRun)
	assert.Zero(t, opts.MaxErrors)
}

func TestImportSummaryJSON(t *testing.T) {
	sum := importer.ImportSummary{
		Inserted: 3,
		Updated:  1,
		Skipped:  2,
		Errors:   1,
		Samples: []importer.RowError{
			{Sheet: "Roster", Row: 5, Message: "missing email"},
		},
		DryRun: true,
	}

	data, err := json.Marshal(sum)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(3), decoded["inserted"])
	assert.Equal(t, float64(1), decoded["updated"])
	assert.Equal(t, true, decoded["dry_run"])

	samples, ok := decoded["error_samples"].([]any)
	require.True(t, ok)
	require.Len(t, samples, 1)
}
