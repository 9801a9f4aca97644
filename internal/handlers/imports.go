package handlers

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"equiptrack-api/pkg/importer"
)

// ImportsHandler handles employee roster import operations
type ImportsHandler struct {
	DB         *pgxpool.Pool
	MaxBytes   int64
	DefaultMap string
}

// NewImportsHandler creates a new imports handler
func NewImportsHandler(db *pgxpool.Pool) *ImportsHandler {
	return &ImportsHandler{
		DB:         db,
		MaxBytes:   20 << 20, // 20 MB
		DefaultMap: "configs/mapping/employees.yaml",
	}
}

// UploadEmployees handles Excel roster uploads for employee import
func (h *ImportsHandler) UploadEmployees(w http.ResponseWriter, r *http.Request) {
	// Limit body size
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes)

	// Require multipart
	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		http.Error(w, "content-type must be multipart/form-data", http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(h.MaxBytes); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	dryRun := r.FormValue("dry_run") == "true"
	mapping := r.FormValue("mapping")
	if mapping == "" {
		mapping = h.DefaultMap
	}
	maxErrors := 50
	if v := r.FormValue("max_errors"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxErrors = n
		}
	}

	// File
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !isXLSX(header) {
		http.Error(w, "only .xlsx files are accepted", http.StatusBadRequest)
		return
	}

	sum, impErr := importer.ImportEmployees(r.Context(), h.DB, file, importer.ImportOptions{
		MappingPath: mapping,
		DryRun:      dryRun,
		MaxErrors:   maxErrors,
	})
	if impErr != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "IMPORT_FAILED",
			"details": impErr.Error(),
			"data":    sum, // might include partial counts
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": sum,
		"meta": map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   "1.0.0",
		},
	})
}

// isXLSX checks if the uploaded file is an Excel .xlsx file
func isXLSX(h *multipart.FileHeader) bool {
	name := strings.ToLower(h.Filename)
	return strings.HasSuffix(name, ".xlsx")
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
