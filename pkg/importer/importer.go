// Package importer loads employee rosters from Excel workbooks exported by
// HR systems. Column headers are matched against a YAML mapping so the same
// code handles differently-labelled exports.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tealeg/xlsx/v3"
	"gopkg.in/yaml.v3"
)

// ImportOptions defines the configuration for roster import operations
type ImportOptions struct {
	MappingPath string // default "configs/mapping/employees.yaml"
	DryRun      bool
	MaxErrors   int // default 50
}

// RowError represents an error that occurred during row processing
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportSummary contains the overall import statistics
type ImportSummary struct {
	Inserted int        `json:"inserted"`
	Updated  int        `json:"updated"`
	Skipped  int        `json:"skipped"`
	Errors   int        `json:"errors"`
	Samples  []RowError `json:"error_samples,omitempty"`
	DryRun   bool       `json:"dry_run"`
}

// MappingConfig represents the YAML mapping configuration
type MappingConfig struct {
	Version int                 `yaml:"version"`
	Sheet   string              `yaml:"sheet"` // empty means first sheet
	Columns map[string]string   `yaml:"columns"`
	Aliases map[string][]string `yaml:"aliases"`
}

// employee columns accepted by the importer; employee_id and email form the
// upsert keys.
var requiredFields = []string{"employee_id", "email", "first_name", "last_name"}

func defaultMapping() *MappingConfig {
	return &MappingConfig{
		Version: 1,
		Columns: map[string]string{
			"Employee ID": "employee_id",
			"Email":       "email",
			"First Name":  "first_name",
			"Last Name":   "last_name",
			"Department":  "department",
			"Job Title":   "job_title",
			"Phone":       "phone",
		},
		Aliases: map[string][]string{
			"Employee ID": {"Emp ID", "Staff ID"},
			"Email":       {"Email Address", "Work Email"},
			"Job Title":   {"Title", "Position"},
			"Phone":       {"Phone Number", "Mobile"},
		},
	}
}

func loadMappingConfig(path string) (*MappingConfig, error) {
	if path == "" {
		return defaultMapping(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultMapping(), nil
		}
		return nil, err
	}
	var cfg MappingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid mapping file %s: %w", path, err)
	}
	if len(cfg.Columns) == 0 {
		return nil, fmt.Errorf("mapping file %s defines no columns", path)
	}
	return &cfg, nil
}

// headerIndex maps destination field names to column indexes using the
// mapping's headers and their aliases, case-insensitively.
func headerIndex(row *xlsx.Row, maxCol int, cfg *MappingConfig) map[string]int {
	wanted := map[string]string{}
	for header, field := range cfg.Columns {
		wanted[strings.ToUpper(header)] = field
		for _, alias := range cfg.Aliases[header] {
			wanted[strings.ToUpper(alias)] = field
		}
	}

	idx := map[string]int{}
	for col := 0; col < maxCol; col++ {
		cell := row.GetCell(col)
		if cell == nil {
			break
		}
		name := strings.TrimSpace(cell.String())
		if name == "" {
			continue
		}
		if field, ok := wanted[strings.ToUpper(name)]; ok {
			idx[field] = col
		}
	}
	return idx
}

// ImportEmployees processes an Excel roster and upserts employee rows.
// A dry run executes the full upsert sequence inside a transaction that is
// rolled back, so validation and conflict behavior match a real run.
func ImportEmployees(ctx context.Context, db *pgxpool.Pool, r io.Reader, opts ImportOptions) (ImportSummary, error) {
	summary := ImportSummary{DryRun: opts.DryRun}

	if db == nil {
		return summary, errors.New("database pool is required")
	}

	// Set defaults
	if opts.MappingPath == "" {
		opts.MappingPath = "configs/mapping/employees.yaml"
	}
	if opts.MaxErrors == 0 {
		opts.MaxErrors = 50
	}

	mapping, err := loadMappingConfig(opts.MappingPath)
	if err != nil {
		return summary, fmt.Errorf("failed to load mapping config: %w", err)
	}

	// xlsx needs an io.ReaderAt, so buffer the upload first
	data, err := io.ReadAll(r)
	if err != nil {
		return summary, fmt.Errorf("failed to read Excel file: %w", err)
	}

	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return summary, fmt.Errorf("failed to open Excel file: %w", err)
	}
	if len(xlFile.Sheets) == 0 {
		return summary, errors.New("workbook has no sheets")
	}

	sheet := xlFile.Sheets[0]
	if mapping.Sheet != "" {
		sheet = nil
		for _, sh := range xlFile.Sheets {
			if strings.EqualFold(sh.Name, mapping.Sheet) {
				sheet = sh
				break
			}
		}
		if sheet == nil {
			return summary, fmt.Errorf("sheet %q not found in workbook", mapping.Sheet)
		}
	}

	headerRow, err := sheet.Row(0)
	if err != nil {
		return summary, fmt.Errorf("failed to read header row: %w", err)
	}
	idx := headerIndex(headerRow, sheet.MaxCol, mapping)
	for _, field := range requiredFields {
		if _, ok := idx[field]; !ok {
			return summary, fmt.Errorf("missing required column for %s", field)
		}
	}

	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return summary, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for rowIdx := 1; ; rowIdx++ {
		row, err := sheet.Row(rowIdx)
		if err != nil {
			break // No more rows
		}

		values := map[string]string{}
		for field, col := range idx {
			if cell := row.GetCell(col); cell != nil {
				values[field] = strings.TrimSpace(cell.String())
			}
		}

		// Skip blank rows
		empty := true
		for _, v := range values {
			if v != "" {
				empty = false
				break
			}
		}
		if empty {
			summary.Skipped++
			continue
		}

		if msg := validateRow(values); msg != "" {
			summary.Errors++
			if len(summary.Samples) < 10 {
				summary.Samples = append(summary.Samples, RowError{
					Sheet:   sheet.Name,
					Row:     rowIdx + 1,
					Message: msg,
				})
			}
			if summary.Errors > opts.MaxErrors {
				return summary, fmt.Errorf("too many errors (%d), stopping import", summary.Errors)
			}
			continue
		}

		// xmax = 0 distinguishes a fresh insert from a conflict update
		var inserted bool
		err = tx.QueryRow(ctx, `
			INSERT INTO employees (employee_id, email, first_name, last_name, department, job_title, phone)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
			ON CONFLICT (employee_id) DO UPDATE SET
				email = EXCLUDED.email,
				first_name = EXCLUDED.first_name,
				last_name = EXCLUDED.last_name,
				department = COALESCE(EXCLUDED.department, employees.department),
				job_title = COALESCE(EXCLUDED.job_title, employees.job_title),
				phone = COALESCE(EXCLUDED.phone, employees.phone),
				updated_at = now()
			RETURNING (xmax = 0)`,
			values["employee_id"], values["email"], values["first_name"], values["last_name"],
			values["department"], values["job_title"], values["phone"]).Scan(&inserted)
		if err != nil {
			summary.Errors++
			if len(summary.Samples) < 10 {
				summary.Samples = append(summary.Samples, RowError{
					Sheet:   sheet.Name,
					Row:     rowIdx + 1,
					Message: err.Error(),
				})
			}
			if summary.Errors > opts.MaxErrors {
				return summary, fmt.Errorf("too many errors (%d), stopping import", summary.Errors)
			}
			// The transaction is poisoned after a statement error; give up on
			// this batch rather than continuing with guaranteed failures.
			if !isRowLevelError(err) {
				return summary, fmt.Errorf("import aborted at row %d: %w", rowIdx+1, err)
			}
			continue
		}

		if inserted {
			summary.Inserted++
		} else {
			summary.Updated++
		}
	}

	if opts.DryRun {
		return summary, tx.Rollback(ctx)
	}
	return summary, tx.Commit(ctx)
}

func validateRow(values map[string]string) string {
	for _, field := range requiredFields {
		if values[field] == "" {
			return fmt.Sprintf("missing %s", field)
		}
	}
	if !strings.Contains(values["email"], "@") {
		return fmt.Sprintf("invalid email %q", values["email"])
	}
	return ""
}

// isRowLevelError reports whether the statement failed in a way that leaves
// the surrounding transaction usable. Postgres aborts the transaction on any
// statement error, so this is always false for pgx; kept as a seam for
// drivers with savepoint support.
func isRowLevelError(error) bool {
	return false
}
