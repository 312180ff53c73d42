// Package dataset inspects commodity price CSV files with DuckDB before
// they are forwarded to the forecasting backend.
package dataset

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harga-pangan/console/internal/apperr"
	"github.com/harga-pangan/console/internal/logging"
	"github.com/harga-pangan/console/internal/models"
	"github.com/labstack/gommon/log"
	"github.com/marcboeker/go-duckdb"
)

// PreviewRows is how many rows Inspect returns.
const PreviewRows = 5

// Delimiter is the field separator of the price exports.
const Delimiter = ';'

// Inspector runs read_csv queries on an in-memory DuckDB database.
type Inspector struct {
	db     *sql.DB
	logger *log.Logger

	// limits concurrent scans
	sem chan struct{}
}

// NewInspector opens the in-memory database.
func NewInspector() (*Inspector, error) {
	logger := logging.New("dataset")

	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				logger.Warnf("pragma %q: %v", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	return &Inspector{
		db:     sql.OpenDB(connector),
		logger: logger,
		sem:    make(chan struct{}, 2),
	}, nil
}

// Close releases the database.
func (in *Inspector) Close() error {
	return in.db.Close()
}

// Inspect counts the rows of the CSV at path and returns its columns and
// the first PreviewRows rows. A missing file, a file that is not .csv or
// a file without data rows is rejected.
func (in *Inspector) Inspect(ctx context.Context, path string) (*models.DatasetPreview, error) {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return nil, apperr.NewValidationError("file", "Tipe file tidak diperbolehkan. Gunakan .csv")
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.NewValidationError("file", "File tidak ditemukan")
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	select {
	case in.sem <- struct{}{}:
		defer func() { <-in.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := time.Now()
	source := readCSV(path)

	var count int
	if err := in.db.QueryRowContext(ctx, "SELECT count(*) FROM "+source).Scan(&count); err != nil {
		in.logger.Warnf("reading %s: %v", path, err)
		return nil, apperr.NewValidationError("file", fmt.Sprintf("File CSV tidak dapat dibaca: %v", err))
	}
	if count == 0 {
		return nil, apperr.NewValidationError("file", "File CSV tidak berisi data")
	}

	rows, err := in.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", source, PreviewRows))
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", path, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("preview columns: %w", err)
	}

	preview := &models.DatasetPreview{
		Path:     path,
		RowCount: count,
		Columns:  columns,
		Rows:     make([]map[string]any, 0, PreviewRows),
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("preview scan: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		preview.Rows = append(preview.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("preview rows: %w", err)
	}

	in.logger.Debugf("inspected %s: %d rows, %d columns in %s", filepath.Base(path), count, len(columns), time.Since(start))
	return preview, nil
}

// readCSV builds the read_csv table expression for path. Table function
// arguments cannot be bound, so the path is quoted inline.
func readCSV(path string) string {
	quoted := strings.ReplaceAll(path, "'", "''")
	return fmt.Sprintf("read_csv('%s', delim='%c', header=true)", quoted, Delimiter)
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339)
	case []byte:
		return string(val)
	default:
		return val
	}
}
