package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harga-pangan/console/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInspector(t *testing.T) *Inspector {
	in, err := NewInspector()
	require.NoError(t, err)
	t.Cleanup(func() { in.Close() })
	return in
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInspect(t *testing.T) {
	in := newInspector(t)

	var b strings.Builder
	b.WriteString("Tanggal;Harga\n")
	for i := 1; i <= 9; i++ {
		fmt.Fprintf(&b, "2024-01-%02d;%d\n", i, 35000+i)
	}
	content := b.String()
	path := writeFile(t, "kedelai.csv", content)

	preview, err := in.Inspect(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, preview.Path)
	assert.Equal(t, 9, preview.RowCount)
	assert.Equal(t, []string{"Tanggal", "Harga"}, preview.Columns)
	require.Len(t, preview.Rows, PreviewRows)
	assert.Equal(t, "2024-01-01", preview.Rows[0]["Tanggal"])
	assert.EqualValues(t, 35001, preview.Rows[0]["Harga"])
}

func TestInspect_QuotedPath(t *testing.T) {
	in := newInspector(t)
	path := writeFile(t, "o'brien.csv", "Tanggal;Harga\n2024-01-01;100\n")

	preview, err := in.Inspect(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, preview.RowCount)
}

func TestInspect_Rejects(t *testing.T) {
	in := newInspector(t)

	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"wrong extension", func(t *testing.T) string { return writeFile(t, "data.xlsx", "x") }},
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "none.csv") }},
		{"header only", func(t *testing.T) string { return writeFile(t, "empty.csv", "Tanggal;Harga\n") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := in.Inspect(context.Background(), tt.path(t))
			var validErr *apperr.ValidationError
			require.ErrorAs(t, err, &validErr)
			assert.Equal(t, "file", validErr.Field)
		})
	}
}

func TestInspect_CanceledContext(t *testing.T) {
	in := newInspector(t)
	path := writeFile(t, "kedelai.csv", "Tanggal;Harga\n2024-01-01;100\n")

	in.sem <- struct{}{}
	in.sem <- struct{}{}
	defer func() { <-in.sem; <-in.sem }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := in.Inspect(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}
