package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harga-pangan/console/internal/dataset"
	"github.com/harga-pangan/console/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowHandler_HandleUploadDataset(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "admin", "admin123")

	inspector, err := dataset.NewInspector()
	require.NoError(t, err)
	defer inspector.Close()

	csv := "Tanggal;Harga\n2024-01-01;35000\n2024-01-02;36000\n"

	t.Run("forwarded", func(t *testing.T) {
		store := testutil.NewMockStorage(t.TempDir())
		h := NewWorkflowHandler(s.workflow, store, inspector)

		rec := httptest.NewRecorder()
		c := echo.New().NewContext(uploadRequest(t, "Bawang Merah", "bawang.csv", csv), rec)

		require.NoError(t, h.HandleUploadDataset(c))
		assert.Equal(t, http.StatusCreated, rec.Code)

		deleted := store.Deleted()
		require.Len(t, deleted, 1)
		assert.Equal(t, []string{StagedInspected, StagedForwarded}, store.StatusHistory(deleted[0]))
		files, _ := store.List(0)
		assert.Empty(t, files)
	})

	t.Run("backend rejects", func(t *testing.T) {
		store := testutil.NewMockStorage(t.TempDir())
		h := NewWorkflowHandler(s.workflow, store, inspector)
		s.fake.FailNext("/api/admin/upload-csv", http.StatusInternalServerError)

		rec := httptest.NewRecorder()
		c := echo.New().NewContext(uploadRequest(t, "Bawang Merah", "bawang.csv", csv), rec)

		err := h.HandleUploadDataset(c)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadGateway, FromDomain(err).Status)

		deleted := store.Deleted()
		require.Len(t, deleted, 1)
		assert.Equal(t, []string{StagedInspected, StagedFailed}, store.StatusHistory(deleted[0]))
	})

	t.Run("rejected by inspection", func(t *testing.T) {
		store := testutil.NewMockStorage(t.TempDir())
		h := NewWorkflowHandler(s.workflow, store, inspector)

		rec := httptest.NewRecorder()
		c := echo.New().NewContext(uploadRequest(t, "Bawang Merah", "bawang.csv", "Tanggal;Harga\n"), rec)

		require.Error(t, h.HandleUploadDataset(c))
		deleted := store.Deleted()
		require.Len(t, deleted, 1)
		assert.Equal(t, []string{StagedRejected}, store.StatusHistory(deleted[0]))
	})

	t.Run("staging fails", func(t *testing.T) {
		store := testutil.NewMockStorage(t.TempDir())
		store.FailSave = true
		h := NewWorkflowHandler(s.workflow, store, inspector)

		rec := httptest.NewRecorder()
		c := echo.New().NewContext(uploadRequest(t, "Bawang Merah", "bawang.csv", csv), rec)

		err := h.HandleUploadDataset(c)
		require.Error(t, err)
		apiErr := FromDomain(err)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
		assert.Equal(t, testutil.ErrInjected.Error(), apiErr.Details)
	})
}

func TestWorkflowHandler_HandleStagedFiles_InvalidLimit(t *testing.T) {
	h := NewWorkflowHandler(nil, testutil.NewMockStorage(t.TempDir()), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/workflow/staged?limit=abc", nil)
	c := echo.New().NewContext(req, httptest.NewRecorder())

	err := h.HandleStagedFiles(c)
	require.Error(t, err)
	assert.Equal(t, "limit", FromDomain(err).Details)
}
