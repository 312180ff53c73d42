// handlers_workflow.go - Admin training pipeline handlers
package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/harga-pangan/console/internal/komoditas"
	"github.com/harga-pangan/console/internal/logging"
	"github.com/harga-pangan/console/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// Staged file states.
const (
	StagedInspected = "inspected"
	StagedForwarded = "forwarded"
	StagedRejected  = "rejected"
	StagedFailed    = "failed"
)

// WorkflowHandlerImpl implements the WorkflowHandler interface
type WorkflowHandlerImpl struct {
	workflow  WorkflowService
	store     storage.Store
	inspector DatasetInspector
	logger    *log.Logger
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(wf WorkflowService, store storage.Store, inspector DatasetInspector) WorkflowHandler {
	return &WorkflowHandlerImpl{
		workflow:  wf,
		store:     store,
		inspector: inspector,
		logger:    logging.New("server"),
	}
}

type trainRequest struct {
	Komoditas string `json:"komoditas"`
}

// HandleGetWorkflow returns the pipeline snapshot
func (h *WorkflowHandlerImpl) HandleGetWorkflow(c echo.Context) error {
	return c.JSON(http.StatusOK, h.workflow.Snapshot())
}

// HandleRefresh reloads slots, the training job and charts from the backend
func (h *WorkflowHandlerImpl) HandleRefresh(c echo.Context) error {
	if err := h.workflow.Refresh(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.workflow.Snapshot())
}

// HandleJournal returns recent pipeline events
func (h *WorkflowHandlerImpl) HandleJournal(c echo.Context) error {
	return c.JSON(http.StatusOK, h.workflow.Journal())
}

// HandleUploadDataset stages a multipart CSV, inspects it and forwards it
// to the backend for one commodity
func (h *WorkflowHandlerImpl) HandleUploadDataset(c echo.Context) error {
	name := c.FormValue("komoditas")
	if !komoditas.Valid(name) {
		return NewValidationError("komoditas", fmt.Sprintf("Komoditas tidak dikenal: %s", name))
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return NewValidationError("file", "Tidak ada file yang dipilih")
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".csv") {
		return NewValidationError("file", "Tipe file tidak diperbolehkan. Gunakan .csv")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return NewBadRequestError("failed to read upload", err)
	}
	defer src.Close()

	info, err := h.store.Save(fileHeader.Filename, name, src)
	if err != nil {
		return NewInternalError("failed to stage file", err)
	}
	// Runs after the staged file is closed below.
	defer h.discard(info.ID)
	path, err := h.store.GetFilePath(info.ID)
	if err != nil {
		return NewInternalError("failed to locate staged file", err)
	}

	ctx := c.Request().Context()
	preview, err := h.inspector.Inspect(ctx, path)
	if err != nil {
		h.mark(info.ID, StagedRejected)
		return err
	}
	h.mark(info.ID, StagedInspected)

	f, err := os.Open(path)
	if err != nil {
		return NewInternalError("failed to open staged file", err)
	}
	defer f.Close()

	slot, err := h.workflow.Upload(ctx, name, fileHeader.Filename, f)
	if err != nil {
		h.mark(info.ID, StagedFailed)
		return err
	}
	h.mark(info.ID, StagedForwarded)

	h.logger.Infof("Dataset %s forwarded (%d rows inspected, %d accepted)", slot.Komoditas, preview.RowCount, slot.RowCount)
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"slot":     slot,
		"preview":  preview,
		"file":     info,
		"workflow": h.workflow.Snapshot(),
	})
}

// HandleDeleteDataset removes one commodity's dataset
func (h *WorkflowHandlerImpl) HandleDeleteDataset(c echo.Context) error {
	name := c.Param("komoditas")
	if err := h.workflow.Delete(c.Request().Context(), name); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.workflow.Snapshot())
}

// HandleStagedFiles lists uploads still being inspected or forwarded
func (h *WorkflowHandlerImpl) HandleStagedFiles(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return NewValidationError("limit", "limit harus berupa angka")
		}
		limit = n
	}

	files, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list staged files", err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandlePreprocess runs preprocessing for all datasets
func (h *WorkflowHandlerImpl) HandlePreprocess(c echo.Context) error {
	if err := h.workflow.Preprocess(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.workflow.Snapshot())
}

// HandleTrain starts training for one commodity or all of them
func (h *WorkflowHandlerImpl) HandleTrain(c echo.Context) error {
	var req trainRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid JSON body", err)
		}
	}

	if err := h.workflow.Train(c.Request().Context(), req.Komoditas); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, h.workflow.Snapshot())
}

func (h *WorkflowHandlerImpl) mark(id, status string) {
	if err := h.store.MarkStatus(id, status); err != nil {
		h.logger.Warnf("marking staged file %s: %v", id, err)
	}
}

// discard removes a staged file once its upload has been settled.
func (h *WorkflowHandlerImpl) discard(id string) {
	if err := h.store.Delete(id); err != nil {
		h.logger.Warnf("removing staged file %s: %v", id, err)
	}
}
