// Package api exposes the upload, result, download and cleanup endpoints.
package api

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mdconvert/backend/internal/convert"
	"github.com/mdconvert/backend/internal/intake"
	"github.com/mdconvert/backend/internal/models"
	"github.com/mdconvert/backend/internal/staging"
)

// Handler handles API requests.
type Handler struct {
	store              staging.Store
	intake             *intake.Manager
	dispatcher         *convert.Dispatcher
	converterAvailable func() bool
}

// NewHandler creates a new API handler.
func NewHandler(store staging.Store, intakeMgr *intake.Manager, dispatcher *convert.Dispatcher, converterAvailable func() bool) *Handler {
	return &Handler{
		store:              store,
		intake:             intakeMgr,
		dispatcher:         dispatcher,
		converterAvailable: converterAvailable,
	}
}

// RegisterRoutes attaches all API routes to the Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/health", h.HandleHealth)

	apiGroup.POST("/files/upload", h.HandleUpload)
	apiGroup.GET("/files", h.HandleListFiles)
	apiGroup.GET("/files/:id", h.HandleGetFile)
	apiGroup.GET("/files/:id/result", h.HandleGetResult)
	apiGroup.GET("/files/:id/result/msgpack", h.HandleGetResultMsgpack)
	apiGroup.GET("/files/:id/download", h.HandleDownload)
	apiGroup.DELETE("/files/:id", h.HandleDeleteFile)

	apiGroup.POST("/cleanup", h.HandleCleanup)
}

// HandleHealth returns server health status and converter availability.
func (h *Handler) HandleHealth(c echo.Context) error {
	converter := "available"
	if !h.converterAvailable() {
		converter = "missing"
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "ok",
		"converter": converter,
	})
}

// batchEntry is the per-file outcome reported for one upload submission.
// Files rejected at intake carry no id; they were never staged.
type batchEntry struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	Status    string `json:"status"`
	ErrorCode string `json:"errorCode,omitempty"`
	Error     string `json:"error,omitempty"`
}

// batchResponse groups the per-file outcomes of one upload submission.
type batchResponse struct {
	BatchID string       `json:"batchId"`
	Files   []batchEntry `json:"files"`
}

// HandleUpload accepts one or more files as multipart form data under the
// "files" field, stages each and converts them sequentially. A file
// failing intake or conversion never blocks its siblings.
func (h *Handler) HandleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return NewValidationError("files")
	}

	resp := batchResponse{
		BatchID: uuid.New().String(),
		Files:   make([]batchEntry, 0, len(headers)),
	}

	for _, fh := range headers {
		resp.Files = append(resp.Files, h.processUpload(c, fh))
	}

	return c.JSON(http.StatusOK, resp)
}

// processUpload stages and converts a single batch member, reducing every
// failure to a per-file entry.
func (h *Handler) processUpload(c echo.Context, fh *multipart.FileHeader) batchEntry {
	entry := batchEntry{
		Name:      fh.Filename,
		SizeBytes: fh.Size,
	}

	src, err := fh.Open()
	if err != nil {
		entry.Status = "rejected"
		entry.ErrorCode = "BAD_UPLOAD"
		entry.Error = "failed to open uploaded file: " + err.Error()
		return entry
	}
	defer src.Close()

	info, err := h.intake.Stage(fh.Filename, fh.Size, src)
	if err != nil {
		entry.Status = "rejected"
		entry.ErrorCode = intakeErrorCode(err)
		entry.Error = err.Error()
		return entry
	}

	entry.ID = info.ID
	entry.SizeBytes = info.SizeBytes

	result := h.dispatcher.Dispatch(c.Request().Context(), info.ID)
	if result.ErrorDetail != "" {
		entry.Status = string(models.StatusFailed)
		entry.ErrorCode = result.ErrorCode
		entry.Error = result.ErrorDetail
	} else {
		entry.Status = string(models.StatusConverted)
	}

	return entry
}

// intakeErrorCode maps intake failures onto wire-level error codes.
func intakeErrorCode(err error) string {
	var emptyErr *intake.EmptyError
	var oversizedErr *intake.OversizedError
	switch {
	case errors.As(err, &emptyErr):
		return "EMPTY_INPUT"
	case errors.As(err, &oversizedErr):
		return "OVERSIZED_INPUT"
	default:
		return "INTAKE_FAILED"
	}
}

// HandleListFiles returns all staged files, most recent first.
func (h *Handler) HandleListFiles(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.List())
}

// HandleGetFile returns metadata for a specific staged file.
func (h *Handler) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	info, ok := h.store.Get(id)
	if !ok {
		return NewNotFoundError("file", id)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleGetResult returns the conversion result for a staged file. This is
// the preview path; the download path serves the identical markdown text.
func (h *Handler) HandleGetResult(c echo.Context) error {
	id := c.Param("id")
	result, ok := h.store.Result(id)
	if !ok {
		return NewNotFoundError("result", id)
	}
	return c.JSON(http.StatusOK, result)
}

// HandleGetResultMsgpack returns the conversion result encoded as
// MessagePack, which is substantially smaller than JSON for large
// markdown payloads.
func (h *Handler) HandleGetResultMsgpack(c echo.Context) error {
	id := c.Param("id")
	result, ok := h.store.Result(id)
	if !ok {
		return NewNotFoundError("result", id)
	}

	data, err := msgpack.Marshal(result)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}

	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleDownload serves the converted markdown as an attachment named
// after the original file with its extension replaced by .md.
func (h *Handler) HandleDownload(c echo.Context) error {
	id := c.Param("id")
	info, ok := h.store.Get(id)
	if !ok {
		return NewNotFoundError("file", id)
	}

	result, ok := h.store.Result(id)
	if !ok {
		return NewNotFoundError("result", id)
	}
	if result.ErrorDetail != "" {
		return NewConflictError("file conversion failed: " + result.ErrorDetail)
	}

	filename := models.OutputName(info.OriginalName)
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(result.Markdown))
}

// HandleDeleteFile removes a staged file and its result. Deletion is
// idempotent: deleting an already-removed identifier succeeds.
func (h *Handler) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		return NewInternalError("failed to delete file", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleCleanup removes every staged file and result immediately,
// independent of the age-based sweep.
func (h *Handler) HandleCleanup(c echo.Context) error {
	removed, err := h.store.DeleteAll()
	if err != nil {
		return NewInternalError("cleanup failed", err)
	}
	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}
