// handlers_test.go - Tests for the API endpoints
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mdconvert/backend/internal/convert"
	"github.com/mdconvert/backend/internal/intake"
	"github.com/mdconvert/backend/internal/models"
	"github.com/mdconvert/backend/internal/staging"
	"github.com/mdconvert/backend/internal/testutil"
)

const testSizeCap = 1024 * 1024 // 1 MB keeps multipart fixtures small

func newTestHandler(t *testing.T, conv convert.Converter) (*Handler, staging.Store) {
	t.Helper()

	store, err := staging.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	if conv == nil {
		conv = &testutil.StubConverter{Markdown: "# converted\n"}
	}

	h := NewHandler(
		store,
		intake.NewManager(store, testSizeCap),
		convert.NewDispatcher(store, conv),
		func() bool { return true },
	)
	return h, store
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for name, content := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func postUpload(t *testing.T, e *echo.Echo, h *Handler, files map[string]string) (*httptest.ResponseRecorder, batchResponse) {
	t.Helper()

	body, contentType := multipartBody(t, files)
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.HandleUpload(c))

	var resp batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestHandleHealth(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if assert.NoError(t, h.HandleHealth(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"converter":"available"`)
	}

	h.converterAvailable = func() bool { return false }
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if assert.NoError(t, h.HandleHealth(c)) {
		assert.Contains(t, rec.Body.String(), `"converter":"missing"`)
	}
}

func TestHandleUpload(t *testing.T) {
	t.Run("single file converts", func(t *testing.T) {
		e := echo.New()
		h, store := newTestHandler(t, nil)

		rec, resp := postUpload(t, e, h, map[string]string{"report.docx": "doc bytes"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, resp.BatchID)
		require.Len(t, resp.Files, 1)

		entry := resp.Files[0]
		assert.Equal(t, "report.docx", entry.Name)
		assert.Equal(t, string(models.StatusConverted), entry.Status)
		assert.NotEmpty(t, entry.ID)

		result, ok := store.Result(entry.ID)
		require.True(t, ok)
		assert.Equal(t, "# converted\n", result.Markdown)
	})

	t.Run("missing files field", func(t *testing.T) {
		e := echo.New()
		h, _ := newTestHandler(t, nil)

		body := new(bytes.Buffer)
		writer := multipart.NewWriter(body)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/files/upload", body)
		req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := h.HandleUpload(c)
		require.Error(t, err)

		apiErr, ok := err.(*APIError)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	})

	t.Run("empty file is rejected, siblings convert", func(t *testing.T) {
		e := echo.New()
		h, store := newTestHandler(t, nil)

		_, resp := postUpload(t, e, h, map[string]string{
			"empty.txt": "",
			"good.txt":  "content",
		})

		require.Len(t, resp.Files, 2)

		byName := make(map[string]batchEntry)
		for _, entry := range resp.Files {
			byName[entry.Name] = entry
		}

		rejected := byName["empty.txt"]
		assert.Equal(t, "rejected", rejected.Status)
		assert.Equal(t, "EMPTY_INPUT", rejected.ErrorCode)
		assert.Empty(t, rejected.ID)

		converted := byName["good.txt"]
		assert.Equal(t, string(models.StatusConverted), converted.Status)

		// The rejected file was never staged
		assert.Len(t, store.List(), 1)
	})

	t.Run("oversized file is rejected before staging", func(t *testing.T) {
		e := echo.New()
		h, store := newTestHandler(t, nil)

		_, resp := postUpload(t, e, h, map[string]string{
			"big.bin": strings.Repeat("x", testSizeCap+1),
		})

		require.Len(t, resp.Files, 1)
		entry := resp.Files[0]
		assert.Equal(t, "rejected", entry.Status)
		assert.Equal(t, "OVERSIZED_INPUT", entry.ErrorCode)
		assert.Contains(t, entry.Error, "exceeds size limit")
		assert.Empty(t, store.List())
	})

	t.Run("conversion failure is isolated per file", func(t *testing.T) {
		e := echo.New()

		store, err := staging.NewLocalStore(t.TempDir())
		require.NoError(t, err)

		conv := &failByNameConverter{failSuffix: ".xyz"}
		h := NewHandler(
			store,
			intake.NewManager(store, testSizeCap),
			convert.NewDispatcher(store, conv),
			func() bool { return true },
		)

		_, resp := postUpload(t, e, h, map[string]string{
			"ok.txt":  "fine",
			"bad.xyz": "unconvertible",
		})

		require.Len(t, resp.Files, 2)

		byName := make(map[string]batchEntry)
		for _, entry := range resp.Files {
			byName[entry.Name] = entry
		}

		assert.Equal(t, string(models.StatusConverted), byName["ok.txt"].Status)

		failed := byName["bad.xyz"]
		assert.Equal(t, string(models.StatusFailed), failed.Status)
		assert.Equal(t, "UNSUPPORTED_FORMAT", failed.ErrorCode)
		assert.NotEmpty(t, failed.ID)

		// The failed file stays staged with its failure recorded
		info, ok := store.Get(failed.ID)
		require.True(t, ok)
		assert.Equal(t, models.StatusFailed, info.Status)
	})
}

// failByNameConverter fails any path with the given suffix.
type failByNameConverter struct {
	failSuffix string
}

func (f *failByNameConverter) Convert(_ context.Context, path string) (string, error) {
	if strings.HasSuffix(path, f.failSuffix) {
		return "", &convert.Error{
			Kind: convert.UnsupportedFormat,
			Path: path,
			Err:  assert.AnError,
		}
	}
	return "# ok\n", nil
}

func TestHandleListAndGet(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, nil)

	_, resp := postUpload(t, e, h, map[string]string{"a.txt": "a"})
	id := resp.Files[0].ID

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if assert.NoError(t, h.HandleListFiles(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"a.txt"`)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/files/"+id, nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	if assert.NoError(t, h.HandleGetFile(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"converted"`)
	}

	// Unknown ID
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("ghost")
	err := h.HandleGetFile(c)
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestResultAndDownloadAgree(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, &testutil.StubConverter{Markdown: "# Title\n\nbody text\n"})

	_, resp := postUpload(t, e, h, map[string]string{"notes.docx": "doc"})
	id := resp.Files[0].ID

	// Preview path
	req := httptest.NewRequest(http.MethodGet, "/api/files/"+id+"/result", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, h.HandleGetResult(c))

	var result models.ConversionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	// Download path
	req = httptest.NewRequest(http.MethodGet, "/api/files/"+id+"/download", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, h.HandleDownload(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, result.Markdown, rec.Body.String(), "preview and download must serve identical markdown")
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `filename="notes.md"`)
}

func TestHandleGetResultMsgpack(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, &testutil.StubConverter{Markdown: "# mp\n"})

	_, resp := postUpload(t, e, h, map[string]string{"a.txt": "a"})
	id := resp.Files[0].ID

	req := httptest.NewRequest(http.MethodGet, "/api/files/"+id+"/result/msgpack", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, h.HandleGetResultMsgpack(c))

	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

	var result models.ConversionResult
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "# mp\n", result.Markdown)
	assert.Equal(t, id, result.SourceID)
}

func TestHandleDownload_FailedConversion(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, &failByNameConverter{failSuffix: ".xyz"})

	_, resp := postUpload(t, e, h, map[string]string{"bad.xyz": "x"})
	id := resp.Files[0].ID

	req := httptest.NewRequest(http.MethodGet, "/api/files/"+id+"/download", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)

	err := h.HandleDownload(c)
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
}

func TestHandleDeleteFile(t *testing.T) {
	e := echo.New()
	h, store := newTestHandler(t, nil)

	_, resp := postUpload(t, e, h, map[string]string{"a.txt": "a"})
	id := resp.Files[0].ID

	del := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/api/files/"+id, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(id)
		require.NoError(t, h.HandleDeleteFile(c))
		return rec
	}

	assert.Equal(t, http.StatusNoContent, del().Code)
	_, ok := store.Get(id)
	assert.False(t, ok)

	// Deleting again succeeds identically
	assert.Equal(t, http.StatusNoContent, del().Code)
}

func TestHandleCleanup(t *testing.T) {
	e := echo.New()
	h, store := newTestHandler(t, nil)

	postUpload(t, e, h, map[string]string{"a.txt": "a", "b.txt": "b"})
	require.Len(t, store.List(), 2)

	req := httptest.NewRequest(http.MethodPost, "/api/cleanup", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, h.HandleCleanup(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed": 2}`, rec.Body.String())
	assert.Empty(t, store.List())
}
