package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var out struct {
		Error ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Error
}

func TestWriteErrorAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, NewAppError("MISSING_SKU", "item has no sku", http.StatusUnprocessableEntity, nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeBody(t, rec)
	require.Equal(t, "MISSING_SKU", body.Code)
	require.Equal(t, "item has no sku", body.Message)
}

func TestWriteErrorSyntaxOffset(t *testing.T) {
	var v map[string]any
	syntaxErr := json.Unmarshal([]byte(`{"a":`), &v)
	rec := httptest.NewRecorder()
	WriteError(rec, NewAppError("VALIDATION_ERROR", "invalid request body", http.StatusBadRequest, syntaxErr))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, decodeBody(t, rec).Details)
}

func TestWriteErrorUnknown(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "INTERNAL", decodeBody(t, rec).Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	require.Equal(t, "192.0.2.1", ClientIP(req))
	req.Header.Set("X-Real-IP", "192.0.2.2")
	require.Equal(t, "192.0.2.2", ClientIP(req))
	req.Header.Set("X-Forwarded-For", "192.0.2.3, 10.0.0.1")
	require.Equal(t, "192.0.2.3", ClientIP(req))
	require.Equal(t, "", ClientIP(nil))
}

func TestClientIPSkipsGarbageHops(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	req.Header.Set("X-Forwarded-For", "unknown, 2001:db8::1")
	require.Equal(t, "2001:db8::1", ClientIP(req))
	req.Header.Set("X-Forwarded-For", "nope")
	require.Equal(t, "192.0.2.1", ClientIP(req))
}

func TestUnprocessable(t *testing.T) {
	cause := errors.New("discount exceeds total")
	appErr := Unprocessable("INVALID_DISCOUNT", cause)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
	require.Equal(t, "discount exceeds total", appErr.Message)
	require.ErrorIs(t, appErr, cause)
}
