package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harga-pangan/console/internal/apperr"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDomain(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", apperr.NewValidationError("filter_days", "Filter hari harus 3, 7, atau 30"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"auth", apperr.NewAuthError("token kedaluwarsa", nil), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"backend 401", &apperr.APIError{StatusCode: 401, Endpoint: "/api/admin/datasets"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"backend 404", &apperr.APIError{StatusCode: 404, Endpoint: "/api/admin/delete-dataset", Message: "Dataset tidak ditemukan"}, http.StatusNotFound, "BACKEND_ERROR"},
		{"backend 409", &apperr.APIError{StatusCode: 409, Endpoint: "/api/admin/train-model"}, http.StatusConflict, "BACKEND_ERROR"},
		{"backend 500", &apperr.APIError{StatusCode: 500, Endpoint: "/api/admin/preprocess-data"}, http.StatusBadGateway, "BACKEND_ERROR"},
		{"network", &apperr.NetworkError{Endpoint: "/api/komoditas", Err: errors.New("connection refused")}, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"wrapped", fmt.Errorf("loading: %w", apperr.NewValidationError("days", "x")), http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := FromDomain(tt.err)
			require.NotNil(t, apiErr)
			assert.Equal(t, tt.wantStatus, apiErr.Status)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}

	assert.Nil(t, FromDomain(errors.New("boom")))
}

func TestErrorHandler(t *testing.T) {
	e := echo.New()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"api error", NewNotFoundError("komoditas", "jagung"), http.StatusNotFound, "NOT_FOUND"},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "method not allowed"), http.StatusMethodNotAllowed, "HTTP_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "UNKNOWN_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			ErrorHandler(tt.err, c)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}
