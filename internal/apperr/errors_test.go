package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAuth(t *testing.T) {
	assert.True(t, IsAuth(NewAuthError("token expired", nil)))
	assert.True(t, IsAuth(fmt.Errorf("polling: %w", &APIError{StatusCode: http.StatusUnauthorized})))
	assert.False(t, IsAuth(&APIError{StatusCode: http.StatusInternalServerError}))
	assert.False(t, IsAuth(errors.New("boom")))
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(&APIError{StatusCode: http.StatusConflict}))
	assert.False(t, IsConflict(&APIError{StatusCode: http.StatusBadRequest}))
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", NewValidationError("password", "Password minimal 6 karakter"), "Password minimal 6 karakter"},
		{"api with message", &APIError{StatusCode: 400, Message: "Tipe file tidak diperbolehkan"}, "Tipe file tidak diperbolehkan"},
		{"api without message", &APIError{StatusCode: 502}, "Server mengembalikan status 502"},
		{"api unauthorized", &APIError{StatusCode: 401, Message: "x"}, "Sesi berakhir, silakan login kembali"},
		{"network", &NetworkError{Endpoint: "/api/x", Err: errors.New("refused")}, "Tidak dapat terhubung ke server"},
		{"wrapped network", fmt.Errorf("upload: %w", &NetworkError{Err: errors.New("eof")}), "Tidak dapat terhubung ke server"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &NetworkError{Endpoint: "/api/auth/login", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "/api/auth/login")
}
