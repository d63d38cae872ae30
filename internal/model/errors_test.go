package model

import (
	"net/http"
	"testing"
)

func TestAPIError(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantStatus int
		wantError  string
	}{
		{"不正リクエスト", NewBadRequestError("content type must be form data"), http.StatusBadRequest, "[400] content type must be form data"},
		{"認証エラー", NewUnauthorizedError("missing client_id"), http.StatusUnauthorized, "[401] missing client_id"},
		{"認可エラー", NewForbiddenError("unauthorized client"), http.StatusForbidden, "[403] unauthorized client"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.wantStatus)
			}
			if got := tt.err.Error(); got != tt.wantError {
				t.Errorf("Error() = %q, want %q", got, tt.wantError)
			}
		})
	}
}
