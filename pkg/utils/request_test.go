package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleRequest struct {
	Amount int64  `json:"amount" validate:"gt=0"`
	Reason string `json:"reason" validate:"required,max=20"`
}

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
	}{
		{"valid", "application/json", `{"amount":50,"reason":"damaged"}`, http.StatusOK},
		{"charset suffix", "application/json; charset=utf-8", `{"amount":50,"reason":"damaged"}`, http.StatusOK},
		{"wrong content type", "text/plain", `{}`, http.StatusUnsupportedMediaType},
		{"unknown field", "application/json", `{"amount":50,"reason":"x","extra":1}`, http.StatusBadRequest},
		{"fails validation", "application/json", `{"amount":0,"reason":"x"}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()

			var dst sampleRequest
			status, _ := DecodeJSONBody(w, req, &dst)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestValidateFlattensErrors(t *testing.T) {
	err := Validate(&sampleRequest{})
	assert.EqualError(t, err, "Amount failed on gt; Reason failed on required")
}

func TestBuildErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	BuildErrorResponse(w, http.StatusConflict, "Duplicate", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"status":false,"message":"Duplicate"}`, w.Body.String())
}
