package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPathID(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		wantOK bool
	}{
		{"valid", "pat_3f1c2d4e-0000-4000-8000-000000000000", true},
		{"blank", "   ", false},
		{"too long", strings.Repeat("x", maxIDLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/patients/x", nil)
			req.SetPathValue("id", tt.id)
			rec := httptest.NewRecorder()

			id, ok := PathID(rec, req, "id", zap.NewNop())

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.id, id)
			} else {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			}
		})
	}
}
