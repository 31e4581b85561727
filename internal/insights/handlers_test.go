package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/mbd888/dealscope/internal/circuitbreaker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGenerator struct {
	ins *Insight
	err error
}

func (s stubGenerator) Generate(context.Context, Request) (*Insight, error) { return s.ins, s.err }

func TestGenerateEndpointStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		gen  Generator
		code int
	}{
		{"ok", stubGenerator{ins: &Insight{Summary: "fine"}}, http.StatusOK},
		{"disabled", Disabled{}, http.StatusNotImplemented},
		{"circuit open", stubGenerator{err: circuitbreaker.ErrOpen}, http.StatusServiceUnavailable},
		{"rejected", stubGenerator{err: &StatusError{Code: 400}}, http.StatusBadGateway},
		{"failed", stubGenerator{err: errors.New("boom")}, http.StatusBadGateway},
	}
	body, _ := json.Marshal(testRequest())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			NewHandler(tt.gen).RegisterRoutes(r.Group("/v1"))
			req := httptest.NewRequest(http.MethodPost, "/v1/insights", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestGenerateEndpointValidation(t *testing.T) {
	r := gin.New()
	NewHandler(Disabled{}).RegisterRoutes(r.Group("/v1"))
	req := httptest.NewRequest(http.MethodPost, "/v1/insights", bytes.NewBufferString(`{"dealId":"d"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
