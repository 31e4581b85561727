package validation

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidCompanyID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"acme", true},
		{"KR-1234567", true},
		{"corp:samsung.c-1", true},
		{"", false},
		{"-leading", false},
		{"has space", false},
		{"semi;colon", false},
		{strings.Repeat("a", MaxIDLength+1), false},
	}

	for _, tc := range tests {
		if got := IsValidCompanyID(tc.id); got != tc.valid {
			t.Errorf("IsValidCompanyID(%q) = %v, want %v", tc.id, got, tc.valid)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"he\x00llo", 10, "hello"},
	}

	for _, tc := range tests {
		if got := SanitizeString(tc.input, tc.maxLen); got != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, got, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("companyId", ""),
		ValidCompanyID("companyId", "bad id"),
		MaxLength("name", "ok", 10),
	)
	require.Len(t, errs, 2)
	assert.Equal(t, "companyId", errs[0].Field)
	assert.Equal(t, "companyId: is required", errs.Error())

	assert.Empty(t, Validate(Required("companyId", "acme"), ValidCompanyID("companyId", "acme")))
	assert.Equal(t, "validation failed", ValidationErrors{}.Error())
}

type scoreBody struct {
	CompanyID string  `validate:"required"`
	Total     float64 `validate:"gte=0"`
	Mode      string  `validate:"omitempty,oneof=flat tiered"`
}

func TestFromBinding(t *testing.T) {
	err := validator.New().Struct(scoreBody{Total: -1, Mode: "exp"})
	errs := FromBinding(err)
	require.Len(t, errs, 3)
	assert.Equal(t, ValidationError{Field: "CompanyID", Message: "is required"}, errs[0])
	assert.Equal(t, "must be at least 0", errs[1].Message)
	assert.Equal(t, "must be one of [flat tiered]", errs[2].Message)

	other := FromBinding(assert.AnError)
	require.Len(t, other, 1)
	assert.Equal(t, "body", other[0].Field)
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestSizeMiddleware(16))
	r.POST("/", func(c *gin.Context) {
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader("small")))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestCompanyIDParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/companies/:id", CompanyIDParamMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/companies/acme-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/companies/bad%3Bid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_company_id")
}
