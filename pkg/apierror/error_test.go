package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	cause := errors.New("revision moved")
	err := fmt.Errorf("update listing: %w", Conflict("listing was modified concurrently").WithCause(cause))

	assert.True(t, HasCode(err, CodeConflict))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeConflict))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "revision moved")
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		status int
		code   string
	}{
		{"Validation", ValidationError("bad", FieldError{Field: "email", Message: "invalid"}), http.StatusBadRequest, CodeValidation},
		{"Underpayment", Underpayment("short"), http.StatusBadRequest, CodeUnderpayment},
		{"Unauthorized", Unauthorized(""), http.StatusUnauthorized, CodeUnauthorized},
		{"Forbidden", Forbidden(""), http.StatusForbidden, CodeForbidden},
		{"NotFound", NotFound(""), http.StatusNotFound, CodeNotFound},
		{"Conflict", Conflict("x"), http.StatusConflict, CodeConflict},
		{"OutOfStock", OutOfStock("x"), http.StatusConflict, CodeOutOfStock},
		{"Decryption", Decryption(""), http.StatusInternalServerError, CodeDecryption},
		{"Unavailable", ServiceUnavailable(""), http.StatusServiceUnavailable, CodeServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestToJSON_HidesCause(t *testing.T) {
	err := Decryption("").WithCause(errors.New("key mismatch"))
	body := string(err.ToJSON())
	assert.NotContains(t, body, "key mismatch")
	assert.Contains(t, body, `"DECRYPTION_ERROR"`)

	withDetails := ValidationError("bad", FieldError{Field: "email", Message: "invalid"})
	assert.Contains(t, string(withDetails.ToJSON()), `"details":[{"field":"email","message":"invalid"}]`)
}
