package response

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"atstore-api/pkg/apierror"
)

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "APIError",
			err:      apierror.NotFound("order not found"),
			wantCode: http.StatusNotFound,
			wantBody: `{"success":false,"error":{"code":"NOT_FOUND","message":"order not found"}}`,
		},
		{
			name:     "WrappedAPIError",
			err:      fmt.Errorf("settle: %w", apierror.Underpayment("short")),
			wantCode: http.StatusBadRequest,
			wantBody: `{"success":false,"error":{"code":"UNDERPAYMENT","message":"short"}}`,
		},
		{
			name:     "PlainErrorIsHidden",
			err:      errors.New("dial tcp 10.0.0.1:5432: refused"),
			wantCode: http.StatusInternalServerError,
			wantBody: `{"success":false,"error":{"code":"INTERNAL_ERROR","message":"an unexpected error occurred"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, tt.err)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, tt.wantCode, StatusOf(tt.err))
		})
	}
}

func TestJSONWithMeta(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONWithMeta(rec, http.StatusOK, []string{"a"}, 2, 10, 25, 3)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t,
		`{"success":true,"data":["a"],"meta":{"page":2,"limit":10,"total":25,"totalPages":3}}`,
		rec.Body.String())
}
