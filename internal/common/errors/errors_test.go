package errors

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorError(t *testing.T) {
	err := New(ErrProtocol, "Malformed request", http.StatusBadRequest)
	assert.Equal(t, "[PROTOCOL_ERROR] Malformed request", err.Error())

	err = err.WithDetails("missing issuer")
	assert.Equal(t, "[PROTOCOL_ERROR] Malformed request: missing issuer", err.Error())
}

func TestAppErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := ConfigurationError("artifact store unavailable", inner)
	assert.Equal(t, inner, err.Unwrap())
}

func TestProtocolErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   ErrorCode
		status int
	}{
		{"access denied", AccessDenied("SAML 2.0 IdP is disabled"), ErrAccessDenied, http.StatusForbidden},
		{"unsupported binding", UnsupportedBinding("expected SOAP"), ErrUnsupportedBinding, http.StatusBadRequest},
		{"protocol error", ProtocolError("missing issuer"), ErrProtocol, http.StatusBadRequest},
		{"configuration error", ConfigurationError("no signing key", nil), ErrConfiguration, http.StatusInternalServerError},
		{"unknown entity", UnknownEntity("https://sp.example.com"), ErrUnknownEntity, http.StatusNotFound},
		{"not configured", NotConfigured("saml20-idp"), ErrNotConfigured, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
		})
	}
}

func TestIsErrorCode(t *testing.T) {
	err := UnsupportedBinding("wrong binding")
	assert.True(t, IsErrorCode(err, ErrUnsupportedBinding))
	assert.False(t, IsErrorCode(err, ErrProtocol))
	assert.False(t, IsErrorCode(fmt.Errorf("plain error"), ErrUnsupportedBinding))
}

func TestGetStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, GetStatusCode(AccessDenied("disabled")))
	assert.Equal(t, http.StatusInternalServerError, GetStatusCode(fmt.Errorf("plain error")))
}

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/saml/idp/artifact", nil)

	HandleError(c, AccessDenied("SAML 2.0 IdP is disabled"))

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "ACCESS_DENIED")
}

func TestHandleErrorWrapsPlainErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/saml/idp/sso", nil)

	HandleError(c, fmt.Errorf("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
