package saml

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openidx/saml-idp/internal/common/errors"
)

const soapArtifactResolve = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">
  <SOAP-ENV:Body>
    <samlp:ArtifactResolve xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"
        xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion"
        ID="_resolve-1" Version="2.0" IssueInstant="2026-08-29T12:00:00Z">
      <saml:Issuer>https://sp.example.com/metadata</saml:Issuer>
      <samlp:Artifact>ART123</samlp:Artifact>
    </samlp:ArtifactResolve>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

func soapContext(t *testing.T, body, contentType string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/saml/idp/artifact", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", contentType)
	return c
}

func TestDecodeArtifactResolve(t *testing.T) {
	c := soapContext(t, soapArtifactResolve, "text/xml")

	resolve, err := DecodeArtifactResolve(c)
	require.NoError(t, err)
	assert.Equal(t, "_resolve-1", resolve.ID)
	assert.Equal(t, "https://sp.example.com/metadata", resolve.Issuer)
	assert.Equal(t, "ART123", resolve.Artifact)
}

func TestDecodeArtifactResolveSOAP12ContentType(t *testing.T) {
	c := soapContext(t, soapArtifactResolve, "application/soap+xml")

	_, err := DecodeArtifactResolve(c)
	require.NoError(t, err)
}

func TestDecodeArtifactResolveRejectsWrongContentType(t *testing.T) {
	c := soapContext(t, soapArtifactResolve, "application/x-www-form-urlencoded")

	_, err := DecodeArtifactResolve(c)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrUnsupportedBinding))
}

func TestDecodeArtifactResolveRejectsMalformedXML(t *testing.T) {
	c := soapContext(t, "<Envelope><Body>", "text/xml")

	_, err := DecodeArtifactResolve(c)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrUnsupportedBinding))
}

func TestDecodeArtifactResolveRejectsEmptyBody(t *testing.T) {
	body := `<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/"><SOAP-ENV:Body/></SOAP-ENV:Envelope>`
	c := soapContext(t, body, "text/xml")

	_, err := DecodeArtifactResolve(c)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrUnsupportedBinding))
}

func TestEncodeSOAPResponse(t *testing.T) {
	out, err := EncodeSOAPResponse([]byte("<samlp:ArtifactResponse/>"))
	require.NoError(t, err)

	assert.Contains(t, string(out), "SOAP-ENV:Envelope")
	assert.Contains(t, string(out), "<samlp:ArtifactResponse/>")
}

const authnRequestXML = `<samlp:AuthnRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"
    xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion"
    ID="_req-1" Version="2.0" IssueInstant="2026-08-29T12:00:00Z"
    AssertionConsumerServiceURL="https://sp.example.com/acs">
  <saml:Issuer>https://sp.example.com/metadata</saml:Issuer>
</samlp:AuthnRequest>`

func TestDecodeRedirectRequest(t *testing.T) {
	var compressed bytes.Buffer
	writer, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = writer.Write([]byte(authnRequestXML))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	encoded := base64.StdEncoding.EncodeToString(compressed.Bytes())

	req, err := DecodeRedirectRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, "_req-1", req.ID)
	assert.Equal(t, "https://sp.example.com/metadata", req.Issuer)
	assert.Equal(t, "https://sp.example.com/acs", req.AssertionConsumerServiceURL)
}

func TestDecodeRedirectRequestRejectsUncompressed(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(authnRequestXML))

	_, err := DecodeRedirectRequest(encoded)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrUnsupportedBinding))
}

func TestDecodePostRequest(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(authnRequestXML))

	req, err := DecodePostRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, "_req-1", req.ID)
}

func TestDecodePostRequestRejectsBadBase64(t *testing.T) {
	_, err := DecodePostRequest("%%%not-base64%%%")
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrUnsupportedBinding))
}
