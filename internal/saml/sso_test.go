package saml

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openidx/saml-idp/internal/saml/artifact"
)

func encodeRedirectRequest(t *testing.T, raw string) string {
	t.Helper()
	var compressed bytes.Buffer
	writer, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = writer.Write([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return base64.StdEncoding.EncodeToString(compressed.Bytes())
}

func testSession() *UserSession {
	return &UserSession{
		UserID: "user-1",
		Email:  "alice@example.com",
		Name:   "Alice",
		Groups: []string{"engineering"},
	}
}

func TestSSOFeatureGate(t *testing.T) {
	svc := newTestService(t, testHostedConfig(testKeyPair(t)), artifact.NewMemoryStore(), testServiceProvider())
	svc.cfg.EnableSAML20IdP = false

	encoded := encodeRedirectRequest(t, authnRequestXML)
	w := performRequest(t, svc, "GET", "/saml/idp/sso?SAMLRequest="+url.QueryEscape(encoded), "", "")
	require.Equal(t, 403, w.Code)
	assert.Contains(t, w.Body.String(), "ACCESS_DENIED")
}

func TestSSOUnauthenticatedRedirectsToLogin(t *testing.T) {
	svc := newTestService(t, testHostedConfig(testKeyPair(t)), artifact.NewMemoryStore(), testServiceProvider())

	encoded := encodeRedirectRequest(t, authnRequestXML)
	w := performRequest(t, svc, "GET", "/saml/idp/sso?SAMLRequest="+url.QueryEscape(encoded), "", "")
	require.Equal(t, 302, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestSSOMissingRequestIsProtocolError(t *testing.T) {
	svc := newTestService(t, testHostedConfig(testKeyPair(t)), artifact.NewMemoryStore(), testServiceProvider())

	w := performRequest(t, svc, "GET", "/saml/idp/sso", "", "")
	require.Equal(t, 400, w.Code)
	assert.Contains(t, w.Body.String(), "PROTOCOL_ERROR")
}

func TestSSOUnknownServiceProvider(t *testing.T) {
	svc := newTestService(t, testHostedConfig(testKeyPair(t)), artifact.NewMemoryStore())
	svc.sessions.(*StaticSessionAuthenticator).Session = testSession()

	encoded := encodeRedirectRequest(t, authnRequestXML)
	w := performRequest(t, svc, "GET", "/saml/idp/sso?SAMLRequest="+url.QueryEscape(encoded), "", "")
	require.Equal(t, 404, w.Code)
	assert.Contains(t, w.Body.String(), "UNKNOWN_ENTITY")
}

func TestSSOPostBindingDeliversSignedResponse(t *testing.T) {
	sp := testServiceProvider()
	svc := newTestService(t, testHostedConfig(testKeyPair(t)), artifact.NewMemoryStore(), sp)
	svc.sessions.(*StaticSessionAuthenticator).Session = testSession()

	encoded := base64.StdEncoding.EncodeToString([]byte(authnRequestXML))
	form := "SAMLRequest=" + url.QueryEscape(encoded) + "&RelayState=opaque-123"
	w := performRequest(t, svc, "POST", "/saml/idp/sso", form, "application/x-www-form-urlencoded")
	require.Equal(t, 200, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, sp.ACSURL)
	assert.Contains(t, body, `name="SAMLResponse"`)
	assert.Contains(t, body, `name="RelayState"`)
	assert.Contains(t, body, "opaque-123")
}

func TestSSOArtifactLifecycle(t *testing.T) {
	keyPair := testKeyPair(t)
	store := artifact.NewMemoryStore()

	sp := testServiceProvider()
	sp.SendArtifact = true
	svc := newTestService(t, testHostedConfig(keyPair), store, sp)
	svc.sessions.(*StaticSessionAuthenticator).Session = testSession()

	// Issue: authenticated SSO request for an artifact-enabled SP redirects
	// to the ACS with a SAMLart handle.
	encoded := encodeRedirectRequest(t, authnRequestXML)
	w := performRequest(t, svc, "GET", "/saml/idp/sso?SAMLRequest="+url.QueryEscape(encoded)+"&RelayState=opaque-123", "", "")
	require.Equal(t, 302, w.Code)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "sp.example.com", location.Host)
	artifactID := location.Query().Get("SAMLart")
	require.NotEmpty(t, artifactID)
	assert.Equal(t, "opaque-123", location.Query().Get("RelayState"))
	assert.Equal(t, 1, store.Len())

	// Redeem: the SP resolves the artifact over the SOAP back-channel and
	// receives the signed response with the user's assertion.
	envelope := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">
  <SOAP-ENV:Body>
    <samlp:ArtifactResolve xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"
        xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion"
        ID="_resolve-9" Version="2.0" IssueInstant="2026-08-29T12:00:00Z">
      <saml:Issuer>%s</saml:Issuer>
      <samlp:Artifact>%s</samlp:Artifact>
    </samlp:ArtifactResolve>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`, sp.EntityID, artifactID)

	w = performRequest(t, svc, "POST", "/saml/idp/artifact", envelope, "text/xml")
	require.Equal(t, 200, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "samlp:ArtifactResponse")
	assert.Contains(t, body, "alice@example.com")
	assert.Zero(t, store.Len(), "redeemed artifact must be gone")
}

func TestBuildResponseAttributeMappings(t *testing.T) {
	hosted := testHostedConfig(nil)
	sp := testServiceProvider()
	sp.AttributeMappings = map[string]string{"email": "urn:oid:0.9.2342.19200300.100.1.3"}

	req := &AuthnRequest{ID: "_req-1", Issuer: sp.EntityID}
	response := BuildResponse(hosted, sp, req, testSession())

	assert.Equal(t, hosted.EntityID, response.Issuer.Value)
	assert.Equal(t, "_req-1", response.InResponseTo)
	assert.Equal(t, "alice@example.com", response.Assertion.Subject.NameID.Value)
	assert.Equal(t, sp.EntityID, response.Assertion.Conditions.AudienceRestriction.Audience)

	names := []string{}
	for _, attr := range response.Assertion.AttributeStatement.Attributes {
		names = append(names, attr.Name)
	}
	assert.Contains(t, names, "urn:oid:0.9.2342.19200300.100.1.3")
	assert.Contains(t, names, "groups")
	assert.NotContains(t, names, "name", "mapped SPs only receive mapped attributes")
}
