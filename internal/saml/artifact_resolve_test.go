package saml

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openidx/saml-idp/internal/common/config"
	"github.com/openidx/saml-idp/internal/saml/artifact"
)

// countingStore records accesses without storing anything. Used to prove
// that rejected requests never touch the artifact store.
type countingStore struct {
	puts  int
	pulls int
}

func (s *countingStore) Put(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	s.puts++
	return nil
}

func (s *countingStore) Pull(_ context.Context, _ string) ([]byte, error) {
	s.pulls++
	return nil, nil
}

func (s *countingStore) Backend() string { return "counting" }

func newTestService(t *testing.T, hosted *HostedConfig, store artifact.Store, sps ...*ServiceProvider) *Service {
	t.Helper()

	resolver := NewStaticResolver(hosted, sps...)
	sessions := &StaticSessionAuthenticator{}
	svc := &Service{
		cfg: &config.Config{
			EnableSAML20IdP:    true,
			ArtifactTTLSeconds: 300,
			JWTSecret:          "test-secret",
			LoginURL:           "/login",
		},
		logger:    zap.NewNop(),
		resolver:  resolver,
		artifacts: store,
		sessions:  sessions,
	}
	svc.dispatcher = NewWebSSODispatcher(resolver, store, sessions, nil, zap.NewNop(), 5*time.Minute, "/login", "test-secret")
	return svc
}

func performRequest(t *testing.T, svc *Service, method, path, body, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	svc.RegisterRoutes(router)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	router.ServeHTTP(w, req)
	return w
}

const storedResponse = `<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="_stored-response" Version="2.0"></samlp:Response>`

func TestArtifactResolveRedeemsExactlyOnce(t *testing.T) {
	keyPair := testKeyPair(t)
	store := artifact.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "ART123", []byte(storedResponse), time.Minute))

	svc := newTestService(t, testHostedConfig(keyPair), store, testServiceProvider())

	w := performRequest(t, svc, "POST", "/saml/idp/artifact", soapArtifactResolve, "text/xml")
	require.Equal(t, 200, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "samlp:ArtifactResponse")
	assert.Contains(t, body, `_stored-response`)
	assert.Contains(t, body, "Signature")
	assert.Contains(t, body, StatusSuccess)

	// Same artifact again: still HTTP 200, still signed, but no payload
	w = performRequest(t, svc, "POST", "/saml/idp/artifact", soapArtifactResolve, "text/xml")
	require.Equal(t, 200, w.Code)
	body = w.Body.String()
	assert.Contains(t, body, "samlp:ArtifactResponse")
	assert.NotContains(t, body, "_stored-response")
	assert.Contains(t, body, "Signature")
	assert.Contains(t, body, StatusSuccess)

	assert.Zero(t, store.Len())
}

func TestArtifactResolveUnknownArtifactIsNotAnError(t *testing.T) {
	keyPair := testKeyPair(t)
	store := artifact.NewMemoryStore()
	svc := newTestService(t, testHostedConfig(keyPair), store, testServiceProvider())

	w := performRequest(t, svc, "POST", "/saml/idp/artifact", soapArtifactResolve, "text/xml")
	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), StatusSuccess)
}

func TestArtifactResolveUnknownIssuerIsTolerated(t *testing.T) {
	keyPair := testKeyPair(t)
	store := artifact.NewMemoryStore()

	// No registered SPs at all
	svc := newTestService(t, testHostedConfig(keyPair), store)

	w := performRequest(t, svc, "POST", "/saml/idp/artifact", soapArtifactResolve, "text/xml")
	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "samlp:ArtifactResponse")
}

func TestArtifactResolveFeatureGateComesFirst(t *testing.T) {
	store := &countingStore{}
	svc := newTestService(t, testHostedConfig(testKeyPair(t)), store)
	svc.cfg.EnableSAML20IdP = false

	w := performRequest(t, svc, "POST", "/saml/idp/artifact", soapArtifactResolve, "text/xml")
	require.Equal(t, 403, w.Code)
	assert.Contains(t, w.Body.String(), "ACCESS_DENIED")
	assert.Zero(t, store.pulls, "a gated request must not touch the store")
}

func TestArtifactResolveArtifactBindingDisabled(t *testing.T) {
	store := &countingStore{}
	hosted := testHostedConfig(testKeyPair(t))
	hosted.SendArtifact = false
	svc := newTestService(t, hosted, store)

	w := performRequest(t, svc, "POST", "/saml/idp/artifact", soapArtifactResolve, "text/xml")
	require.Equal(t, 403, w.Code)
	assert.Contains(t, w.Body.String(), "ACCESS_DENIED")
	assert.Zero(t, store.pulls)
}

func TestArtifactResolveRejectsWrongBindingBeforeStore(t *testing.T) {
	store := &countingStore{}
	svc := newTestService(t, testHostedConfig(testKeyPair(t)), store)

	w := performRequest(t, svc, "POST", "/saml/idp/artifact", "SAMLRequest=abc", "application/x-www-form-urlencoded")
	require.Equal(t, 400, w.Code)
	assert.Contains(t, w.Body.String(), "UNSUPPORTED_BINDING")
	assert.Zero(t, store.pulls, "a rejected binding must not touch the store")
}

const soapResolveNoIssuer = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">
  <SOAP-ENV:Body>
    <samlp:ArtifactResolve xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"
        ID="_resolve-2" Version="2.0" IssueInstant="2026-08-29T12:00:00Z">
      <samlp:Artifact>ART123</samlp:Artifact>
    </samlp:ArtifactResolve>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

func TestArtifactResolveRequiresIssuer(t *testing.T) {
	store := &countingStore{}
	svc := newTestService(t, testHostedConfig(testKeyPair(t)), store)

	w := performRequest(t, svc, "POST", "/saml/idp/artifact", soapResolveNoIssuer, "text/xml")
	require.Equal(t, 400, w.Code)
	assert.Contains(t, w.Body.String(), "PROTOCOL_ERROR")
	assert.Zero(t, store.pulls)
}

func TestArtifactResolveMissingStoreIsConfigurationError(t *testing.T) {
	svc := newTestService(t, testHostedConfig(testKeyPair(t)), nil)

	w := performRequest(t, svc, "POST", "/saml/idp/artifact", soapArtifactResolve, "text/xml")
	require.Equal(t, 500, w.Code)
	assert.Contains(t, w.Body.String(), "CONFIGURATION_ERROR")
}
