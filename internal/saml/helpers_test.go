package saml

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testKeyPair generates a self-signed RSA key pair for signing tests
func testKeyPair(t *testing.T) *tls.Certificate {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "idp.example.com"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}
}

func testHostedConfig(keyPair *tls.Certificate) *HostedConfig {
	return &HostedConfig{
		EntityID:      "https://idp.example.com/saml/idp/metadata",
		BaseURL:       "https://idp.example.com",
		SendArtifact:  true,
		SignResponses: true,
		KeyPair:       keyPair,
	}
}

func testServiceProvider() *ServiceProvider {
	return &ServiceProvider{
		ID:           "7f8d2c6a-1b3e-4a5f-9c0d-2e4f6a8b0c1d",
		Name:         "Example SP",
		EntityID:     "https://sp.example.com/metadata",
		ACSURL:       "https://sp.example.com/acs",
		NameIDFormat: NameIDFormatEmail,
		Enabled:      true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}
