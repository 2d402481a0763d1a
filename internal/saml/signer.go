package saml

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	apperrors "github.com/openidx/saml-idp/internal/common/errors"
)

// SignatureRequired reports whether an outbound response for sp must carry
// an enveloped signature. sp may be nil when the requesting entity is not
// registered; the hosted policy alone decides then.
func SignatureRequired(hosted *HostedConfig, sp *ServiceProvider) bool {
	if hosted.SignResponses {
		return true
	}
	return sp != nil && sp.WantResponseSigned
}

// SignMessage serializes a protocol message and envelopes an XML signature
// over its root element. The ds:Signature is placed directly after the
// Issuer child, where SPs expect it.
func SignMessage(keyPair *tls.Certificate, message any) ([]byte, error) {
	if keyPair == nil || keyPair.PrivateKey == nil {
		return nil, apperrors.ConfigurationError("response signing requires a signing key pair", nil)
	}

	raw, err := xml.Marshal(message)
	if err != nil {
		return nil, apperrors.ConfigurationError("failed to serialize message for signing", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, apperrors.ConfigurationError("failed to parse message for signing", err)
	}

	signCtx := dsig.NewDefaultSigningContext(dsig.TLSCertKeyStore(*keyPair))
	signCtx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")

	signed, err := signCtx.SignEnveloped(doc.Root())
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	// SignEnveloped appends ds:Signature as the last child, without setting
	// its parent pointer, so it must be removed by position rather than via
	// RemoveChild (which would be a silent no-op and leave a duplicate).
	children := signed.ChildElements()
	sigEl := children[len(children)-1]
	signed.RemoveChildAt(len(signed.Child) - 1)
	signed.InsertChildAt(1, sigEl)

	out := etree.NewDocument()
	out.SetRoot(signed)
	return out.WriteToBytes()
}

// MarshalMessage serializes a protocol message without signing it
func MarshalMessage(message any) ([]byte, error) {
	raw, err := xml.Marshal(message)
	if err != nil {
		return nil, apperrors.ConfigurationError("failed to serialize message", err)
	}
	return raw, nil
}

// LoadKeyPair loads the signing certificate and key from PEM files
func LoadKeyPair(certFile, keyFile string) (*tls.Certificate, error) {
	keyPair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, apperrors.ConfigurationError("failed to load signing key pair", err)
	}
	if keyPair.Leaf == nil && len(keyPair.Certificate) > 0 {
		leaf, err := x509.ParseCertificate(keyPair.Certificate[0])
		if err != nil {
			return nil, apperrors.ConfigurationError("failed to parse signing certificate", err)
		}
		keyPair.Leaf = leaf
	}
	return &keyPair, nil
}
