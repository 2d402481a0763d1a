package saml

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/xml"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	xrv "github.com/mattermost/xml-roundtrip-validator"

	apperrors "github.com/openidx/saml-idp/internal/common/errors"
)

// maxMessageBytes bounds inbound protocol messages before any XML parsing
const maxMessageBytes = 1 << 20

type soapEnvelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    soapBody `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
}

type soapBody struct {
	ArtifactResolve *ArtifactResolve `xml:"urn:oasis:names:tc:SAML:2.0:protocol ArtifactResolve"`
}

type soapResponseEnvelope struct {
	XMLName xml.Name         `xml:"SOAP-ENV:Envelope"`
	XMLNS   string           `xml:"xmlns:SOAP-ENV,attr"`
	Body    soapResponseBody `xml:"SOAP-ENV:Body"`
}

type soapResponseBody struct {
	Message []byte `xml:",innerxml"`
}

// DecodeArtifactResolve parses an ArtifactResolve from the SOAP binding.
// Anything that is not a well-formed SOAP envelope carrying an
// ArtifactResolve is rejected as an unsupported binding before the message
// content is looked at.
func DecodeArtifactResolve(c *gin.Context) (*ArtifactResolve, error) {
	switch c.ContentType() {
	case "text/xml", "application/soap+xml":
	default:
		return nil, apperrors.UnsupportedBinding("artifact resolution requires the SOAP binding")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxMessageBytes))
	if err != nil {
		return nil, apperrors.UnsupportedBinding("failed to read request body")
	}

	if err := xrv.Validate(bytes.NewReader(body)); err != nil {
		return nil, apperrors.UnsupportedBinding("malformed XML in SOAP envelope")
	}

	var envelope soapEnvelope
	if err := xml.Unmarshal(body, &envelope); err != nil {
		return nil, apperrors.UnsupportedBinding("invalid SOAP envelope")
	}
	if envelope.Body.ArtifactResolve == nil {
		return nil, apperrors.UnsupportedBinding("SOAP body does not carry an ArtifactResolve")
	}

	resolve := envelope.Body.ArtifactResolve
	resolve.Issuer = strings.TrimSpace(resolve.Issuer)
	resolve.Artifact = strings.TrimSpace(resolve.Artifact)
	return resolve, nil
}

// EncodeSOAPResponse wraps a serialized protocol message in a SOAP envelope
func EncodeSOAPResponse(message []byte) ([]byte, error) {
	envelope := soapResponseEnvelope{
		XMLNS: NamespaceSOAP,
		Body:  soapResponseBody{Message: message},
	}
	out, err := xml.Marshal(envelope)
	if err != nil {
		return nil, apperrors.ConfigurationError("failed to encode SOAP response", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// DecodeRedirectRequest parses an AuthnRequest from the HTTP-Redirect
// binding: base64 over raw DEFLATE.
func DecodeRedirectRequest(samlRequest string) (*AuthnRequest, error) {
	compressed, err := base64.StdEncoding.DecodeString(samlRequest)
	if err != nil {
		return nil, apperrors.UnsupportedBinding("SAMLRequest is not valid base64")
	}

	reader := flate.NewReader(bytes.NewReader(compressed))
	defer reader.Close()
	raw, err := io.ReadAll(io.LimitReader(reader, maxMessageBytes))
	if err != nil {
		return nil, apperrors.UnsupportedBinding("SAMLRequest is not DEFLATE-compressed")
	}
	return parseAuthnRequest(raw)
}

// DecodePostRequest parses an AuthnRequest from the HTTP-POST binding
func DecodePostRequest(samlRequest string) (*AuthnRequest, error) {
	raw, err := base64.StdEncoding.DecodeString(samlRequest)
	if err != nil {
		return nil, apperrors.UnsupportedBinding("SAMLRequest is not valid base64")
	}
	return parseAuthnRequest(raw)
}

func parseAuthnRequest(raw []byte) (*AuthnRequest, error) {
	if err := xrv.Validate(bytes.NewReader(raw)); err != nil {
		return nil, apperrors.UnsupportedBinding("malformed XML in SAMLRequest")
	}
	var req AuthnRequest
	if err := xml.Unmarshal(raw, &req); err != nil {
		return nil, apperrors.UnsupportedBinding("invalid AuthnRequest")
	}
	req.Issuer = strings.TrimSpace(req.Issuer)
	return &req, nil
}
