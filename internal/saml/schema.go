// Package saml implements the identity-provider side of the SAML 2.0 Web
// Browser SSO profile: SSO request dispatch, artifact resolution over the
// SOAP back-channel, IdP metadata, and the service-provider registry.
package saml

import "encoding/xml"

// SAML 2.0 namespace and protocol constants
const (
	NamespaceProtocol  = "urn:oasis:names:tc:SAML:2.0:protocol"
	NamespaceAssertion = "urn:oasis:names:tc:SAML:2.0:assertion"
	NamespaceMetadata  = "urn:oasis:names:tc:SAML:2.0:metadata"
	NamespaceXMLDSig   = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceSOAP      = "http://schemas.xmlsoap.org/soap/envelope/"

	BindingHTTPRedirect = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"
	BindingHTTPPost     = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
	BindingHTTPArtifact = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Artifact"
	BindingSOAP         = "urn:oasis:names:tc:SAML:2.0:bindings:SOAP"

	StatusSuccess = "urn:oasis:names:tc:SAML:2.0:status:Success"

	NameIDFormatEmail      = "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress"
	NameIDFormatPersistent = "urn:oasis:names:tc:SAML:2.0:nameid-format:persistent"
	NameIDFormatTransient  = "urn:oasis:names:tc:SAML:2.0:nameid-format:transient"

	// TimeFormat is the time format for SAML IssueInstant values
	TimeFormat = "2006-01-02T15:04:05Z"
)

// --- Inbound messages ---

// ArtifactResolve is a parsed SAML ArtifactResolve received over the SOAP
// back-channel.
type ArtifactResolve struct {
	XMLName      xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol ArtifactResolve"`
	ID           string   `xml:"ID,attr"`
	Version      string   `xml:"Version,attr"`
	IssueInstant string   `xml:"IssueInstant,attr"`
	Issuer       string   `xml:"Issuer"`
	Artifact     string   `xml:"Artifact"`
}

// AuthnRequest is a parsed SAML AuthnRequest from an SP
type AuthnRequest struct {
	XMLName                     xml.Name `xml:"AuthnRequest"`
	ID                          string   `xml:"ID,attr"`
	Version                     string   `xml:"Version,attr"`
	IssueInstant                string   `xml:"IssueInstant,attr"`
	Destination                 string   `xml:"Destination,attr"`
	AssertionConsumerServiceURL string   `xml:"AssertionConsumerServiceURL,attr"`
	ProtocolBinding             string   `xml:"ProtocolBinding,attr"`
	Issuer                      string   `xml:"Issuer"`
}

// --- Outbound messages ---

// ArtifactResponse wraps a previously deferred protocol message for delivery
// over the SOAP back-channel. Message holds the serialized payload verbatim;
// an empty Message yields a structurally valid content-less response.
type ArtifactResponse struct {
	XMLName      xml.Name `xml:"samlp:ArtifactResponse"`
	XMLNS        string   `xml:"xmlns:samlp,attr"`
	XMLNSSAML    string   `xml:"xmlns:saml,attr"`
	ID           string   `xml:"ID,attr"`
	Version      string   `xml:"Version,attr"`
	IssueInstant string   `xml:"IssueInstant,attr"`
	InResponseTo string   `xml:"InResponseTo,attr,omitempty"`
	Issuer       Issuer   `xml:"saml:Issuer"`
	Status       Status   `xml:"samlp:Status"`
	Message      []byte   `xml:",innerxml"`
}

// Response is a SAML Response issued by the IdP
type Response struct {
	XMLName      xml.Name  `xml:"samlp:Response"`
	XMLNS        string    `xml:"xmlns:samlp,attr"`
	XMLNSSAML    string    `xml:"xmlns:saml,attr"`
	ID           string    `xml:"ID,attr"`
	Version      string    `xml:"Version,attr"`
	IssueInstant string    `xml:"IssueInstant,attr"`
	Destination  string    `xml:"Destination,attr"`
	InResponseTo string    `xml:"InResponseTo,attr,omitempty"`
	Issuer       Issuer    `xml:"saml:Issuer"`
	Status       Status    `xml:"samlp:Status"`
	Assertion    Assertion `xml:"saml:Assertion"`
}

// Issuer is the Issuer element
type Issuer struct {
	XMLName xml.Name `xml:"saml:Issuer"`
	Value   string   `xml:",chardata"`
}

// Status is the SAML response status
type Status struct {
	XMLName    xml.Name   `xml:"samlp:Status"`
	StatusCode StatusCode `xml:"samlp:StatusCode"`
}

// StatusCode is the status code element
type StatusCode struct {
	XMLName xml.Name `xml:"samlp:StatusCode"`
	Value   string   `xml:"Value,attr"`
}

// Assertion is a SAML Assertion
type Assertion struct {
	XMLName            xml.Name           `xml:"saml:Assertion"`
	XMLNS              string             `xml:"xmlns:saml,attr"`
	ID                 string             `xml:"ID,attr"`
	Version            string             `xml:"Version,attr"`
	IssueInstant       string             `xml:"IssueInstant,attr"`
	Issuer             Issuer             `xml:"saml:Issuer"`
	Subject            Subject            `xml:"saml:Subject"`
	Conditions         Conditions         `xml:"saml:Conditions"`
	AuthnStatement     AuthnStatement     `xml:"saml:AuthnStatement"`
	AttributeStatement AttributeStatement `xml:"saml:AttributeStatement"`
}

// Subject contains subject details
type Subject struct {
	XMLName             xml.Name            `xml:"saml:Subject"`
	NameID              NameID              `xml:"saml:NameID"`
	SubjectConfirmation SubjectConfirmation `xml:"saml:SubjectConfirmation"`
}

// NameID is the NameID element
type NameID struct {
	XMLName xml.Name `xml:"saml:NameID"`
	Format  string   `xml:"Format,attr"`
	Value   string   `xml:",chardata"`
}

// SubjectConfirmation specifies the confirmation method
type SubjectConfirmation struct {
	XMLName                 xml.Name                `xml:"saml:SubjectConfirmation"`
	Method                  string                  `xml:"Method,attr"`
	SubjectConfirmationData SubjectConfirmationData `xml:"saml:SubjectConfirmationData"`
}

// SubjectConfirmationData has confirmation data
type SubjectConfirmationData struct {
	XMLName      xml.Name `xml:"saml:SubjectConfirmationData"`
	NotOnOrAfter string   `xml:"NotOnOrAfter,attr"`
	Recipient    string   `xml:"Recipient,attr"`
	InResponseTo string   `xml:"InResponseTo,attr,omitempty"`
}

// Conditions contains assertion conditions
type Conditions struct {
	XMLName             xml.Name            `xml:"saml:Conditions"`
	NotBefore           string              `xml:"NotBefore,attr"`
	NotOnOrAfter        string              `xml:"NotOnOrAfter,attr"`
	AudienceRestriction AudienceRestriction `xml:"saml:AudienceRestriction"`
}

// AudienceRestriction restricts the audience
type AudienceRestriction struct {
	XMLName  xml.Name `xml:"saml:AudienceRestriction"`
	Audience string   `xml:"saml:Audience"`
}

// AuthnStatement describes the authentication event
type AuthnStatement struct {
	XMLName      xml.Name     `xml:"saml:AuthnStatement"`
	AuthnInstant string       `xml:"AuthnInstant,attr"`
	SessionIndex string       `xml:"SessionIndex,attr"`
	AuthnContext AuthnContext `xml:"saml:AuthnContext"`
}

// AuthnContext describes the authn context class
type AuthnContext struct {
	XMLName              xml.Name `xml:"saml:AuthnContext"`
	AuthnContextClassRef string   `xml:"saml:AuthnContextClassRef"`
}

// AttributeStatement holds user attributes
type AttributeStatement struct {
	XMLName    xml.Name    `xml:"saml:AttributeStatement"`
	Attributes []Attribute `xml:"saml:Attribute"`
}

// Attribute is a single SAML attribute
type Attribute struct {
	XMLName    xml.Name         `xml:"saml:Attribute"`
	Name       string           `xml:"Name,attr"`
	NameFormat string           `xml:"NameFormat,attr"`
	Values     []AttributeValue `xml:"saml:AttributeValue"`
}

// AttributeValue is an attribute value
type AttributeValue struct {
	XMLName xml.Name `xml:"saml:AttributeValue"`
	Value   string   `xml:",chardata"`
}
