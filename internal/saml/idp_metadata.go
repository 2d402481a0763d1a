package saml

import (
	"encoding/base64"
	"encoding/xml"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/openidx/saml-idp/internal/common/errors"
)

// EntityDescriptor is published IdP metadata
type EntityDescriptor struct {
	XMLName          xml.Name         `xml:"md:EntityDescriptor"`
	XMLNS            string           `xml:"xmlns:md,attr"`
	EntityID         string           `xml:"entityID,attr"`
	IDPSSODescriptor IDPSSODescriptor `xml:"md:IDPSSODescriptor"`
}

// IDPSSODescriptor describes the IdP role
type IDPSSODescriptor struct {
	XMLName                    xml.Name          `xml:"md:IDPSSODescriptor"`
	ProtocolSupportEnumeration string            `xml:"protocolSupportEnumeration,attr"`
	WantAuthnRequestsSigned    bool              `xml:"WantAuthnRequestsSigned,attr"`
	KeyDescriptors             []KeyDescriptor   `xml:"md:KeyDescriptor"`
	ArtifactResolutionServices []IndexedEndpoint `xml:"md:ArtifactResolutionService"`
	NameIDFormats              []string          `xml:"md:NameIDFormat"`
	SingleSignOnServices       []Endpoint        `xml:"md:SingleSignOnService"`
}

// KeyDescriptor publishes a role key
type KeyDescriptor struct {
	XMLName xml.Name `xml:"md:KeyDescriptor"`
	Use     string   `xml:"use,attr"`
	KeyInfo KeyInfo  `xml:"ds:KeyInfo"`
}

// KeyInfo carries the X.509 certificate
type KeyInfo struct {
	XMLName  xml.Name `xml:"ds:KeyInfo"`
	XMLNS    string   `xml:"xmlns:ds,attr"`
	X509Data X509Data `xml:"ds:X509Data"`
}

// X509Data wraps the certificate element
type X509Data struct {
	XMLName         xml.Name `xml:"ds:X509Data"`
	X509Certificate string   `xml:"ds:X509Certificate"`
}

// Endpoint is a protocol endpoint
type Endpoint struct {
	Binding  string `xml:"Binding,attr"`
	Location string `xml:"Location,attr"`
}

// IndexedEndpoint is a protocol endpoint with an index
type IndexedEndpoint struct {
	Binding  string `xml:"Binding,attr"`
	Location string `xml:"Location,attr"`
	Index    int    `xml:"index,attr"`
}

// HandleMetadata publishes the hosted IdP's entity descriptor
func (s *Service) HandleMetadata(c *gin.Context) {
	if !s.cfg.EnableSAML20IdP {
		apperrors.HandleError(c, apperrors.AccessDenied("SAML 2.0 IdP support is disabled"))
		return
	}

	hosted, err := s.resolver.HostedIdP()
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	descriptor := BuildEntityDescriptor(hosted)
	out, err := xml.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		apperrors.HandleError(c, apperrors.ConfigurationError("failed to serialize metadata", err))
		return
	}

	c.Data(http.StatusOK, "application/samlmetadata+xml", append([]byte(xml.Header), out...))
}

// BuildEntityDescriptor assembles the metadata document for the hosted IdP
func BuildEntityDescriptor(hosted *HostedConfig) *EntityDescriptor {
	descriptor := &EntityDescriptor{
		XMLNS:    NamespaceMetadata,
		EntityID: hosted.EntityID,
		IDPSSODescriptor: IDPSSODescriptor{
			ProtocolSupportEnumeration: NamespaceProtocol,
			NameIDFormats: []string{
				NameIDFormatEmail,
				NameIDFormatPersistent,
				NameIDFormatTransient,
			},
			SingleSignOnServices: []Endpoint{
				{Binding: BindingHTTPRedirect, Location: hosted.SSOURL()},
				{Binding: BindingHTTPPost, Location: hosted.SSOURL()},
			},
		},
	}

	if hosted.SendArtifact {
		descriptor.IDPSSODescriptor.ArtifactResolutionServices = []IndexedEndpoint{
			{Binding: BindingSOAP, Location: hosted.ArtifactResolutionURL(), Index: 0},
		}
	}

	if hosted.KeyPair != nil && len(hosted.KeyPair.Certificate) > 0 {
		descriptor.IDPSSODescriptor.KeyDescriptors = []KeyDescriptor{{
			Use: "signing",
			KeyInfo: KeyInfo{
				XMLNS: NamespaceXMLDSig,
				X509Data: X509Data{
					X509Certificate: base64.StdEncoding.EncodeToString(hosted.KeyPair.Certificate[0]),
				},
			},
		}}
	}
	return descriptor
}
