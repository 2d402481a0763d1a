package saml

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/openidx/saml-idp/internal/common/errors"
	"github.com/openidx/saml-idp/internal/metrics"
	"github.com/openidx/saml-idp/internal/saml/artifact"
)

// AuthnDispatcher consumes a decoded-or-not AuthnRequest delivery for the
// hosted IdP. Implementations own binding detection, SP lookup and response
// delivery; the SSO handler owns the feature gate and error translation.
type AuthnDispatcher interface {
	ReceiveAuthnRequest(c *gin.Context, hosted *HostedConfig) error
}

// HandleSSO serves the IdP single sign-on endpoint for the HTTP-Redirect and
// HTTP-POST bindings. It gates on the feature flag, resolves the hosted IdP
// and hands off to the dispatcher. A binding rejection surfacing from the
// dispatcher is reported to the browser as a protocol error; the
// unsupported-binding kind is reserved for the back-channel.
func (s *Service) HandleSSO(c *gin.Context) {
	if !s.cfg.EnableSAML20IdP {
		metrics.RecordSSORequest("none", "denied")
		apperrors.HandleError(c, apperrors.AccessDenied("SAML 2.0 IdP support is disabled"))
		return
	}

	hosted, err := s.resolver.HostedIdP()
	if err != nil {
		metrics.RecordSSORequest("none", "error")
		apperrors.HandleError(c, err)
		return
	}

	if err := s.dispatcher.ReceiveAuthnRequest(c, hosted); err != nil {
		if apperrors.IsErrorCode(err, apperrors.ErrUnsupportedBinding) {
			err = apperrors.ProtocolError("AuthnRequest not understood on this binding")
		}
		apperrors.HandleError(c, err)
	}
}

const ssoPendingKeyPrefix = "saml_sso_pending:"
const ssoPendingTTL = 10 * time.Minute

// pendingSSO is the stashed state of an SSO attempt awaiting login
type pendingSSO struct {
	RequestID  string    `json:"request_id"`
	SPEntityID string    `json:"sp_entity_id"`
	RelayState string    `json:"relay_state,omitempty"`
	Binding    string    `json:"binding"`
	CreatedAt  time.Time `json:"created_at"`
}

// WebSSODispatcher is the standard Web Browser SSO dispatcher: it decodes
// the AuthnRequest, resolves the requesting SP, checks the IdP session and
// either parks the attempt behind the login page or issues the response.
type WebSSODispatcher struct {
	resolver  Resolver
	artifacts artifact.Store
	sessions  SessionAuthenticator
	rds       *redis.Client
	logger    *zap.Logger
	ttl       time.Duration
	loginURL  string
	jwtSecret string
}

// NewWebSSODispatcher builds the standard dispatcher. rds may be nil; login
// redirects then carry no resume token.
func NewWebSSODispatcher(resolver Resolver, store artifact.Store, sessions SessionAuthenticator, rds *redis.Client, logger *zap.Logger, ttl time.Duration, loginURL, jwtSecret string) *WebSSODispatcher {
	return &WebSSODispatcher{
		resolver:  resolver,
		artifacts: store,
		sessions:  sessions,
		rds:       rds,
		logger:    logger,
		ttl:       ttl,
		loginURL:  loginURL,
		jwtSecret: jwtSecret,
	}
}

// ReceiveAuthnRequest implements AuthnDispatcher
func (d *WebSSODispatcher) ReceiveAuthnRequest(c *gin.Context, hosted *HostedConfig) error {
	binding, req, relayState, err := d.decodeRequest(c)
	if err != nil {
		metrics.RecordSSORequest(bindingLabel(binding), "rejected")
		return err
	}
	if req.Issuer == "" {
		metrics.RecordSSORequest(bindingLabel(binding), "rejected")
		return apperrors.ProtocolError("AuthnRequest carries no Issuer")
	}

	ctx := c.Request.Context()
	sp, err := d.resolver.RemoteSP(ctx, req.Issuer)
	if err != nil {
		metrics.RecordSSORequest(bindingLabel(binding), "unknown_sp")
		return err
	}
	if sp.ACSURL == "" {
		metrics.RecordSSORequest(bindingLabel(binding), "error")
		return apperrors.ConfigurationError("service provider has no assertion consumer service URL", nil)
	}

	session, err := d.authenticate(c)
	if err != nil {
		metrics.RecordSSORequest(bindingLabel(binding), "error")
		return err
	}
	if session == nil {
		metrics.RecordSSORequest(bindingLabel(binding), "login_redirect")
		return d.redirectToLogin(c, binding, req, relayState)
	}

	metrics.RecordSSORequest(bindingLabel(binding), "issued")
	return d.deliverResponse(c, hosted, sp, req, relayState, session)
}

func (d *WebSSODispatcher) decodeRequest(c *gin.Context) (string, *AuthnRequest, string, error) {
	switch c.Request.Method {
	case http.MethodGet:
		encoded := c.Query("SAMLRequest")
		if encoded == "" {
			return "", nil, "", apperrors.UnsupportedBinding("no SAMLRequest in query")
		}
		req, err := DecodeRedirectRequest(encoded)
		return BindingHTTPRedirect, req, c.Query("RelayState"), err
	case http.MethodPost:
		encoded := c.PostForm("SAMLRequest")
		if encoded == "" {
			return "", nil, "", apperrors.UnsupportedBinding("no SAMLRequest in form")
		}
		req, err := DecodePostRequest(encoded)
		return BindingHTTPPost, req, c.PostForm("RelayState"), err
	default:
		return "", nil, "", apperrors.UnsupportedBinding("unsupported HTTP method for SSO")
	}
}

func bindingLabel(binding string) string {
	switch binding {
	case BindingHTTPRedirect:
		return "redirect"
	case BindingHTTPPost:
		return "post"
	default:
		return "none"
	}
}

// authenticate checks a bearer token first, then the session cookie
func (d *WebSSODispatcher) authenticate(c *gin.Context) (*UserSession, error) {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") && d.jwtSecret != "" {
		if session := d.sessionFromToken(strings.TrimPrefix(header, "Bearer ")); session != nil {
			return session, nil
		}
	}
	if d.sessions == nil {
		return nil, nil
	}
	return d.sessions.Authenticate(c)
}

func (d *WebSSODispatcher) sessionFromToken(tokenString string) *UserSession {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(d.jwtSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil
	}

	session := &UserSession{}
	if sub, ok := claims["sub"].(string); ok {
		session.UserID = sub
	}
	if email, ok := claims["email"].(string); ok {
		session.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		session.Name = name
	}
	if session.UserID == "" && session.Email == "" {
		return nil
	}
	return session
}

func (d *WebSSODispatcher) redirectToLogin(c *gin.Context, binding string, req *AuthnRequest, relayState string) error {
	loginURL := d.loginURL

	if d.rds != nil {
		token := uuid.NewString()
		stash, err := json.Marshal(pendingSSO{
			RequestID:  req.ID,
			SPEntityID: req.Issuer,
			RelayState: relayState,
			Binding:    binding,
			CreatedAt:  time.Now().UTC(),
		})
		if err == nil {
			if err := d.rds.Set(c.Request.Context(), ssoPendingKeyPrefix+token, stash, ssoPendingTTL).Err(); err != nil {
				return fmt.Errorf("failed to stash SSO state: %w", err)
			}
			separator := "?"
			if strings.Contains(loginURL, "?") {
				separator = "&"
			}
			loginURL += separator + "resume=" + url.QueryEscape(token)
		}
	}

	c.Redirect(http.StatusFound, loginURL)
	return nil
}

func (d *WebSSODispatcher) deliverResponse(c *gin.Context, hosted *HostedConfig, sp *ServiceProvider, req *AuthnRequest, relayState string, session *UserSession) error {
	response := BuildResponse(hosted, sp, req, session)

	var serialized []byte
	var err error
	if SignatureRequired(hosted, sp) {
		serialized, err = SignMessage(hosted.KeyPair, response)
	} else {
		serialized, err = MarshalMessage(response)
	}
	if err != nil {
		return err
	}

	if sp.SendArtifact && hosted.SendArtifact && d.artifacts != nil {
		return d.deliverByArtifact(c, hosted, sp, relayState, serialized)
	}
	return d.deliverByPost(c, sp, relayState, serialized)
}

func (d *WebSSODispatcher) deliverByArtifact(c *gin.Context, hosted *HostedConfig, sp *ServiceProvider, relayState string, serialized []byte) error {
	id, err := artifact.NewID(hosted.EntityID, 0)
	if err != nil {
		return err
	}
	if err := d.artifacts.Put(c.Request.Context(), id, serialized, d.ttl); err != nil {
		return err
	}
	metrics.RecordArtifactIssued()

	target, err := url.Parse(sp.ACSURL)
	if err != nil {
		return apperrors.ConfigurationError("service provider ACS URL is invalid", err)
	}
	query := target.Query()
	query.Set("SAMLart", id)
	if relayState != "" {
		query.Set("RelayState", relayState)
	}
	target.RawQuery = query.Encode()

	d.logger.Info("Issued SAML artifact",
		zap.String("sp_entity_id", sp.EntityID),
		zap.String("backend", d.artifacts.Backend()),
	)
	c.Redirect(http.StatusFound, target.String())
	return nil
}

var postFormTemplate = template.Must(template.New("saml-post").Parse(`<!DOCTYPE html>
<html>
<head><title>SAML Response</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.ACSURL}}">
<input type="hidden" name="SAMLResponse" value="{{.SAMLResponse}}"/>
{{if .RelayState}}<input type="hidden" name="RelayState" value="{{.RelayState}}"/>{{end}}
<noscript><input type="submit" value="Continue"/></noscript>
</form>
</body>
</html>`))

func (d *WebSSODispatcher) deliverByPost(c *gin.Context, sp *ServiceProvider, relayState string, serialized []byte) error {
	var page bytes.Buffer
	err := postFormTemplate.Execute(&page, map[string]string{
		"ACSURL":       sp.ACSURL,
		"SAMLResponse": base64.StdEncoding.EncodeToString(serialized),
		"RelayState":   relayState,
	})
	if err != nil {
		return fmt.Errorf("failed to render response form: %w", err)
	}

	d.logger.Info("Delivered SAML response over POST binding",
		zap.String("sp_entity_id", sp.EntityID),
	)
	c.Data(http.StatusOK, "text/html; charset=utf-8", page.Bytes())
	return nil
}

// BuildResponse assembles a success Response with a single assertion for the
// authenticated user.
func BuildResponse(hosted *HostedConfig, sp *ServiceProvider, req *AuthnRequest, session *UserSession) *Response {
	now := time.Now().UTC()
	notOnOrAfter := now.Add(5 * time.Minute).Format(TimeFormat)

	nameIDFormat := sp.NameIDFormat
	if nameIDFormat == "" {
		nameIDFormat = NameIDFormatEmail
	}
	nameID := session.Email
	if nameIDFormat != NameIDFormatEmail || nameID == "" {
		nameID = session.UserID
	}

	return &Response{
		XMLNS:        NamespaceProtocol,
		XMLNSSAML:    NamespaceAssertion,
		ID:           newMessageID(),
		Version:      "2.0",
		IssueInstant: now.Format(TimeFormat),
		Destination:  sp.ACSURL,
		InResponseTo: req.ID,
		Issuer:       Issuer{Value: hosted.EntityID},
		Status:       Status{StatusCode: StatusCode{Value: StatusSuccess}},
		Assertion: Assertion{
			XMLNS:        NamespaceAssertion,
			ID:           newMessageID(),
			Version:      "2.0",
			IssueInstant: now.Format(TimeFormat),
			Issuer:       Issuer{Value: hosted.EntityID},
			Subject: Subject{
				NameID: NameID{Format: nameIDFormat, Value: nameID},
				SubjectConfirmation: SubjectConfirmation{
					Method: "urn:oasis:names:tc:SAML:2.0:cm:bearer",
					SubjectConfirmationData: SubjectConfirmationData{
						NotOnOrAfter: notOnOrAfter,
						Recipient:    sp.ACSURL,
						InResponseTo: req.ID,
					},
				},
			},
			Conditions: Conditions{
				NotBefore:           now.Add(-time.Minute).Format(TimeFormat),
				NotOnOrAfter:        notOnOrAfter,
				AudienceRestriction: AudienceRestriction{Audience: sp.EntityID},
			},
			AuthnStatement: AuthnStatement{
				AuthnInstant: now.Format(TimeFormat),
				SessionIndex: newMessageID(),
				AuthnContext: AuthnContext{
					AuthnContextClassRef: "urn:oasis:names:tc:SAML:2.0:ac:classes:PasswordProtectedTransport",
				},
			},
			AttributeStatement: buildAttributeStatement(sp, session),
		},
	}
}

func buildAttributeStatement(sp *ServiceProvider, session *UserSession) AttributeStatement {
	attrs := map[string]string{
		"email": session.Email,
		"name":  session.Name,
	}
	for key, value := range session.Attributes {
		attrs[key] = value
	}

	statement := AttributeStatement{}
	appendAttr := func(name, value string) {
		if value == "" {
			return
		}
		statement.Attributes = append(statement.Attributes, Attribute{
			Name:       name,
			NameFormat: "urn:oasis:names:tc:SAML:2.0:attrname-format:basic",
			Values:     []AttributeValue{{Value: value}},
		})
	}

	if len(sp.AttributeMappings) > 0 {
		for local, remote := range sp.AttributeMappings {
			appendAttr(remote, attrs[local])
		}
	} else {
		appendAttr("email", session.Email)
		appendAttr("name", session.Name)
	}

	if len(session.Groups) > 0 {
		attr := Attribute{
			Name:       "groups",
			NameFormat: "urn:oasis:names:tc:SAML:2.0:attrname-format:basic",
		}
		for _, group := range session.Groups {
			attr.Values = append(attr.Values, AttributeValue{Value: group})
		}
		statement.Attributes = append(statement.Attributes, attr)
	}
	return statement
}
