package saml

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/openidx/saml-idp/internal/common/errors"
	"github.com/openidx/saml-idp/internal/metrics"
)

func newMessageID() string {
	return "_" + uuid.NewString()
}

// HandleArtifactResolve serves the SOAP back-channel artifact resolution
// endpoint. Preconditions are checked in a fixed order, cheapest and least
// trust-sensitive first: feature gate, artifact policy, store presence,
// binding decode, issuer presence. Only then is any state touched.
//
// A resolve for an unknown, expired or already-redeemed artifact is answered
// with a signed empty ArtifactResponse, not an error: the endpoint never
// confirms whether an artifact ever existed.
func (s *Service) HandleArtifactResolve(c *gin.Context) {
	if !s.cfg.EnableSAML20IdP {
		metrics.RecordArtifactResolution("denied")
		apperrors.HandleError(c, apperrors.AccessDenied("SAML 2.0 IdP support is disabled"))
		return
	}

	hosted, err := s.resolver.HostedIdP()
	if err != nil {
		metrics.RecordArtifactResolution("error")
		apperrors.HandleError(c, err)
		return
	}
	if !hosted.SendArtifact {
		metrics.RecordArtifactResolution("denied")
		apperrors.HandleError(c, apperrors.AccessDenied("artifact binding is disabled for this identity provider"))
		return
	}
	if s.artifacts == nil {
		metrics.RecordArtifactResolution("error")
		apperrors.HandleError(c, apperrors.ConfigurationError("artifact binding enabled without an artifact store", nil))
		return
	}

	resolve, err := DecodeArtifactResolve(c)
	if err != nil {
		metrics.RecordArtifactResolution("rejected")
		apperrors.HandleError(c, err)
		return
	}
	if resolve.Issuer == "" {
		metrics.RecordArtifactResolution("rejected")
		apperrors.HandleError(c, apperrors.ProtocolError("ArtifactResolve carries no Issuer"))
		return
	}

	ctx := c.Request.Context()

	// An unregistered issuer is tolerated: the response for a missing
	// artifact is identical either way, so the registry cannot be probed
	// through this endpoint.
	var sp *ServiceProvider
	if resolved, err := s.resolver.RemoteSP(ctx, resolve.Issuer); err == nil {
		sp = resolved
	} else if !apperrors.IsErrorCode(err, apperrors.ErrUnknownEntity) {
		metrics.RecordArtifactResolution("error")
		apperrors.HandleError(c, err)
		return
	}

	payload, err := s.artifacts.Pull(ctx, resolve.Artifact)
	if err != nil {
		metrics.RecordArtifactResolution("error")
		apperrors.HandleError(c, err)
		return
	}

	response := &ArtifactResponse{
		XMLNS:        NamespaceProtocol,
		XMLNSSAML:    NamespaceAssertion,
		ID:           newMessageID(),
		Version:      "2.0",
		IssueInstant: time.Now().UTC().Format(TimeFormat),
		InResponseTo: resolve.ID,
		Issuer:       Issuer{Value: hosted.EntityID},
		Status:       Status{StatusCode: StatusCode{Value: StatusSuccess}},
		Message:      payload,
	}

	var serialized []byte
	if SignatureRequired(hosted, sp) {
		serialized, err = SignMessage(hosted.KeyPair, response)
	} else {
		serialized, err = MarshalMessage(response)
	}
	if err != nil {
		metrics.RecordArtifactResolution("error")
		apperrors.HandleError(c, err)
		return
	}

	envelope, err := EncodeSOAPResponse(serialized)
	if err != nil {
		metrics.RecordArtifactResolution("error")
		apperrors.HandleError(c, err)
		return
	}

	if payload != nil {
		metrics.RecordArtifactResolution("redeemed")
	} else {
		metrics.RecordArtifactResolution("miss")
	}
	s.logger.Info("Resolved artifact",
		zap.String("issuer", resolve.Issuer),
		zap.String("in_response_to", resolve.ID),
		zap.Bool("redeemed", payload != nil),
	)

	c.Data(http.StatusOK, "text/xml; charset=utf-8", envelope)
}
