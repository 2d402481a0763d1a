package saml

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/openidx/saml-idp/internal/common/errors"
)

// HostedConfig is the configuration of the IdP this service hosts
type HostedConfig struct {
	EntityID      string
	BaseURL       string
	SendArtifact  bool
	SignResponses bool
	KeyPair       *tls.Certificate
}

// SSOURL is the single sign-on endpoint of the hosted IdP
func (h *HostedConfig) SSOURL() string {
	return h.BaseURL + "/saml/idp/sso"
}

// ArtifactResolutionURL is the SOAP back-channel endpoint of the hosted IdP
func (h *HostedConfig) ArtifactResolutionURL() string {
	return h.BaseURL + "/saml/idp/artifact"
}

// MetadataURL is the metadata endpoint of the hosted IdP
func (h *HostedConfig) MetadataURL() string {
	return h.BaseURL + "/saml/idp/metadata"
}

// ServiceProvider is a registered remote SP
type ServiceProvider struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	EntityID           string            `json:"entity_id"`
	ACSURL             string            `json:"acs_url"`
	SLOURL             string            `json:"slo_url,omitempty"`
	Certificate        string            `json:"certificate,omitempty"`
	NameIDFormat       string            `json:"name_id_format"`
	AttributeMappings  map[string]string `json:"attribute_mappings,omitempty"`
	SendArtifact       bool              `json:"send_artifact"`
	WantResponseSigned bool              `json:"want_response_signed"`
	Enabled            bool              `json:"enabled"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Resolver resolves the hosted IdP configuration and registered remote SPs
type Resolver interface {
	// HostedIdP returns the configuration of the IdP this service hosts
	HostedIdP() (*HostedConfig, error)
	// RemoteSP looks up a registered SP by entity ID. An unknown or
	// disabled entity yields an ErrUnknownEntity error.
	RemoteSP(ctx context.Context, entityID string) (*ServiceProvider, error)
}

// PostgresResolver resolves remote SPs from the saml_service_providers table.
//
// Schema:
//
//	CREATE TABLE saml_service_providers (
//	    id                   TEXT PRIMARY KEY,
//	    name                 TEXT NOT NULL,
//	    entity_id            TEXT NOT NULL UNIQUE,
//	    acs_url              TEXT NOT NULL,
//	    slo_url              TEXT,
//	    certificate          TEXT,
//	    name_id_format       TEXT NOT NULL,
//	    attribute_mappings   JSONB,
//	    send_artifact        BOOLEAN NOT NULL DEFAULT FALSE,
//	    want_response_signed BOOLEAN NOT NULL DEFAULT FALSE,
//	    enabled              BOOLEAN NOT NULL DEFAULT TRUE,
//	    created_at           TIMESTAMPTZ NOT NULL,
//	    updated_at           TIMESTAMPTZ NOT NULL
//	);
type PostgresResolver struct {
	hosted *HostedConfig
	pool   *pgxpool.Pool
}

// NewPostgresResolver creates a resolver over the given pool. hosted may be
// nil when the IdP role is not configured.
func NewPostgresResolver(hosted *HostedConfig, pool *pgxpool.Pool) *PostgresResolver {
	return &PostgresResolver{hosted: hosted, pool: pool}
}

// HostedIdP returns the hosted IdP configuration
func (r *PostgresResolver) HostedIdP() (*HostedConfig, error) {
	if r.hosted == nil {
		return nil, apperrors.NotConfigured("identity provider")
	}
	return r.hosted, nil
}

// RemoteSP looks up an enabled SP by entity ID
func (r *PostgresResolver) RemoteSP(ctx context.Context, entityID string) (*ServiceProvider, error) {
	var sp ServiceProvider
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, entity_id, acs_url, COALESCE(slo_url, ''),
		       COALESCE(certificate, ''), name_id_format, attribute_mappings,
		       send_artifact, want_response_signed, enabled, created_at, updated_at
		FROM saml_service_providers
		WHERE entity_id = $1
	`, entityID).Scan(
		&sp.ID, &sp.Name, &sp.EntityID, &sp.ACSURL, &sp.SLOURL,
		&sp.Certificate, &sp.NameIDFormat, &sp.AttributeMappings,
		&sp.SendArtifact, &sp.WantResponseSigned, &sp.Enabled,
		&sp.CreatedAt, &sp.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.UnknownEntity(entityID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up service provider: %w", err)
	}
	if !sp.Enabled {
		return nil, apperrors.UnknownEntity(entityID)
	}
	return &sp, nil
}

// StaticResolver serves a fixed hosted configuration and SP set. Used by
// tests and single-tenant deployments configured from files.
type StaticResolver struct {
	mu     sync.RWMutex
	hosted *HostedConfig
	sps    map[string]*ServiceProvider
}

// NewStaticResolver creates a resolver over the given SPs
func NewStaticResolver(hosted *HostedConfig, sps ...*ServiceProvider) *StaticResolver {
	r := &StaticResolver{hosted: hosted, sps: make(map[string]*ServiceProvider)}
	for _, sp := range sps {
		r.sps[sp.EntityID] = sp
	}
	return r
}

// HostedIdP returns the hosted IdP configuration
func (r *StaticResolver) HostedIdP() (*HostedConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.hosted == nil {
		return nil, apperrors.NotConfigured("identity provider")
	}
	return r.hosted, nil
}

// RemoteSP looks up an enabled SP by entity ID
func (r *StaticResolver) RemoteSP(_ context.Context, entityID string) (*ServiceProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.sps[entityID]
	if !ok || !sp.Enabled {
		return nil, apperrors.UnknownEntity(entityID)
	}
	return sp, nil
}

// AddSP registers or replaces an SP
func (r *StaticResolver) AddSP(sp *ServiceProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sps[sp.EntityID] = sp
}
