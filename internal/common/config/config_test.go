package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("saml-service")
	require.NoError(t, err)

	assert.Equal(t, "saml-service", cfg.ServiceName)
	assert.Equal(t, 8010, cfg.Port)
	assert.True(t, cfg.EnableSAML20IdP)
	assert.True(t, cfg.SignResponses)
	assert.True(t, cfg.SendArtifact)
	assert.Equal(t, StoreMemory, cfg.ArtifactStore)
	assert.Equal(t, 300, cfg.ArtifactTTLSeconds)
	assert.NotEmpty(t, cfg.IdPEntityID)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ARTIFACT_STORE", "redis")
	t.Setenv("IDP_ENTITY_ID", "https://idp.example.com/saml/idp/metadata")
	t.Setenv("SEND_ARTIFACT", "false")

	cfg, err := Load("saml-service")
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.ArtifactStore)
	assert.Equal(t, "https://idp.example.com/saml/idp/metadata", cfg.IdPEntityID)
	assert.False(t, cfg.SendArtifact)
}

func TestLoadRejectsUnknownArtifactStore(t *testing.T) {
	t.Setenv("ARTIFACT_STORE", "etcd")

	_, err := Load("saml-service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "artifact_store")
}
