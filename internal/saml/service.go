package saml

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openidx/saml-idp/internal/common/config"
	"github.com/openidx/saml-idp/internal/common/database"
	"github.com/openidx/saml-idp/internal/common/middleware"
	"github.com/openidx/saml-idp/internal/saml/artifact"
)

// Service wires the SAML IdP endpoints: SSO dispatch, artifact resolution,
// IdP metadata and the SP registry admin API.
type Service struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *database.PostgresDB
	resolver   Resolver
	artifacts  artifact.Store
	sessions   SessionAuthenticator
	dispatcher AuthnDispatcher
}

// New builds the service from configuration and backend connections. db and
// rds may be nil when the selected backends do not need them.
func New(cfg *config.Config, logger *zap.Logger, db *database.PostgresDB, rds *database.RedisClient) (*Service, error) {
	hosted, err := buildHostedConfig(cfg)
	if err != nil {
		return nil, err
	}

	var resolver Resolver
	if db != nil {
		resolver = NewPostgresResolver(hosted, db.Pool)
	} else {
		resolver = NewStaticResolver(hosted)
	}

	store, err := artifact.New(cfg, db, rds)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	var sessions SessionAuthenticator
	if rds != nil {
		sessions = NewRedisSessionAuthenticator(rds.Client, cfg.SessionCookieName)
	} else {
		sessions = &StaticSessionAuthenticator{}
	}

	svc := &Service{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		resolver:  resolver,
		artifacts: store,
		sessions:  sessions,
	}
	var rdsClient *redis.Client
	if rds != nil {
		rdsClient = rds.Client
	}
	svc.dispatcher = NewWebSSODispatcher(
		resolver,
		store,
		sessions,
		rdsClient,
		logger,
		time.Duration(cfg.ArtifactTTLSeconds)*time.Second,
		cfg.LoginURL,
		cfg.JWTSecret,
	)
	return svc, nil
}

func buildHostedConfig(cfg *config.Config) (*HostedConfig, error) {
	hosted := &HostedConfig{
		EntityID:      cfg.IdPEntityID,
		BaseURL:       cfg.IdPBaseURL,
		SendArtifact:  cfg.SendArtifact,
		SignResponses: cfg.SignResponses,
	}
	if cfg.IdPCertFile != "" && cfg.IdPKeyFile != "" {
		keyPair, err := LoadKeyPair(cfg.IdPCertFile, cfg.IdPKeyFile)
		if err != nil {
			return nil, err
		}
		hosted.KeyPair = keyPair
	}
	return hosted, nil
}

// SetDispatcher replaces the AuthnRequest dispatcher. Used to plug custom
// authentication flows in front of the standard Web SSO one.
func (s *Service) SetDispatcher(d AuthnDispatcher) {
	s.dispatcher = d
}

// RegisterRoutes mounts the SAML endpoints on the router
func (s *Service) RegisterRoutes(router *gin.Engine) {
	idp := router.Group("/saml/idp")
	{
		idp.GET("/metadata", s.HandleMetadata)
		idp.GET("/sso", s.HandleSSO)
		idp.POST("/sso", s.HandleSSO)
		idp.POST("/artifact", s.HandleArtifactResolve)
	}

	api := router.Group("/api/v1/saml", middleware.JWTAuth(s.cfg.JWTSecret, s.logger))
	{
		api.GET("/service-providers", s.handleListServiceProviders)
		api.POST("/service-providers", s.handleCreateServiceProvider)
		api.GET("/service-providers/:id", s.handleGetServiceProvider)
		api.PUT("/service-providers/:id", s.handleUpdateServiceProvider)
		api.DELETE("/service-providers/:id", s.handleDeleteServiceProvider)
	}
}
