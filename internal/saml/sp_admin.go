package saml

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	apperrors "github.com/openidx/saml-idp/internal/common/errors"
)

// serviceProviderRequest is the admin API payload for creating or updating
// a service provider registration.
type serviceProviderRequest struct {
	Name               string            `json:"name" binding:"required"`
	EntityID           string            `json:"entity_id" binding:"required"`
	ACSURL             string            `json:"acs_url" binding:"required"`
	SLOURL             string            `json:"slo_url"`
	Certificate        string            `json:"certificate"`
	NameIDFormat       string            `json:"name_id_format"`
	AttributeMappings  map[string]string `json:"attribute_mappings"`
	SendArtifact       bool              `json:"send_artifact"`
	WantResponseSigned bool              `json:"want_response_signed"`
	Enabled            *bool             `json:"enabled"`
}

func (r *serviceProviderRequest) normalize() {
	r.EntityID = strings.TrimSpace(r.EntityID)
	r.ACSURL = strings.TrimSpace(r.ACSURL)
	if r.NameIDFormat == "" {
		r.NameIDFormat = NameIDFormatEmail
	}
}

const serviceProviderColumns = `
	id, name, entity_id, acs_url, COALESCE(slo_url, ''),
	COALESCE(certificate, ''), name_id_format, attribute_mappings,
	send_artifact, want_response_signed, enabled, created_at, updated_at`

func scanServiceProvider(row pgx.Row) (*ServiceProvider, error) {
	var sp ServiceProvider
	err := row.Scan(
		&sp.ID, &sp.Name, &sp.EntityID, &sp.ACSURL, &sp.SLOURL,
		&sp.Certificate, &sp.NameIDFormat, &sp.AttributeMappings,
		&sp.SendArtifact, &sp.WantResponseSigned, &sp.Enabled,
		&sp.CreatedAt, &sp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

func (s *Service) requireDB(c *gin.Context) bool {
	if s.db == nil {
		apperrors.HandleError(c, apperrors.ConfigurationError("service provider registry requires a database", nil))
		return false
	}
	return true
}

func (s *Service) handleListServiceProviders(c *gin.Context) {
	if !s.requireDB(c) {
		return
	}

	rows, err := s.db.Pool.Query(c.Request.Context(), `
		SELECT `+serviceProviderColumns+`
		FROM saml_service_providers
		ORDER BY created_at DESC
	`)
	if err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("list service providers", err))
		return
	}
	defer rows.Close()

	providers := []*ServiceProvider{}
	for rows.Next() {
		sp, err := scanServiceProvider(rows)
		if err != nil {
			apperrors.HandleError(c, apperrors.DatabaseError("scan service provider", err))
			return
		}
		providers = append(providers, sp)
	}
	if err := rows.Err(); err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("list service providers", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"service_providers": providers, "total": len(providers)})
}

func (s *Service) handleCreateServiceProvider(c *gin.Context) {
	if !s.requireDB(c) {
		return
	}

	var req serviceProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.ValidationError(err.Error()))
		return
	}
	req.normalize()

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	sp, err := scanServiceProvider(s.db.Pool.QueryRow(c.Request.Context(), `
		INSERT INTO saml_service_providers
			(id, name, entity_id, acs_url, slo_url, certificate, name_id_format,
			 attribute_mappings, send_artifact, want_response_signed, enabled,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING `+serviceProviderColumns,
		uuid.NewString(), req.Name, req.EntityID, req.ACSURL, req.SLOURL,
		req.Certificate, req.NameIDFormat, req.AttributeMappings,
		req.SendArtifact, req.WantResponseSigned, enabled,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			apperrors.HandleError(c, apperrors.Conflict("a service provider with this entity ID already exists"))
			return
		}
		apperrors.HandleError(c, apperrors.DatabaseError("create service provider", err))
		return
	}

	s.logger.Info("Registered service provider",
		zap.String("id", sp.ID),
		zap.String("entity_id", sp.EntityID),
	)
	c.JSON(http.StatusCreated, sp)
}

func (s *Service) handleGetServiceProvider(c *gin.Context) {
	if !s.requireDB(c) {
		return
	}

	sp, err := scanServiceProvider(s.db.Pool.QueryRow(c.Request.Context(), `
		SELECT `+serviceProviderColumns+`
		FROM saml_service_providers
		WHERE id = $1
	`, c.Param("id")))
	if errors.Is(err, pgx.ErrNoRows) {
		apperrors.HandleError(c, apperrors.NotFound("service provider"))
		return
	}
	if err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("get service provider", err))
		return
	}

	c.JSON(http.StatusOK, sp)
}

func (s *Service) handleUpdateServiceProvider(c *gin.Context) {
	if !s.requireDB(c) {
		return
	}

	var req serviceProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.ValidationError(err.Error()))
		return
	}
	req.normalize()

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	sp, err := scanServiceProvider(s.db.Pool.QueryRow(c.Request.Context(), `
		UPDATE saml_service_providers
		SET name = $2, entity_id = $3, acs_url = $4, slo_url = $5,
		    certificate = $6, name_id_format = $7, attribute_mappings = $8,
		    send_artifact = $9, want_response_signed = $10, enabled = $11,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+serviceProviderColumns,
		c.Param("id"), req.Name, req.EntityID, req.ACSURL, req.SLOURL,
		req.Certificate, req.NameIDFormat, req.AttributeMappings,
		req.SendArtifact, req.WantResponseSigned, enabled,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		apperrors.HandleError(c, apperrors.NotFound("service provider"))
		return
	}
	if err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("update service provider", err))
		return
	}

	s.logger.Info("Updated service provider",
		zap.String("id", sp.ID),
		zap.String("entity_id", sp.EntityID),
	)
	c.JSON(http.StatusOK, sp)
}

func (s *Service) handleDeleteServiceProvider(c *gin.Context) {
	if !s.requireDB(c) {
		return
	}

	tag, err := s.db.Pool.Exec(c.Request.Context(), `
		DELETE FROM saml_service_providers WHERE id = $1
	`, c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("delete service provider", err))
		return
	}
	if tag.RowsAffected() == 0 {
		apperrors.HandleError(c, apperrors.NotFound("service provider"))
		return
	}

	s.logger.Info("Deleted service provider", zap.String("id", c.Param("id")))
	c.Status(http.StatusNoContent)
}
