package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/basketrec/internal/config"
	"github.com/temcen/basketrec/pkg/models"
)

type AdminHandler struct {
	recommender RecommendationService
	validate    *validator.Validate
	config      *config.Config
	logger      *logrus.Logger
}

func NewAdminHandler(recommender RecommendationService, validate *validator.Validate, cfg *config.Config, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		recommender: recommender,
		validate:    validate,
		config:      cfg,
		logger:      logger,
	}
}

// Retrain serves POST /admin/retrain. With ?async=true the retrain runs in
// the background and the call returns 202 at once.
func (h *AdminHandler) Retrain(c *gin.Context) {
	var req models.RetrainRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST_BODY", "Invalid request body format")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Request validation failed",
				"details": validationDetails(err),
			},
		})
		return
	}

	if c.Query("async") == "true" {
		ctx := context.WithoutCancel(c.Request.Context())
		go func() {
			if _, err := h.recommender.Retrain(ctx, req); err != nil {
				h.logger.WithError(err).Warn("Background retrain failed")
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
		return
	}

	info, err := h.recommender.Retrain(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

// Model serves GET /admin/model.
func (h *AdminHandler) Model(c *gin.Context) {
	info, err := h.recommender.ModelInfo()
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// RankingConfig mirrors the tuning knobs currently in effect.
type RankingConfig struct {
	Prefilter config.PrefilterConfig `json:"prefilter"`
	Models    config.ModelConfig     `json:"models"`
	Ranking   config.RankingConfig   `json:"ranking"`
}

// GetConfig serves GET /admin/config.
func (h *AdminHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, RankingConfig{
		Prefilter: h.config.Prefilter,
		Models:    h.config.Models,
		Ranking:   h.config.Ranking,
	})
}
