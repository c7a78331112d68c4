package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/basketrec/internal/config"
	"github.com/temcen/basketrec/internal/ml"
	"github.com/temcen/basketrec/internal/services"
	"github.com/temcen/basketrec/pkg/models"
)

// RecommendationService is the part of services.Recommender the HTTP layer
// uses.
type RecommendationService interface {
	Recommend(ctx context.Context, userID int64, count int) (*models.RecommendationResponse, error)
	RecommendBatch(ctx context.Context, reqs []models.RecommendationRequest) ([]models.RecommendationResponse, error)
	Retrain(ctx context.Context, req models.RetrainRequest) (models.ModelInfo, error)
	ModelInfo() (models.ModelInfo, error)
}

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Admin          *AdminHandler
}

func New(logger *logrus.Logger, cfg *config.Config, svc *services.Services) *Handlers {
	validate := validator.New()
	return &Handlers{
		Health:         NewHealthHandler(logger, svc.Health),
		Recommendation: NewRecommendationHandler(svc.Recommender, validate, cfg.Ranking.Count, logger),
		Admin:          NewAdminHandler(svc.Recommender, validate, cfg, logger),
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondServiceError maps domain errors onto HTTP statuses.
func respondServiceError(c *gin.Context, logger *logrus.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrNoModel):
		respondError(c, http.StatusServiceUnavailable, "MODEL_NOT_READY", "No trained model is installed yet")
	case errors.Is(err, ml.ErrTrainingInProgress):
		respondError(c, http.StatusConflict, "TRAINING_IN_PROGRESS", "A retrain is already running")
	case errors.Is(err, models.ErrData):
		respondError(c, http.StatusUnprocessableEntity, "INVALID_TRAINING_DATA", err.Error())
	case errors.Is(err, models.ErrNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(c, http.StatusGatewayTimeout, "REQUEST_TIMEOUT", "Request was cancelled")
	default:
		logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	}
}

func validationDetails(err error) []gin.H {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []gin.H{{"message": err.Error()}}
	}
	details := make([]gin.H, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, gin.H{
			"field": fe.Namespace(),
			"rule":  fe.Tag(),
			"param": fe.Param(),
		})
	}
	return details
}
