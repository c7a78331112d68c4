package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/basketrec/pkg/models"
)

type RecommendationHandler struct {
	recommender  RecommendationService
	validate     *validator.Validate
	defaultCount int
	logger       *logrus.Logger
}

func NewRecommendationHandler(
	recommender RecommendationService,
	validate *validator.Validate,
	defaultCount int,
	logger *logrus.Logger,
) *RecommendationHandler {
	if defaultCount <= 0 {
		defaultCount = 5
	}
	return &RecommendationHandler{
		recommender:  recommender,
		validate:     validate,
		defaultCount: defaultCount,
		logger:       logger,
	}
}

// Get serves GET /recommendations/:userId?count=N.
func (h *RecommendationHandler) Get(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		respondError(c, http.StatusBadRequest, "INVALID_USER_ID", "User ID must be a positive integer")
		return
	}

	req := models.RecommendationRequest{UserID: userID, Count: h.defaultCount}
	if countStr := c.Query("count"); countStr != "" {
		count, err := strconv.Atoi(countStr)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_COUNT", "Count must be an integer")
			return
		}
		req.Count = count
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

	resp, err := h.recommender.Recommend(c.Request.Context(), req.UserID, req.Count)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetBatch serves POST /recommendations/batch.
func (h *RecommendationHandler) GetBatch(c *gin.Context) {
	var batchRequest models.BatchRecommendationRequest
	if err := c.ShouldBindJSON(&batchRequest); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST_BODY", "Invalid request body format")
		return
	}
	if err := h.validate.Struct(batchRequest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Request validation failed",
				"details": validationDetails(err),
			},
		})
		return
	}

	for i := range batchRequest.Requests {
		if batchRequest.Requests[i].Count == 0 {
			batchRequest.Requests[i].Count = h.defaultCount
		}
	}

	responses, err := h.recommender.RecommendBatch(c.Request.Context(), batchRequest.Requests)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.BatchRecommendationResponse{Responses: responses})
}
