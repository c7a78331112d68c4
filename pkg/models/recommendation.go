package models

import (
	"time"

	"github.com/google/uuid"
)

// Slot sources, in the order the re-ranker consults its pools.
const (
	SourceCostly    = "costly"
	SourcePersonal  = "personal_top"
	SourceCandidate = "candidate"
	SourceGlobal    = "global_top"
	SourceSweep     = "sweep"
)

type Recommendation struct {
	ItemID      int64   `json:"item_id"`
	Position    int     `json:"position"`
	Source      string  `json:"source"`
	SubCategory string  `json:"sub_category,omitempty"`
	Price       float64 `json:"price"`
}

type RecommendationRequest struct {
	UserID int64 `json:"user_id" validate:"required,min=1"`
	Count  int   `json:"count" validate:"omitempty,min=1,max=50"`
}

type RecommendationResponse struct {
	UserID          int64            `json:"user_id"`
	Recommendations []Recommendation `json:"recommendations"`
	Short           bool             `json:"short"`
	ColdStart       bool             `json:"cold_start"`
	ModelVersion    uuid.UUID        `json:"model_version"`
	GeneratedAt     time.Time        `json:"generated_at"`
	CacheHit        bool             `json:"cache_hit"`
}

type BatchRecommendationRequest struct {
	Requests []RecommendationRequest `json:"requests" validate:"required,min=1,max=50,dive"`
}

type BatchRecommendationResponse struct {
	Responses []RecommendationResponse `json:"responses"`
}

type RetrainRequest struct {
	TakeNPopular int    `json:"take_n_popular,omitempty" validate:"omitempty,min=1"`
	Reason       string `json:"reason,omitempty" validate:"omitempty,max=200"`
}

type ModelInfo struct {
	Version     uuid.UUID `json:"version"`
	FittedAt    time.Time `json:"fitted_at"`
	Users       int       `json:"users"`
	Items       int       `json:"items"`
	Factors     int       `json:"factors"`
	TrainingRun string    `json:"training_run,omitempty"`
}
