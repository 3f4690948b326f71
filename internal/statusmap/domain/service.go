package domain

import (
	"context"
	"errors"
)

type CreateMappingRequest struct {
	KaspiStatus   string
	AmoPipelineID int64
	AmoStatusID   int64
	SortOrder     int
	IsActive      bool
}

type UpdateMappingRequest struct {
	ID          string
	AmoStatusID *int64
	SortOrder   *int
	IsActive    *bool
}

// StatusMap resolves upstream order statuses to downstream stage ids and
// carries the admin CRUD for the mapping table.
type StatusMap interface {
	// ActiveStatusID returns the downstream status id for the given upstream
	// status, or (0, nil) when no active mapping exists. When several active
	// mappings compete the lowest sort order wins.
	ActiveStatusID(ctx context.Context, kaspiStatus string, pipelineID int64) (int64, error)

	Create(ctx context.Context, req CreateMappingRequest) (StatusMapping, error)
	Update(ctx context.Context, req UpdateMappingRequest) (StatusMapping, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, pipelineID int64) ([]StatusMapping, error)
	SetActive(ctx context.Context, id string, active bool) (StatusMapping, error)
}

var (
	ErrInvalidStatus   = errors.New("invalid_status")
	ErrInvalidPipeline = errors.New("invalid_pipeline")
	ErrInvalidStage    = errors.New("invalid_stage")
	ErrInvalidID       = errors.New("invalid_id")
	ErrNotFound        = errors.New("not_found")
)
