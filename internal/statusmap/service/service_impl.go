package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/qazaqsoft/kaspisync/internal/statusmap/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p Params) domain.StatusMap {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("statusmap.service"),
		genID: p.GenID,
	}
}

func (s *Service) ActiveStatusID(ctx context.Context, kaspiStatus string, pipelineID int64) (int64, error) {
	kaspiStatus = strings.TrimSpace(kaspiStatus)
	if kaspiStatus == "" {
		return 0, domain.ErrInvalidStatus
	}

	var mapping domain.StatusMapping
	err := s.db.WithContext(ctx).
		Where("kaspi_status = ? AND amo_pipeline_id = ? AND is_active = ?", kaspiStatus, pipelineID, true).
		Order("sort_order ASC, id ASC").
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return mapping.AmoStatusID, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateMappingRequest) (domain.StatusMapping, error) {
	status := strings.TrimSpace(req.KaspiStatus)
	if status == "" {
		return domain.StatusMapping{}, domain.ErrInvalidStatus
	}
	if req.AmoPipelineID <= 0 {
		return domain.StatusMapping{}, domain.ErrInvalidPipeline
	}
	if req.AmoStatusID <= 0 {
		return domain.StatusMapping{}, domain.ErrInvalidStage
	}

	now := time.Now().UTC()
	mapping := domain.StatusMapping{
		ID:            s.genID.Generate(),
		KaspiStatus:   status,
		AmoPipelineID: req.AmoPipelineID,
		AmoStatusID:   req.AmoStatusID,
		SortOrder:     req.SortOrder,
		IsActive:      req.IsActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.db.WithContext(ctx).Create(&mapping).Error; err != nil {
		return domain.StatusMapping{}, err
	}

	s.log.Info("status mapping created",
		zap.String("kaspi_status", mapping.KaspiStatus),
		zap.Int64("amo_pipeline_id", mapping.AmoPipelineID),
		zap.Int64("amo_status_id", mapping.AmoStatusID),
	)
	return mapping, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateMappingRequest) (domain.StatusMapping, error) {
	mapping, err := s.get(ctx, req.ID)
	if err != nil {
		return domain.StatusMapping{}, err
	}

	if req.AmoStatusID != nil {
		if *req.AmoStatusID <= 0 {
			return domain.StatusMapping{}, domain.ErrInvalidStage
		}
		mapping.AmoStatusID = *req.AmoStatusID
	}
	if req.SortOrder != nil {
		mapping.SortOrder = *req.SortOrder
	}
	if req.IsActive != nil {
		mapping.IsActive = *req.IsActive
	}
	mapping.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Save(&mapping).Error; err != nil {
		return domain.StatusMapping{}, err
	}
	return mapping, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	mapping, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&domain.StatusMapping{}, "id = ?", mapping.ID).Error
}

func (s *Service) List(ctx context.Context, pipelineID int64) ([]domain.StatusMapping, error) {
	q := s.db.WithContext(ctx).Model(&domain.StatusMapping{})
	if pipelineID > 0 {
		q = q.Where("amo_pipeline_id = ?", pipelineID)
	}

	var mappings []domain.StatusMapping
	if err := q.Order("kaspi_status ASC, sort_order ASC").Find(&mappings).Error; err != nil {
		return nil, err
	}
	return mappings, nil
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) (domain.StatusMapping, error) {
	return s.Update(ctx, domain.UpdateMappingRequest{ID: id, IsActive: &active})
}

func (s *Service) get(ctx context.Context, id string) (domain.StatusMapping, error) {
	raw := strings.TrimSpace(id)
	if raw == "" {
		return domain.StatusMapping{}, domain.ErrInvalidID
	}
	parsed, err := snowflake.ParseString(raw)
	if err != nil {
		return domain.StatusMapping{}, domain.ErrInvalidID
	}

	var mapping domain.StatusMapping
	err = s.db.WithContext(ctx).First(&mapping, "id = ?", parsed).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.StatusMapping{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.StatusMapping{}, err
	}
	return mapping, nil
}
