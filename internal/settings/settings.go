package settings

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Well-known keys consumed by the pipeline and the scheduler.
const (
	KeyLastCreationMS = "last_creation_ms"
	KeyLastCheckMS    = "last_check_ms"
)

// Setting is a durable key/value row. The watermarks and the scheduler
// last-run markers live here.
type Setting struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Setting) TableName() string { return "settings" }

// Store reads and writes durable settings.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	GetInt64(ctx context.Context, key string, def int64) (int64, error)
	SetInt64(ctx context.Context, key string, value int64) error
}

type store struct {
	db *gorm.DB
}

func New(db *gorm.DB) Store {
	return &store{db: db}
}

var Module = fx.Module("settings",
	fx.Provide(New),
)

func (s *store) Get(ctx context.Context, key string) (string, bool, error) {
	var row Setting
	err := s.db.WithContext(ctx).
		Where("key = ?", key).
		Take(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return row.Value, true, nil
}

func (s *store) Set(ctx context.Context, key, value string) error {
	row := Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
}

func (s *store) GetInt64(ctx context.Context, key string, def int64) (int64, error) {
	value, ok, err := s.Get(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok || strings.TrimSpace(value) == "" {
		return def, nil
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return def, nil
	}
	return parsed, nil
}

func (s *store) SetInt64(ctx context.Context, key string, value int64) error {
	return s.Set(ctx, key, strconv.FormatInt(value, 10))
}
