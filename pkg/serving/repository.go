package serving

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/riskwise-ai/platform/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("prediction run not found")

// PredictionRun is the persistence model for one stored inference run,
// including the fully derived payload for later audits.
type PredictionRun struct {
	ID             string            `gorm:"primaryKey;column:id"`
	UserID         string            `gorm:"column:user_id;index"`
	Disease        string            `gorm:"column:disease;index"`
	ModelVersion   string            `gorm:"column:model_version"`
	PredictedLabel string            `gorm:"column:predicted_label"`
	PNormal        float64           `gorm:"column:p_normal"`
	PPrediabetes   float64           `gorm:"column:p_prediabetes"`
	PDiabetes      float64           `gorm:"column:p_diabetes"`
	RequestPayload datatypes.JSONMap `gorm:"column:request_payload"`
	LatencyMs      float64           `gorm:"column:latency_ms"`
	CreatedAt      time.Time         `gorm:"column:created_at"`
}

func (PredictionRun) TableName() string {
	return "prediction_runs"
}

type User struct {
	ID        string    `gorm:"primaryKey;column:id"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (User) TableName() string {
	return "users"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&PredictionRun{}, &User{})
}

// RecordRun persists one run and returns its identifier.
func (r *Repository) RecordRun(ctx context.Context, userID string, resp models.PredictionResponse, payload map[string]interface{}) (string, error) {
	run := PredictionRun{
		ID:             uuid.New().String(),
		UserID:         userID,
		Disease:        resp.Disease,
		ModelVersion:   resp.ModelVersion,
		PredictedLabel: resp.PredictedLabel,
		PNormal:        resp.Probabilities.PNormal,
		PPrediabetes:   resp.Probabilities.PPrediabetes,
		PDiabetes:      resp.Probabilities.PDiabetes,
		RequestPayload: datatypes.JSONMap(payload),
		LatencyMs:      float64(resp.Latency.Microseconds()) / 1000.0,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
		return "", err
	}
	return run.ID, nil
}

// RunFilter narrows List; zero values mean no filter.
type RunFilter struct {
	Disease string
	UserID  string
	Limit   int
	Offset  int
}

func (r *Repository) List(ctx context.Context, filter RunFilter) ([]PredictionRun, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := r.db.WithContext(ctx).Model(&PredictionRun{})
	if filter.Disease != "" {
		query = query.Where("disease = ?", filter.Disease)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var runs []PredictionRun
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&runs).Error
	return runs, err
}

func (r *Repository) Get(ctx context.Context, runID string) (*PredictionRun, error) {
	var run PredictionRun
	result := r.db.WithContext(ctx).First(&run, "id = ?", runID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	return &run, result.Error
}

func (r *Repository) GetOrCreateUser(ctx context.Context, userID string) (*User, error) {
	var user User
	result := r.db.WithContext(ctx).First(&user, "id = ?", userID)
	if result.Error == nil {
		return &user, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, result.Error
	}
	user = User{ID: userID, CreatedAt: time.Now().UTC()}
	if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]User, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	var users []User
	err := r.db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}
