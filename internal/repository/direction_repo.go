package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/aihub/researchgraph/internal/errors"
	"github.com/aihub/researchgraph/internal/models"
)

type directionRepository struct {
	db *gorm.DB
}

// NewDirectionRepository 创建研究方向仓库
func NewDirectionRepository(db *gorm.DB) DirectionRepository {
	return &directionRepository{db: db}
}

func (r *directionRepository) Create(ctx context.Context, direction *models.ResearchDirection) error {
	if direction.Status == "" {
		direction.Status = models.DirectionStatusSearching
	}
	if err := r.db.WithContext(ctx).Create(direction).Error; err != nil {
		return fmt.Errorf("failed to create research direction: %w", err)
	}
	return nil
}

// Finish 将方向迁移到终态，WHERE子句限定当前仍为searching，终态记录不会被二次改写
func (r *directionRepository) Finish(ctx context.Context, directionID uint, status string, sourcesFound int, bridgeScoreAfter *float64, errorText *string) error {
	if !models.TerminalDirectionStatus(status) {
		return apperrors.NewValidationError(fmt.Sprintf("status %q is not terminal", status))
	}

	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.ResearchDirection{}).
		Where("direction_id = ? AND status = ?", directionID, models.DirectionStatusSearching).
		Updates(map[string]interface{}{
			"status":             status,
			"sources_found":      sourcesFound,
			"bridge_score_after": bridgeScoreAfter,
			"error_text":         errorText,
			"completed_at":       &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finish direction %d: %w", directionID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewBusinessError(apperrors.ErrCodeInvalidState,
			fmt.Sprintf("direction %d is not in searching state", directionID))
	}
	return nil
}

func (r *directionRepository) Get(ctx context.Context, directionID uint) (*models.ResearchDirection, error) {
	var direction models.ResearchDirection
	if err := r.db.WithContext(ctx).Where("direction_id = ?", directionID).First(&direction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("direction %d not found", directionID))
		}
		return nil, err
	}
	return &direction, nil
}

func (r *directionRepository) ListRecent(ctx context.Context, limit int) ([]models.ResearchDirection, error) {
	if limit <= 0 {
		limit = 50
	}
	var directions []models.ResearchDirection
	if err := r.db.WithContext(ctx).
		Order("create_time DESC, direction_id DESC").
		Limit(limit).
		Find(&directions).Error; err != nil {
		return nil, fmt.Errorf("failed to list research directions: %w", err)
	}
	return directions, nil
}
