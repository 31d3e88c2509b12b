package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/aihub/researchgraph/internal/models"
)

type connectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository 创建关系仓库
func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) BulkCreate(ctx context.Context, connections []models.Connection) error {
	if len(connections) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&connections).Error; err != nil {
		return fmt.Errorf("failed to create connections: %w", err)
	}
	return nil
}

func (r *connectionRepository) ListByQuery(ctx context.Context, queryID uint) ([]models.Connection, error) {
	var connections []models.Connection
	if err := r.db.WithContext(ctx).
		Where("query_id = ?", queryID).
		Order("connection_id").
		Find(&connections).Error; err != nil {
		return nil, fmt.Errorf("failed to list connections for query %d: %w", queryID, err)
	}
	return connections, nil
}

func (r *connectionRepository) ListBySource(ctx context.Context, sourceID uint) ([]models.Connection, error) {
	var connections []models.Connection
	if err := r.db.WithContext(ctx).
		Where("source_a_id = ? OR source_b_id = ?", sourceID, sourceID).
		Order("connection_id").
		Find(&connections).Error; err != nil {
		return nil, fmt.Errorf("failed to list connections for source %d: %w", sourceID, err)
	}
	return connections, nil
}
