package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "github.com/aihub/researchgraph/internal/errors"
	"github.com/aihub/researchgraph/internal/models"
)

type queryRepository struct {
	db *gorm.DB
}

// NewQueryRepository 创建查询仓库
func NewQueryRepository(db *gorm.DB) QueryRepository {
	return &queryRepository{db: db}
}

func (r *queryRepository) Create(ctx context.Context, userID uint, text string) (*models.Query, error) {
	query := models.Query{
		UserID: userID,
		Text:   text,
	}
	if err := r.db.WithContext(ctx).Create(&query).Error; err != nil {
		return nil, fmt.Errorf("failed to create query: %w", err)
	}
	return &query, nil
}

func (r *queryRepository) Get(ctx context.Context, queryID uint) (*models.Query, error) {
	var query models.Query
	if err := r.db.WithContext(ctx).Where("query_id = ?", queryID).First(&query).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("query %d not found", queryID))
		}
		return nil, err
	}
	return &query, nil
}

// AssignTopic 设置查询的话题归属，仅在尚未归属时生效
func (r *queryRepository) AssignTopic(ctx context.Context, queryID, topicID uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.Query{}).
		Where("query_id = ? AND topic_id IS NULL", queryID).
		Update("topic_id", topicID)
	if result.Error != nil {
		return fmt.Errorf("failed to assign topic to query %d: %w", queryID, result.Error)
	}
	return nil
}

func (r *queryRepository) SetSynthesis(ctx context.Context, queryID uint, synthesis string) error {
	if err := r.db.WithContext(ctx).
		Model(&models.Query{}).
		Where("query_id = ?", queryID).
		Update("synthesis", synthesis).Error; err != nil {
		return fmt.Errorf("failed to store synthesis for query %d: %w", queryID, err)
	}
	return nil
}

// TextsByIDs 批量取查询文本，供跨查询呼应结果补充上下文
func (r *queryRepository) TextsByIDs(ctx context.Context, queryIDs []uint) (map[uint]string, error) {
	texts := make(map[uint]string, len(queryIDs))
	if len(queryIDs) == 0 {
		return texts, nil
	}

	var rows []models.Query
	if err := r.db.WithContext(ctx).
		Select("query_id", "text").
		Where("query_id IN ?", queryIDs).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load query texts: %w", err)
	}
	for _, row := range rows {
		texts[row.QueryID] = row.Text
	}
	return texts, nil
}
