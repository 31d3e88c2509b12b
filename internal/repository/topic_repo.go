package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/aihub/researchgraph/internal/errors"
	"github.com/aihub/researchgraph/internal/graph"
	"github.com/aihub/researchgraph/internal/logger"
	"github.com/aihub/researchgraph/internal/models"
)

type topicRepository struct {
	db *gorm.DB
}

// NewTopicRepository 创建话题仓库
func NewTopicRepository(db *gorm.DB) TopicRepository {
	return &topicRepository{db: db}
}

// BestMatch 在用户全部话题中找余弦相似度最高且达到阈值的一个
// 没有话题或最高相似度低于阈值时返回nil
func (r *topicRepository) BestMatch(ctx context.Context, userID uint, embedding []float32, threshold float64) (*graph.TopicMatchInfo, error) {
	var topics []models.Topic
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&topics).Error; err != nil {
		return nil, fmt.Errorf("failed to list topics for user %d: %w", userID, err)
	}

	var best *graph.TopicMatchInfo
	for _, topic := range topics {
		centroid, err := graph.DecodeEmbedding(topic.Centroid)
		if err != nil {
			logger.GetLogger().Warn(fmt.Sprintf("skipping topic %d with unreadable centroid: %v", topic.TopicID, err))
			continue
		}
		sim := graph.CosineSimilarity(embedding, centroid)
		if sim < threshold {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &graph.TopicMatchInfo{TopicID: topic.TopicID, Label: topic.Label, Similarity: sim}
		}
	}
	return best, nil
}

// AppendMember 原子地将一条查询嵌入并入话题：质心取运行均值，成员数加一
// 在行锁下读改写，同一话题的并发归并彼此串行
func (r *topicRepository) AppendMember(ctx context.Context, topicID uint, embedding []float32) (*models.Topic, error) {
	var updated models.Topic
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var topic models.Topic
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("topic_id = ?", topicID).
			First(&topic).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFoundError(fmt.Sprintf("topic %d not found", topicID))
			}
			return err
		}

		centroid, err := graph.DecodeEmbedding(topic.Centroid)
		if err != nil {
			return fmt.Errorf("topic %d centroid unreadable: %w", topicID, err)
		}

		newCentroid := graph.UpdateCentroid(centroid, topic.MemberCount, embedding)
		encoded, err := graph.EncodeEmbedding(newCentroid)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.Topic{}).
			Where("topic_id = ?", topicID).
			Updates(map[string]interface{}{
				"centroid":     encoded,
				"member_count": topic.MemberCount + 1,
			}).Error; err != nil {
			return fmt.Errorf("failed to update topic %d: %w", topicID, err)
		}

		topic.Centroid = encoded
		topic.MemberCount++
		updated = topic
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Create 以首条查询嵌入作为初始质心创建话题
func (r *topicRepository) Create(ctx context.Context, userID uint, label string, embedding []float32) (*models.Topic, error) {
	encoded, err := graph.EncodeEmbedding(embedding)
	if err != nil {
		return nil, err
	}

	topic := models.Topic{
		UserID:      userID,
		Label:       label,
		Centroid:    encoded,
		MemberCount: 1,
	}
	if err := r.db.WithContext(ctx).Create(&topic).Error; err != nil {
		return nil, fmt.Errorf("failed to create topic: %w", err)
	}
	return &topic, nil
}

func (r *topicRepository) Get(ctx context.Context, topicID uint) (*models.Topic, error) {
	var topic models.Topic
	if err := r.db.WithContext(ctx).Where("topic_id = ?", topicID).First(&topic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("topic %d not found", topicID))
		}
		return nil, err
	}
	return &topic, nil
}

func (r *topicRepository) ListByUser(ctx context.Context, userID uint) ([]models.Topic, error) {
	var topics []models.Topic
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("topic_id").
		Find(&topics).Error; err != nil {
		return nil, fmt.Errorf("failed to list topics for user %d: %w", userID, err)
	}
	return topics, nil
}

// ListUsersWithTopics 返回至少拥有两个话题的用户，供桥接/缺口分析遍历
func (r *topicRepository) ListUsersWithTopics(ctx context.Context) ([]uint, error) {
	var userIDs []uint
	if err := r.db.WithContext(ctx).
		Model(&models.Topic{}).
		Select("user_id").
		Group("user_id").
		Having("COUNT(*) >= 2").
		Order("user_id").
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to list users with topics: %w", err)
	}
	return userIDs, nil
}
