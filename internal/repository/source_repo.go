package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "github.com/aihub/researchgraph/internal/errors"
	"github.com/aihub/researchgraph/internal/models"
)

type sourceRepository struct {
	db *gorm.DB
}

// NewSourceRepository 创建来源仓库
func NewSourceRepository(db *gorm.DB) SourceRepository {
	return &sourceRepository{db: db}
}

// UpsertByIdentity 幂等创建来源
// 同一(origin, external_id)已有存活记录时回填现有行并返回created=false；
// external_id为空的结果（实时检索片段）无法判定身份，总是新建
func (r *sourceRepository) UpsertByIdentity(ctx context.Context, src *models.Source) (bool, error) {
	if src.ExternalID != nil && *src.ExternalID != "" {
		var existing models.Source
		err := r.db.WithContext(ctx).
			Where("origin = ? AND external_id = ?", src.Origin, *src.ExternalID).
			First(&existing).Error
		if err == nil {
			*src = existing
			return false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("failed to look up source by identity: %w", err)
		}
	}

	if err := r.db.WithContext(ctx).Create(src).Error; err != nil {
		// 部分唯一索引拒绝第二条的两种情况：并发摄取同一外部身份，
		// 或同一DOI已由其他来源渠道入库（arxiv与openalex常见重叠）。回读存活的那条
		if src.ExternalID != nil && *src.ExternalID != "" {
			var existing models.Source
			lookupErr := r.db.WithContext(ctx).
				Where("origin = ? AND external_id = ?", src.Origin, *src.ExternalID).
				First(&existing).Error
			if lookupErr == nil {
				*src = existing
				return false, nil
			}
		}
		if src.DOI != nil && *src.DOI != "" {
			var existing models.Source
			lookupErr := r.db.WithContext(ctx).
				Where("doi = ?", *src.DOI).
				First(&existing).Error
			if lookupErr == nil {
				*src = existing
				return false, nil
			}
		}
		return false, fmt.Errorf("failed to create source: %w", err)
	}
	return true, nil
}

func (r *sourceRepository) Get(ctx context.Context, sourceID uint) (*models.Source, error) {
	var src models.Source
	if err := r.db.WithContext(ctx).Where("source_id = ?", sourceID).First(&src).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("source %d not found", sourceID))
		}
		return nil, err
	}
	return &src, nil
}

// ListRecent 按创建时间倒序返回最近的来源，供去重扫描作为候选窗口
func (r *sourceRepository) ListRecent(ctx context.Context, limit int) ([]models.Source, error) {
	if limit <= 0 {
		limit = 100
	}
	var sources []models.Source
	if err := r.db.WithContext(ctx).
		Order("create_time DESC, source_id DESC").
		Limit(limit).
		Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent sources: %w", err)
	}
	return sources, nil
}

// MergeSources 在单个事务内把败者的关系外键改指到胜者、删除败者、按需回填DOI
// 改指先于删除，事务中途失败时整体回滚，不会出现悬挂外键；
// DOI回填必须晚于删除，否则uq_sources_doi会在败者仍存活时拒绝这次UPDATE
func (r *sourceRepository) MergeSources(ctx context.Context, winnerID, loserID uint, backfillDOI *string) error {
	if winnerID == loserID {
		return apperrors.NewValidationError("cannot merge a source into itself")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var winner models.Source
		if err := tx.Where("source_id = ?", winnerID).First(&winner).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFoundError(fmt.Sprintf("merge winner %d not found", winnerID))
			}
			return err
		}
		var loser models.Source
		if err := tx.Where("source_id = ?", loserID).First(&loser).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFoundError(fmt.Sprintf("merge loser %d not found", loserID))
			}
			return err
		}

		// 1. 改指：两侧外键都可能引用败者
		if err := tx.Model(&models.Connection{}).
			Where("source_a_id = ?", loserID).
			Update("source_a_id", winnerID).Error; err != nil {
			return fmt.Errorf("failed to repoint connections (side a): %w", err)
		}
		if err := tx.Model(&models.Connection{}).
			Where("source_b_id = ?", loserID).
			Update("source_b_id", winnerID).Error; err != nil {
			return fmt.Errorf("failed to repoint connections (side b): %w", err)
		}

		// 2. 删除败者，释放其占用的DOI唯一索引槽位
		if err := tx.Where("source_id = ?", loserID).Delete(&models.Source{}).Error; err != nil {
			return fmt.Errorf("failed to delete merged source %d: %w", loserID, err)
		}

		// 3. DOI回填：胜者缺失而败者携带时才写入
		if backfillDOI != nil && *backfillDOI != "" && (winner.DOI == nil || *winner.DOI == "") {
			if err := tx.Model(&models.Source{}).
				Where("source_id = ?", winnerID).
				Update("doi", *backfillDOI).Error; err != nil {
				return fmt.Errorf("failed to backfill doi: %w", err)
			}
		}
		return nil
	})
}
