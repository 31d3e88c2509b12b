package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/aihub/researchgraph/internal/errors"
	"github.com/aihub/researchgraph/internal/models"
)

// SourceCatalog 去重引擎所需的来源持久化能力
type SourceCatalog interface {
	Get(ctx context.Context, sourceID uint) (*models.Source, error)
	ListRecent(ctx context.Context, limit int) ([]models.Source, error)
	MergeSources(ctx context.Context, winnerID, loserID uint, backfillDOI *string) error
}

// DuplicatePair 一对疑似重复来源，ID按(小,大)规范化
type DuplicatePair struct {
	SourceAID  uint    `json:"source_a_id"`
	SourceBID  uint    `json:"source_b_id"`
	Similarity float64 `json:"similarity"`
}

// MergeOutcome 一次合并的裁决结果
type MergeOutcome struct {
	WinnerID     uint    `json:"winner_id"`
	LoserID      uint    `json:"loser_id"`
	Similarity   float64 `json:"similarity"`
	DOIBackfill  bool    `json:"doi_backfilled"`
	WinnerOrigin string  `json:"winner_origin"`
	LoserOrigin  string  `json:"loser_origin"`
}

// SweepReport 一轮去重扫描的汇总，Pairs保留候选对明细供审计
type SweepReport struct {
	Scanned    int             `json:"scanned"`
	PairsFound int             `json:"pairs_found"`
	Pairs      []DuplicatePair `json:"pairs"`
	Merged     []MergeOutcome  `json:"merged"`
	Skipped    int             `json:"skipped"`
	DryRun     bool            `json:"dry_run"`
}

// DedupEngine 语义去重引擎
// 近重复判定走向量近邻检索，合并在数据库事务内完成
type DedupEngine struct {
	store     VectorStore
	sources   SourceCatalog
	threshold float64
	logger    *zap.Logger
}

// NewDedupEngine 创建去重引擎
func NewDedupEngine(store VectorStore, sources SourceCatalog, threshold float64, log *zap.Logger) *DedupEngine {
	return &DedupEngine{
		store:     store,
		sources:   sources,
		threshold: threshold,
		logger:    log,
	}
}

// FindDuplicates 在最近摄取的来源窗口内寻找相似度达到阈值的来源对
// 返回的对已按(小ID,大ID)规范化并去重
func (e *DedupEngine) FindDuplicates(ctx context.Context, scanWindow, maxPairs int) ([]DuplicatePair, error) {
	if scanWindow <= 0 {
		scanWindow = 200
	}
	if maxPairs <= 0 {
		maxPairs = 50
	}

	recent, err := e.sources.ListRecent(ctx, scanWindow)
	if err != nil {
		return nil, err
	}

	seen := make(map[[2]uint]bool)
	var pairs []DuplicatePair
	for _, src := range recent {
		if len(pairs) >= maxPairs {
			break
		}
		embedding, err := DecodeEmbedding(src.Embedding)
		if err != nil {
			continue
		}

		matches, err := e.store.SearchSimilar(ctx, VectorSearchRequest{
			QueryEmbedding: embedding,
			Limit:          5,
			Threshold:      e.threshold,
		})
		if err != nil {
			e.logger.Warn("duplicate search failed for source, skipping",
				zap.Uint("source_id", src.SourceID),
				zap.Error(err))
			continue
		}

		for _, match := range matches {
			if match.SourceID == src.SourceID {
				continue
			}
			key := canonicalPair(src.SourceID, match.SourceID)
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, DuplicatePair{
				SourceAID:  key[0],
				SourceBID:  key[1],
				Similarity: match.Similarity,
			})
			if len(pairs) >= maxPairs {
				break
			}
		}
	}
	return pairs, nil
}

// MergePair 裁决并合并一对重复来源
// 胜者按来源优先级（arxiv > openalex > live_search）选出，同级时保留第一个参数
func (e *DedupEngine) MergePair(ctx context.Context, aID, bID uint, similarity float64) (*MergeOutcome, error) {
	if aID == bID {
		return nil, apperrors.NewValidationError("cannot merge a source with itself")
	}

	a, err := e.sources.Get(ctx, aID)
	if err != nil {
		return nil, err
	}
	b, err := e.sources.Get(ctx, bID)
	if err != nil {
		return nil, err
	}

	winner, loser := resolveMergeWinner(a, b)

	// DOI只在胜者缺失而败者携带时回填
	var backfill *string
	if (winner.DOI == nil || *winner.DOI == "") && loser.DOI != nil && *loser.DOI != "" {
		backfill = loser.DOI
	}

	if err := e.sources.MergeSources(ctx, winner.SourceID, loser.SourceID, backfill); err != nil {
		return nil, err
	}

	// 数据库合并已提交，向量副本删除失败只记日志，下一轮扫描会重新发现
	if err := e.store.DeleteSource(ctx, loser.SourceID); err != nil {
		e.logger.Warn("failed to delete merged source vector",
			zap.Uint("source_id", loser.SourceID),
			zap.Error(err))
	}

	e.logger.Info("merged duplicate sources",
		zap.Uint("winner_id", winner.SourceID),
		zap.Uint("loser_id", loser.SourceID),
		zap.String("winner_origin", winner.Origin),
		zap.Float64("similarity", similarity))

	return &MergeOutcome{
		WinnerID:     winner.SourceID,
		LoserID:      loser.SourceID,
		Similarity:   similarity,
		DOIBackfill:  backfill != nil,
		WinnerOrigin: winner.Origin,
		LoserOrigin:  loser.Origin,
	}, nil
}

// Sweep 一轮完整去重：扫描、裁决、合并
// 同一轮内已被合并掉的来源再出现在后续对中时跳过该对；dryRun只报告不落库
func (e *DedupEngine) Sweep(ctx context.Context, scanWindow, maxPairs int, dryRun bool) (*SweepReport, error) {
	pairs, err := e.FindDuplicates(ctx, scanWindow, maxPairs)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{
		Scanned:    scanWindow,
		PairsFound: len(pairs),
		Pairs:      pairs,
		DryRun:     dryRun,
	}
	if dryRun {
		return report, nil
	}

	gone := make(map[uint]bool)
	for _, pair := range pairs {
		if gone[pair.SourceAID] || gone[pair.SourceBID] {
			report.Skipped++
			continue
		}
		outcome, err := e.MergePair(ctx, pair.SourceAID, pair.SourceBID, pair.Similarity)
		if err != nil {
			e.logger.Error(fmt.Sprintf("merge failed for pair (%d, %d)", pair.SourceAID, pair.SourceBID),
				zap.Error(err))
			report.Skipped++
			continue
		}
		gone[outcome.LoserID] = true
		report.Merged = append(report.Merged, *outcome)
	}
	return report, nil
}

// resolveMergeWinner 按来源优先级裁决，同级时保留第一个参数
// Sweep传入的对已按(小ID,大ID)规范化，同级裁决因此落在更早入库的一条上
func resolveMergeWinner(a, b *models.Source) (winner, loser *models.Source) {
	if models.OriginPriority(b.Origin) > models.OriginPriority(a.Origin) {
		return b, a
	}
	return a, b
}

func canonicalPair(a, b uint) [2]uint {
	if a < b {
		return [2]uint{a, b}
	}
	return [2]uint{b, a}
}
