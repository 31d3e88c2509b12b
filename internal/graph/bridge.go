package graph

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/aihub/researchgraph/internal/models"
)

// TopicCatalog 桥接/缺口分析所需的话题读取能力
type TopicCatalog interface {
	Get(ctx context.Context, topicID uint) (*models.Topic, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Topic, error)
}

// BridgeSource 同时贴近两个话题质心的来源
// 桥接分取两侧相似度的较小值，来源必须对两侧都达标才算桥
type BridgeSource struct {
	SourceID    uint    `json:"source_id"`
	Title       string  `json:"title"`
	SimilarityA float64 `json:"similarity_a"`
	SimilarityB float64 `json:"similarity_b"`
	BridgeScore float64 `json:"bridge_score"`
}

// TopicBridge 一对话题与其全部桥接来源
type TopicBridge struct {
	TopicAID    uint           `json:"topic_a_id"`
	TopicBID    uint           `json:"topic_b_id"`
	LabelA      string         `json:"label_a"`
	LabelB      string         `json:"label_b"`
	CentroidSim float64        `json:"centroid_similarity"`
	BestScore   float64        `json:"best_score"`
	Sources     []BridgeSource `json:"sources"`
}

// TopicGap 语义相近却没有任何桥接来源的话题对
type TopicGap struct {
	TopicAID      uint    `json:"topic_a_id"`
	TopicBID      uint    `json:"topic_b_id"`
	LabelA        string  `json:"label_a"`
	LabelB        string  `json:"label_b"`
	CentroidSim   float64 `json:"centroid_similarity"`
	PriorityScore float64 `json:"priority_score"`
}

// 每侧质心近邻检索的候选上限，桥接来源必须同时出现在两侧结果里
const bridgeSearchLimit = 100

// BridgeGapAnalyzer 话题桥接与知识缺口分析器
type BridgeGapAnalyzer struct {
	topics        TopicCatalog
	store         VectorStore
	minSimilarity float64 // 桥接来源对每侧质心的最低相似度
	gapMinSim     float64 // 话题对进入缺口候选的最低质心相似度
	gapMinMembers int64   // 话题进入缺口候选的最低成员数
	logger        *zap.Logger
}

// NewBridgeGapAnalyzer 创建分析器
func NewBridgeGapAnalyzer(topics TopicCatalog, store VectorStore, minSimilarity, gapMinSim float64, gapMinMembers int64, log *zap.Logger) *BridgeGapAnalyzer {
	return &BridgeGapAnalyzer{
		topics:        topics,
		store:         store,
		minSimilarity: minSimilarity,
		gapMinSim:     gapMinSim,
		gapMinMembers: gapMinMembers,
		logger:        log,
	}
}

// PairBridgeScore 计算一对话题的桥接分：全部桥接来源中min(simA, simB)的最大值
// 没有任何来源同时贴近两侧时为0；参数交换不改变结果
func (a *BridgeGapAnalyzer) PairBridgeScore(ctx context.Context, topicAID, topicBID uint) (float64, error) {
	topicA, err := a.topics.Get(ctx, topicAID)
	if err != nil {
		return 0, err
	}
	topicB, err := a.topics.Get(ctx, topicBID)
	if err != nil {
		return 0, err
	}

	sources, err := a.bridgeSources(ctx, topicA, topicB)
	if err != nil {
		return 0, err
	}

	best := 0.0
	for _, src := range sources {
		if src.BridgeScore > best {
			best = src.BridgeScore
		}
	}
	return best, nil
}

// bridgeSources 对两侧质心各做一次近邻检索，取命中交集
func (a *BridgeGapAnalyzer) bridgeSources(ctx context.Context, topicA, topicB *models.Topic) ([]BridgeSource, error) {
	centroidA, err := DecodeEmbedding(topicA.Centroid)
	if err != nil {
		return nil, err
	}
	centroidB, err := DecodeEmbedding(topicB.Centroid)
	if err != nil {
		return nil, err
	}

	hitsA, err := a.store.SearchSimilar(ctx, VectorSearchRequest{
		QueryEmbedding: centroidA,
		Limit:          bridgeSearchLimit,
		Threshold:      a.minSimilarity,
	})
	if err != nil {
		return nil, err
	}
	hitsB, err := a.store.SearchSimilar(ctx, VectorSearchRequest{
		QueryEmbedding: centroidB,
		Limit:          bridgeSearchLimit,
		Threshold:      a.minSimilarity,
	})
	if err != nil {
		return nil, err
	}

	simB := make(map[uint]VectorMatch, len(hitsB))
	for _, hit := range hitsB {
		simB[hit.SourceID] = hit
	}

	var sources []BridgeSource
	for _, hitA := range hitsA {
		hitB, ok := simB[hitA.SourceID]
		if !ok {
			continue
		}
		score := hitA.Similarity
		if hitB.Similarity < score {
			score = hitB.Similarity
		}
		sources = append(sources, BridgeSource{
			SourceID:    hitA.SourceID,
			Title:       hitA.Title,
			SimilarityA: hitA.Similarity,
			SimilarityB: hitB.Similarity,
			BridgeScore: score,
		})
	}

	sort.Slice(sources, func(i, j int) bool {
		if sources[i].BridgeScore != sources[j].BridgeScore {
			return sources[i].BridgeScore > sources[j].BridgeScore
		}
		return sources[i].SourceID < sources[j].SourceID
	})
	return sources, nil
}

// SemanticBridges 枚举用户话题的全部规范化对，返回存在桥接来源的对
// 按最佳桥接分降序，limit限制返回的话题对数量
func (a *BridgeGapAnalyzer) SemanticBridges(ctx context.Context, userID uint, limit int) ([]TopicBridge, error) {
	topics, err := a.topics.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var bridges []TopicBridge
	for i := 0; i < len(topics); i++ {
		for j := i + 1; j < len(topics); j++ {
			sources, err := a.bridgeSources(ctx, &topics[i], &topics[j])
			if err != nil {
				a.logger.Warn("bridge search failed for topic pair, skipping",
					zap.Uint("topic_a_id", topics[i].TopicID),
					zap.Uint("topic_b_id", topics[j].TopicID),
					zap.Error(err))
				continue
			}
			if len(sources) == 0 {
				continue
			}
			bridges = append(bridges, TopicBridge{
				TopicAID:    topics[i].TopicID,
				TopicBID:    topics[j].TopicID,
				LabelA:      topics[i].Label,
				LabelB:      topics[j].Label,
				CentroidSim: a.centroidSimilarity(&topics[i], &topics[j]),
				BestScore:   sources[0].BridgeScore,
				Sources:     sources,
			})
		}
	}

	sort.Slice(bridges, func(i, j int) bool {
		return bridges[i].BestScore > bridges[j].BestScore
	})
	if limit > 0 && len(bridges) > limit {
		bridges = bridges[:limit]
	}
	return bridges, nil
}

// TopicGaps 找出语义相近却缺少桥接来源的话题对
// 候选对要求两侧成员数和质心相似度都达标，优先级 = 质心相似度 * (1 - 桥接分)
func (a *BridgeGapAnalyzer) TopicGaps(ctx context.Context, userID uint, limit int) ([]TopicGap, error) {
	topics, err := a.topics.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var gaps []TopicGap
	for i := 0; i < len(topics); i++ {
		if topics[i].MemberCount < a.gapMinMembers {
			continue
		}
		for j := i + 1; j < len(topics); j++ {
			if topics[j].MemberCount < a.gapMinMembers {
				continue
			}
			centroidSim := a.centroidSimilarity(&topics[i], &topics[j])
			if centroidSim < a.gapMinSim {
				continue
			}

			sources, err := a.bridgeSources(ctx, &topics[i], &topics[j])
			if err != nil {
				a.logger.Warn("gap analysis failed for topic pair, skipping",
					zap.Uint("topic_a_id", topics[i].TopicID),
					zap.Uint("topic_b_id", topics[j].TopicID),
					zap.Error(err))
				continue
			}

			bridgeScore := 0.0
			if len(sources) > 0 {
				bridgeScore = sources[0].BridgeScore
			}
			// 已有达标桥接来源的对不是缺口
			if bridgeScore >= a.minSimilarity {
				continue
			}

			gaps = append(gaps, TopicGap{
				TopicAID:      topics[i].TopicID,
				TopicBID:      topics[j].TopicID,
				LabelA:        topics[i].Label,
				LabelB:        topics[j].Label,
				CentroidSim:   centroidSim,
				PriorityScore: centroidSim * (1 - bridgeScore),
			})
		}
	}

	sort.Slice(gaps, func(i, j int) bool {
		return gaps[i].PriorityScore > gaps[j].PriorityScore
	})
	if limit > 0 && len(gaps) > limit {
		gaps = gaps[:limit]
	}
	return gaps, nil
}

func (a *BridgeGapAnalyzer) centroidSimilarity(topicA, topicB *models.Topic) float64 {
	centroidA, err := DecodeEmbedding(topicA.Centroid)
	if err != nil {
		return 0
	}
	centroidB, err := DecodeEmbedding(topicB.Centroid)
	if err != nil {
		return 0
	}
	return CosineSimilarity(centroidA, centroidB)
}
