package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aihub/researchgraph/internal/graph"
	"github.com/aihub/researchgraph/internal/models"
)

// 服务层测试用的内存实现，语义与gorm仓库保持一致

type memQueryRepo struct {
	mu      sync.Mutex
	queries map[uint]*models.Query
	nextID  uint
}

func newMemQueryRepo() *memQueryRepo {
	return &memQueryRepo{queries: make(map[uint]*models.Query)}
}

func (r *memQueryRepo) Create(ctx context.Context, userID uint, text string) (*models.Query, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	query := &models.Query{QueryID: r.nextID, UserID: userID, Text: text}
	r.queries[query.QueryID] = query
	return query, nil
}

func (r *memQueryRepo) Get(ctx context.Context, queryID uint) (*models.Query, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	query, ok := r.queries[queryID]
	if !ok {
		return nil, fmt.Errorf("query %d not found", queryID)
	}
	copied := *query
	return &copied, nil
}

func (r *memQueryRepo) AssignTopic(ctx context.Context, queryID, topicID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if query, ok := r.queries[queryID]; ok && query.TopicID == nil {
		query.TopicID = &topicID
	}
	return nil
}

func (r *memQueryRepo) SetSynthesis(ctx context.Context, queryID uint, synthesis string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if query, ok := r.queries[queryID]; ok {
		query.Synthesis = synthesis
	}
	return nil
}

func (r *memQueryRepo) TextsByIDs(ctx context.Context, queryIDs []uint) (map[uint]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	texts := make(map[uint]string)
	for _, id := range queryIDs {
		if query, ok := r.queries[id]; ok {
			texts[id] = query.Text
		}
	}
	return texts, nil
}

type memSourceRepo struct {
	mu      sync.Mutex
	sources map[uint]*models.Source
	nextID  uint
}

func newMemSourceRepo() *memSourceRepo {
	return &memSourceRepo{sources: make(map[uint]*models.Source)}
}

func (r *memSourceRepo) UpsertByIdentity(ctx context.Context, src *models.Source) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if src.ExternalID != nil && *src.ExternalID != "" {
		for _, existing := range r.sources {
			if existing.Origin == src.Origin && existing.ExternalID != nil && *existing.ExternalID == *src.ExternalID {
				*src = *existing
				return false, nil
			}
		}
	}
	r.nextID++
	src.SourceID = r.nextID
	copied := *src
	r.sources[src.SourceID] = &copied
	return true, nil
}

func (r *memSourceRepo) Get(ctx context.Context, sourceID uint) (*models.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[sourceID]
	if !ok {
		return nil, fmt.Errorf("source %d not found", sourceID)
	}
	copied := *src
	return &copied, nil
}

func (r *memSourceRepo) ListRecent(ctx context.Context, limit int) ([]models.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Source
	for _, src := range r.sources {
		out = append(out, *src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID > out[j].SourceID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memSourceRepo) MergeSources(ctx context.Context, winnerID, loserID uint, backfillDOI *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	winner, ok := r.sources[winnerID]
	if !ok {
		return fmt.Errorf("winner %d not found", winnerID)
	}
	if backfillDOI != nil && (winner.DOI == nil || *winner.DOI == "") {
		winner.DOI = backfillDOI
	}
	delete(r.sources, loserID)
	return nil
}

type memConnectionRepo struct {
	mu          sync.Mutex
	connections []models.Connection
	nextID      uint
}

func (r *memConnectionRepo) BulkCreate(ctx context.Context, connections []models.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range connections {
		r.nextID++
		conn.ConnectionID = r.nextID
		r.connections = append(r.connections, conn)
	}
	return nil
}

func (r *memConnectionRepo) ListByQuery(ctx context.Context, queryID uint) ([]models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Connection
	for _, conn := range r.connections {
		if conn.QueryID == queryID {
			out = append(out, conn)
		}
	}
	return out, nil
}

func (r *memConnectionRepo) ListBySource(ctx context.Context, sourceID uint) ([]models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Connection
	for _, conn := range r.connections {
		if conn.SourceAID == sourceID || conn.SourceBID == sourceID {
			out = append(out, conn)
		}
	}
	return out, nil
}

type memTopicRepo struct {
	mu        sync.Mutex
	topics    map[uint]*models.Topic
	nextID    uint
	createErr error
}

func newMemTopicRepo() *memTopicRepo {
	return &memTopicRepo{topics: make(map[uint]*models.Topic)}
}

func (r *memTopicRepo) seed(topicID, userID uint, label string, centroid []float32, members int64) {
	encoded, _ := graph.EncodeEmbedding(centroid)
	r.topics[topicID] = &models.Topic{
		TopicID:     topicID,
		UserID:      userID,
		Label:       label,
		Centroid:    encoded,
		MemberCount: members,
	}
	if topicID > r.nextID {
		r.nextID = topicID
	}
}

func (r *memTopicRepo) BestMatch(ctx context.Context, userID uint, embedding []float32, threshold float64) (*graph.TopicMatchInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *graph.TopicMatchInfo
	for _, topic := range r.topics {
		if topic.UserID != userID {
			continue
		}
		centroid, err := graph.DecodeEmbedding(topic.Centroid)
		if err != nil {
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

func (r *memTopicRepo) AppendMember(ctx context.Context, topicID uint, embedding []float32) (*models.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	topic, ok := r.topics[topicID]
	if !ok {
		return nil, fmt.Errorf("topic %d not found", topicID)
	}
	centroid, err := graph.DecodeEmbedding(topic.Centroid)
	if err != nil {
		return nil, err
	}
	updated := graph.UpdateCentroid(centroid, topic.MemberCount, embedding)
	encoded, err := graph.EncodeEmbedding(updated)
	if err != nil {
		return nil, err
	}
	topic.Centroid = encoded
	topic.MemberCount++
	copied := *topic
	return &copied, nil
}

func (r *memTopicRepo) Create(ctx context.Context, userID uint, label string, embedding []float32) (*models.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	encoded, err := graph.EncodeEmbedding(embedding)
	if err != nil {
		return nil, err
	}
	r.nextID++
	topic := &models.Topic{TopicID: r.nextID, UserID: userID, Label: label, Centroid: encoded, MemberCount: 1}
	r.topics[topic.TopicID] = topic
	copied := *topic
	return &copied, nil
}

func (r *memTopicRepo) Get(ctx context.Context, topicID uint) (*models.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	topic, ok := r.topics[topicID]
	if !ok {
		return nil, fmt.Errorf("topic %d not found", topicID)
	}
	copied := *topic
	return &copied, nil
}

func (r *memTopicRepo) ListByUser(ctx context.Context, userID uint) ([]models.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Topic
	for _, topic := range r.topics {
		if topic.UserID == userID {
			out = append(out, *topic)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out, nil
}

func (r *memTopicRepo) ListUsersWithTopics(ctx context.Context) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[uint]int)
	for _, topic := range r.topics {
		counts[topic.UserID]++
	}
	var users []uint
	for userID, count := range counts {
		if count >= 2 {
			users = append(users, userID)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

type memDirectionRepo struct {
	mu         sync.Mutex
	directions map[uint]*models.ResearchDirection
	nextID     uint
}

func newMemDirectionRepo() *memDirectionRepo {
	return &memDirectionRepo{directions: make(map[uint]*models.ResearchDirection)}
}

func (r *memDirectionRepo) Create(ctx context.Context, direction *models.ResearchDirection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	direction.DirectionID = r.nextID
	copied := *direction
	r.directions[direction.DirectionID] = &copied
	return nil
}

func (r *memDirectionRepo) Finish(ctx context.Context, directionID uint, status string, sourcesFound int, bridgeScoreAfter *float64, errorText *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	direction, ok := r.directions[directionID]
	if !ok {
		return fmt.Errorf("direction %d not found", directionID)
	}
	if direction.Status != models.DirectionStatusSearching {
		return fmt.Errorf("direction %d is not in searching state", directionID)
	}
	direction.Status = status
	direction.SourcesFound = sourcesFound
	direction.BridgeScoreAfter = bridgeScoreAfter
	direction.ErrorText = errorText
	return nil
}

func (r *memDirectionRepo) Get(ctx context.Context, directionID uint) (*models.ResearchDirection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	direction, ok := r.directions[directionID]
	if !ok {
		return nil, fmt.Errorf("direction %d not found", directionID)
	}
	copied := *direction
	return &copied, nil
}

func (r *memDirectionRepo) ListRecent(ctx context.Context, limit int) ([]models.ResearchDirection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ResearchDirection
	for _, direction := range r.directions {
		out = append(out, *direction)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DirectionID > out[j].DirectionID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memVectorStore 内存向量存储
type memVectorStore struct {
	mu      sync.Mutex
	vectors []graph.SourceVector
}

func (s *memVectorStore) InsertSource(ctx context.Context, vec graph.SourceVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = append(s.vectors, vec)
	return nil
}

func (s *memVectorStore) SearchSimilar(ctx context.Context, req graph.VectorSearchRequest) ([]graph.VectorMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []graph.VectorMatch
	for _, vec := range s.vectors {
		if req.ExcludeQueryID != 0 && vec.QueryID == req.ExcludeQueryID {
			continue
		}
		sim := graph.CosineSimilarity(req.QueryEmbedding, vec.Embedding)
		if sim < req.Threshold {
			continue
		}
		matches = append(matches, graph.VectorMatch{
			SourceID:   vec.SourceID,
			QueryID:    vec.QueryID,
			Title:      vec.Title,
			Snippet:    vec.Snippet,
			Similarity: sim,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if req.Limit > 0 && len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}
	return matches, nil
}

func (s *memVectorStore) DeleteSource(ctx context.Context, sourceID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.vectors[:0]
	for _, vec := range s.vectors {
		if vec.SourceID != sourceID {
			kept = append(kept, vec)
		}
	}
	s.vectors = kept
	return nil
}

func (s *memVectorStore) Ready() bool { return true }

// stubEmbedder 确定性嵌入：按文本查表，缺省返回固定向量
type stubEmbedder struct {
	byText map[string][]float32
	err    error
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := e.byText[text]; ok {
			out[i] = vec
		} else {
			out[i] = []float32{1, 0, 0}
		}
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int { return 3 }
func (e *stubEmbedder) Ready() bool     { return true }

type stubAnalysis struct {
	result *graph.AnalysisResult
	err    error
}

func (a *stubAnalysis) Analyze(ctx context.Context, queryText string, sources []graph.SourceSummary) (*graph.AnalysisResult, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

func (a *stubAnalysis) Ready() bool { return true }

// stubSearch 按查询文本路由结果或错误
type stubSearch struct {
	results map[string][]graph.SearchResult
	errs    map[string]error
	calls   []string
}

func (s *stubSearch) Search(ctx context.Context, query string, limit int) ([]graph.SearchResult, error) {
	s.calls = append(s.calls, query)
	if err, ok := s.errs[query]; ok {
		return nil, err
	}
	return s.results[query], nil
}
