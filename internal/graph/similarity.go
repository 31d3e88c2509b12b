package graph

import (
	"encoding/json"
	"fmt"
	"math"
)

// CosineSimilarity 计算两个向量的余弦相似度
// 维度不一致时按较短长度对齐，零向量返回0
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) != len(b) {
		minLen := len(a)
		if len(b) < minLen {
			minLen = len(b)
		}
		a = a[:minLen]
		b = b[:minLen]
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// UpdateCentroid 增量更新运行均值质心：new[i] = (old[i]*n + e[i]) / (n+1)
// 返回新切片，不修改输入
func UpdateCentroid(old []float32, count int64, embedding []float32) []float32 {
	if count <= 0 || len(old) == 0 {
		result := make([]float32, len(embedding))
		copy(result, embedding)
		return result
	}

	dim := len(old)
	if len(embedding) < dim {
		dim = len(embedding)
	}

	result := make([]float32, len(old))
	copy(result, old)
	n := float64(count)
	for i := 0; i < dim; i++ {
		result[i] = float32((float64(old[i])*n + float64(embedding[i])) / (n + 1))
	}
	return result
}

// EncodeEmbedding 将向量序列化为jsonb列存储格式
func EncodeEmbedding(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("embedding is empty")
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeEmbedding 从jsonb列还原向量
func DecodeEmbedding(raw string) ([]float32, error) {
	if raw == "" {
		return nil, fmt.Errorf("embedding column is empty")
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	return vec, nil
}
