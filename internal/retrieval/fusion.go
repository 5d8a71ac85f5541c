package retrieval

import (
	"sort"

	"github.com/hyperjump/schemarag/internal/keyword"
	"github.com/hyperjump/schemarag/internal/models"
)

// fusedResult holds one document's keyword, semantic and combined scores.
// semanticRank is its position in the distance ordering and breaks ties.
type fusedResult struct {
	result        models.RetrievalResult
	score         float64
	keywordScore  float64
	semanticScore float64
	semanticRank  int
}

// normalizeKeywordScores maps table name to score divided by the max score. A table
// with several documents keeps its best score.
func normalizeKeywordScores(results []keyword.Hit) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		score := 0.0
		if maxScore > 0 {
			score = r.Score / maxScore
		}
		if prev, ok := normalized[r.Table]; !ok || score > prev {
			normalized[r.Table] = score
		}
	}
	return normalized
}

// semanticSimilarity turns a distance (lower is closer) into a (0,1] similarity.
func semanticSimilarity(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}

// fuse combines every ranked semantic hit with its keyword score. Results are sorted
// by fused score descending, then by semantic rank.
func fuse(hits []models.RetrievalResult, keywordScores map[string]float64, keywordWeight, semanticWeight float64) []*fusedResult {
	results := make([]*fusedResult, len(hits))
	for i, h := range hits {
		kw := keywordScores[h.Table]
		sem := semanticSimilarity(h.Score)
		results[i] = &fusedResult{
			result:        h,
			keywordScore:  kw,
			semanticScore: sem,
			semanticRank:  i,
			score:         keywordWeight*kw + semanticWeight*sem,
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].semanticRank < results[j].semanticRank
	})
	return results
}
