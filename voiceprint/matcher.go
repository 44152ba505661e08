package voiceprint

import (
	"log"
	"math"
	"sort"
)

// Matcher resolves cluster centroid embeddings against a Store.
type Matcher struct {
	store *Store
}

// NewMatcher wraps store for lookup.
func NewMatcher(store *Store) *Matcher {
	return &Matcher{store: store}
}

// FindBestMatch returns the closest voiceprint above ThresholdMin, or nil.
func (m *Matcher) FindBestMatch(embedding []float32) *MatchResult {
	if m.store == nil {
		return nil
	}
	voiceprints := m.store.GetAll()
	if len(voiceprints) == 0 {
		return nil
	}

	var best *MatchResult
	bestSim := float32(0)
	for i := range voiceprints {
		vp := &voiceprints[i]
		sim := CosineSimilarity(embedding, vp.Embedding)
		if sim > bestSim && sim >= ThresholdMin {
			bestSim = sim
			vpCopy := *vp
			best = &MatchResult{VoicePrint: &vpCopy, Similarity: sim, Confidence: GetConfidence(sim)}
		}
	}
	if best != nil {
		log.Printf("voiceprint: match %s (similarity=%.2f, confidence=%s)", best.VoicePrint.Name, best.Similarity, best.Confidence)
	}
	return best
}

// FindAllMatches returns every voiceprint at or above threshold, sorted by
// descending similarity.
func (m *Matcher) FindAllMatches(embedding []float32, threshold float32) []MatchResult {
	if m.store == nil {
		return nil
	}
	voiceprints := m.store.GetAll()
	var matches []MatchResult
	for i := range voiceprints {
		vp := &voiceprints[i]
		sim := CosineSimilarity(embedding, vp.Embedding)
		if sim >= threshold {
			vpCopy := *vp
			matches = append(matches, MatchResult{VoicePrint: &vpCopy, Similarity: sim, Confidence: GetConfidence(sim)})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	return matches
}

// CosineSimilarity computes cosine similarity in [-1, 1].
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// CosineDistance is 1 - CosineSimilarity.
func CosineDistance(a, b []float32) float64 {
	return 1.0 - float64(CosineSimilarity(a, b))
}

// MatchWithAutoUpdate finds the best match and, if it's a high-confidence
// hit, folds embedding into the stored centroid.
func (m *Matcher) MatchWithAutoUpdate(embedding []float32) *MatchResult {
	match := m.FindBestMatch(embedding)
	if match != nil && match.Confidence == "high" {
		if err := m.store.UpdateEmbedding(match.VoicePrint.ID, embedding); err != nil {
			log.Printf("voiceprint: update embedding failed: %v", err)
		}
	}
	return match
}

// GetStore returns the underlying store.
func (m *Matcher) GetStore() *Store {
	return m.store
}
