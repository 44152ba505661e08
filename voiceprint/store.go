package voiceprint

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is a JSON-file-backed set of named voiceprints, shared across
// every session a batch run processes.
type Store struct {
	path string
	data VoicePrintStore
	mu   sync.RWMutex
}

// NewStore opens (or creates) the voiceprint store at path.
func NewStore(path string) (*Store, error) {
	store := &Store{
		path: path,
		data: VoicePrintStore{Version: CurrentVersion},
	}
	if err := store.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("voiceprint: load %s: %w", path, err)
	}
	log.Printf("voiceprint: store opened: %s (%d entries)", path, len(store.data.VoicePrints))
	return store, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.data); err != nil {
		return fmt.Errorf("voiceprint: parse %s: %w", s.path, err)
	}
	if s.data.Version < CurrentVersion {
		s.data.Version = CurrentVersion
		return s.saveUnsafe()
	}
	return nil
}

func (s *Store) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveUnsafe()
}

func (s *Store) saveUnsafe() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("voiceprint: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("voiceprint: create directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("voiceprint: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("voiceprint: rename temp file: %w", err)
	}
	return nil
}

// GetAll returns a copy of every stored voiceprint.
func (s *Store) GetAll() []VoicePrint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]VoicePrint, len(s.data.VoicePrints))
	copy(result, s.data.VoicePrints)
	return result
}

// Add creates a new voiceprint from a cluster's centroid embedding.
func (s *Store) Add(name string, embedding []float32) (*VoicePrint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	vp := VoicePrint{
		ID:         uuid.New().String(),
		Name:       name,
		Embedding:  append([]float32(nil), embedding...),
		CreatedAt:  now,
		UpdatedAt:  now,
		LastSeenAt: now,
		SeenCount:  1,
	}
	s.data.VoicePrints = append(s.data.VoicePrints, vp)
	if err := s.saveUnsafe(); err != nil {
		s.data.VoicePrints = s.data.VoicePrints[:len(s.data.VoicePrints)-1]
		return nil, err
	}
	log.Printf("voiceprint: added %s (%s)", vp.Name, vp.ID[:8])
	return &vp, nil
}

// UpdateEmbedding folds newEmbedding into an existing voiceprint via a
// running weighted average (capped at 10 prior observations so the
// centroid keeps adapting rather than freezing), then renormalizes.
func (s *Store) UpdateEmbedding(id string, newEmbedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.VoicePrints {
		if s.data.VoicePrints[i].ID != id {
			continue
		}
		vp := &s.data.VoicePrints[i]
		oldWeight := float32(min(vp.SeenCount, 10))
		newWeight := float32(1)
		total := oldWeight + newWeight
		for j := range vp.Embedding {
			vp.Embedding[j] = (vp.Embedding[j]*oldWeight + newEmbedding[j]*newWeight) / total
		}
		vp.Embedding = normalizeVector(vp.Embedding)
		vp.SeenCount++
		vp.LastSeenAt = time.Now()
		vp.UpdatedAt = time.Now()
		return s.saveUnsafe()
	}
	return fmt.Errorf("voiceprint: not found: %s", id)
}

// Delete removes a voiceprint by ID.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.VoicePrints {
		if s.data.VoicePrints[i].ID == id {
			s.data.VoicePrints = append(s.data.VoicePrints[:i], s.data.VoicePrints[i+1:]...)
			return s.saveUnsafe()
		}
	}
	return fmt.Errorf("voiceprint: not found: %s", id)
}

// Count returns the number of stored voiceprints.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.VoicePrints)
}

func normalizeVector(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq < 1e-10 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}
