package models

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// ProgressCallback reports download progress for one model.
type ProgressCallback func(modelID string, progress float64, status ModelStatus, err error)

// Manager downloads and caches the ONNX collaborator models named in
// Registry under one directory, tracking in-flight downloads so a second
// request for the same model is refused with an error rather than racing
// the first.
type Manager struct {
	modelsDir  string
	downloads  map[string]context.CancelFunc
	mu         sync.RWMutex
	onProgress ProgressCallback
}

// NewManager creates a Manager rooted at modelsDir, creating it if absent.
func NewManager(modelsDir string) (*Manager, error) {
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		return nil, fmt.Errorf("models: create models directory: %w", err)
	}
	return &Manager{
		modelsDir: modelsDir,
		downloads: make(map[string]context.CancelFunc),
	}, nil
}

func (m *Manager) SetProgressCallback(cb ProgressCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onProgress = cb
}

func (m *Manager) GetModelsDir() string { return m.modelsDir }

// GetModelPath returns where modelID's .onnx file lives (or would live)
// once downloaded, regardless of whether it arrived as a bare file or was
// extracted out of an archive.
func (m *Manager) GetModelPath(modelID string) string {
	info := GetModelByID(modelID)
	if info == nil {
		return ""
	}
	if info.Archive {
		return filepath.Join(m.modelsDir, modelID, modelID+".onnx")
	}
	return filepath.Join(m.modelsDir, modelID+".onnx")
}

// IsModelDownloaded reports whether modelID's file is present and looks
// like a real model rather than a truncated download.
func (m *Manager) IsModelDownloaded(modelID string) bool {
	info := GetModelByID(modelID)
	if info == nil {
		return false
	}
	path := m.GetModelPath(modelID)
	if path == "" {
		return false
	}
	stat, err := os.Stat(path)
	if err != nil {
		return false
	}
	return stat.Size() > 100_000
}

// GetAllModelsState reports every registry entry's on-disk state.
func (m *Manager) GetAllModelsState() []ModelState {
	m.mu.RLock()
	downloading := make(map[string]bool, len(m.downloads))
	for id := range m.downloads {
		downloading[id] = true
	}
	m.mu.RUnlock()

	states := make([]ModelState, len(Registry))
	for i, info := range Registry {
		state := ModelState{ModelInfo: info, Path: m.GetModelPath(info.ID)}
		switch {
		case downloading[info.ID]:
			state.Status = ModelStatusDownloading
		case m.IsModelDownloaded(info.ID):
			state.Status = ModelStatusDownloaded
		default:
			state.Status = ModelStatusNotDownloaded
		}
		states[i] = state
	}
	return states
}

// DownloadModel fetches modelID in the background, extracting it first if
// the registry marks it as an archive. A second call for an in-flight
// model returns an error rather than starting a duplicate download.
func (m *Manager) DownloadModel(modelID string) error {
	info := GetModelByID(modelID)
	if info == nil {
		return fmt.Errorf("models: unknown model %q", modelID)
	}

	m.mu.Lock()
	if _, exists := m.downloads[modelID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("models: %s is already downloading", modelID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.downloads[modelID] = cancel
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.downloads, modelID)
			m.mu.Unlock()
		}()

		progressCb := func(progress float64) {
			m.notifyProgress(modelID, progress, ModelStatusDownloading, nil)
		}

		var err error
		if info.Archive {
			destDir := filepath.Join(m.modelsDir, modelID)
			err = DownloadAndExtractTarBz2(ctx, info.DownloadURL, destDir, info.SizeBytes, progressCb)
			if err == nil {
				var onnxPath string
				onnxPath, err = FindOnnxModelInDir(destDir)
				if err == nil && onnxPath != m.GetModelPath(modelID) {
					err = os.Rename(onnxPath, m.GetModelPath(modelID))
				}
			}
		} else {
			err = DownloadFile(ctx, info.DownloadURL, m.GetModelPath(modelID), info.SizeBytes, progressCb)
		}

		if err != nil {
			if ctx.Err() == context.Canceled {
				log.Printf("models: download cancelled for %s", modelID)
				m.notifyProgress(modelID, 0, ModelStatusNotDownloaded, nil)
				m.cleanupPartialDownload(modelID)
			} else {
				log.Printf("models: download failed for %s: %v", modelID, err)
				m.notifyProgress(modelID, 0, ModelStatusError, err)
			}
			return
		}

		log.Printf("models: download complete for %s", modelID)
		m.notifyProgress(modelID, 100, ModelStatusDownloaded, nil)
	}()

	return nil
}

func (m *Manager) CancelDownload(modelID string) error {
	m.mu.Lock()
	cancel, exists := m.downloads[modelID]
	m.mu.Unlock()
	if !exists {
		return fmt.Errorf("models: %s is not downloading", modelID)
	}
	cancel()
	return nil
}

func (m *Manager) DeleteModel(modelID string) error {
	if !m.IsModelDownloaded(modelID) {
		return fmt.Errorf("models: %s is not downloaded", modelID)
	}
	if err := os.Remove(m.GetModelPath(modelID)); err != nil {
		return fmt.Errorf("models: delete %s: %w", modelID, err)
	}
	log.Printf("models: deleted %s", modelID)
	return nil
}

func (m *Manager) notifyProgress(modelID string, progress float64, status ModelStatus, err error) {
	m.mu.RLock()
	cb := m.onProgress
	m.mu.RUnlock()
	if cb != nil {
		cb(modelID, progress, status, err)
	}
}

func (m *Manager) cleanupPartialDownload(modelID string) {
	path := m.GetModelPath(modelID)
	if path == "" {
		return
	}
	os.Remove(path)
	os.Remove(path + ".tmp")
}

func (m *Manager) GetDownloadingModels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]string, 0, len(m.downloads))
	for id := range m.downloads {
		result = append(result, id)
	}
	return result
}
