package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"speakerdiarize/diagerr"
	"speakerdiarize/embeddings"
	"speakerdiarize/emit"
	"speakerdiarize/internal/api"
	"speakerdiarize/internal/config"
	"speakerdiarize/manifest"
	"speakerdiarize/models"
	"speakerdiarize/pipeline"
	"speakerdiarize/vad"
	"speakerdiarize/voiceprint"
)

func main() {
	cfg := config.Load()

	logFile := setupLogging(cfg.TraceLog)
	if logFile != nil {
		defer logFile.Close()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC: %v", r)
			panic(r)
		}
	}()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	if cfg.ManifestPath == "" {
		log.Println("no -manifest given, running control-plane server only")
		runControlPlane(cfg)
		return
	}

	runBatch(cfg)
}

// runBatch implements §5's batch loop: load the manifest once, process
// every session through pipeline.RunSession with a bounded worker pool, and
// keep going after a session-level failure (only a ConfigError, already
// ruled out above, halts the whole run).
func runBatch(cfg *config.Config) {
	f, err := os.Open(cfg.ManifestPath)
	if err != nil {
		log.Fatalf("failed to open manifest: %v", err)
	}
	sessions, order, err := manifest.LoadManifest(f)
	f.Close()
	if err != nil {
		log.Fatalf("failed to load manifest: %v", err)
	}

	kept, dropped := validateSessions(sessions, order)
	for _, uniqID := range dropped {
		log.Printf("session %s: dropped (no audio_filepath)", uniqID)
	}

	dirs := emit.ChangeOutputDirNames(cfg.OutDir, cfg.SystemName, cfg.TSVADThreshold, cfg.TSVADThreshold > 0)

	collab := buildCollaborators(cfg)
	defer collab.Close()

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	var failuresMu sync.Mutex
	var failures []error

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for uniqID := range jobs {
				sess := sessions[uniqID]
				err := pipeline.RunSession(uniqID, sess, cfg, collab.Collaborators, dirs)
				if err != nil {
					failuresMu.Lock()
					failures = append(failures, err)
					failuresMu.Unlock()
					if kind, ok := diagerr.KindOf(err); ok {
						log.Printf("session %s: %s: %v", uniqID, kind, err)
					} else {
						log.Printf("session %s: %v", uniqID, err)
					}
				} else {
					log.Printf("session %s: done", uniqID)
				}
			}
		}()
	}

	for _, uniqID := range kept {
		jobs <- uniqID
	}
	close(jobs)
	wg.Wait()

	log.Printf("batch complete: %d sessions, %d failures", len(kept), len(failures))
}

func validateSessions(sessions manifest.AudioRTTMMap, order []string) (kept, dropped []string) {
	for _, id := range order {
		sess, ok := sessions[id]
		if !ok {
			continue
		}
		if sess.AudioFilepath == "" {
			dropped = append(dropped, id)
			continue
		}
		kept = append(kept, id)
	}
	return kept, dropped
}

// collaboratorSet owns the process-wide ONNX collaborators shared across
// all workers; nil fields fall back to the pipeline's oracle paths.
type collaboratorSet struct {
	pipeline.Collaborators
}

func (c collaboratorSet) Close() {
	if c.VAD != nil {
		c.VAD.Close()
	}
	if c.Encoder != nil {
		c.Encoder.Close()
	}
}

// resolveModelPath returns modelPath unchanged when set, otherwise downloads
// modelID into mgr's cache (blocking until the download finishes) and
// returns its resolved on-disk path.
func resolveModelPath(mgr *models.Manager, modelPath, modelID string) string {
	if modelPath != "" || modelID == "" {
		return modelPath
	}
	if mgr.IsModelDownloaded(modelID) {
		return mgr.GetModelPath(modelID)
	}

	done := make(chan error, 1)
	mgr.SetProgressCallback(func(id string, progress float64, status models.ModelStatus, err error) {
		if id != modelID {
			return
		}
		switch status {
		case models.ModelStatusDownloaded:
			done <- nil
		case models.ModelStatusError:
			done <- err
		}
	})
	log.Printf("models: downloading %s into %s", modelID, mgr.GetModelsDir())
	if err := mgr.DownloadModel(modelID); err != nil {
		log.Printf("models: %v", err)
		return ""
	}
	if err := <-done; err != nil {
		log.Printf("models: download of %s failed: %v", modelID, err)
		return ""
	}
	return mgr.GetModelPath(modelID)
}

func buildCollaborators(cfg *config.Config) collaboratorSet {
	var set collaboratorSet

	var modelMgr *models.Manager
	if cfg.VADModelID != "" || cfg.EmbeddingModelID != "" {
		mgr, err := models.NewManager(cfg.ModelsDir)
		if err != nil {
			log.Printf("models: manager unavailable, model IDs will be ignored: %v", err)
		} else {
			modelMgr = mgr
		}
	}

	vadModelPath := cfg.VADModelPath
	embeddingModelPath := cfg.EmbeddingModelPath
	if modelMgr != nil {
		vadModelPath = resolveModelPath(modelMgr, cfg.VADModelPath, cfg.VADModelID)
		embeddingModelPath = resolveModelPath(modelMgr, cfg.EmbeddingModelPath, cfg.EmbeddingModelID)
	}

	if vadModelPath != "" {
		detector, err := vad.New(vad.DefaultConfig(vadModelPath))
		if err != nil {
			log.Printf("vad model unavailable, falling back to oracle VAD: %v", err)
		} else {
			set.VAD = detector
		}
	}
	if embeddingModelPath != "" {
		encoder, err := embeddings.NewEncoder(embeddings.DefaultConfig(embeddingModelPath))
		if err != nil {
			log.Printf("embedding model unavailable, falling back to energy features: %v", err)
		} else {
			set.Encoder = encoder
		}
	}
	if cfg.VoicePrintStorePath != "" {
		store, err := voiceprint.NewStore(cfg.VoicePrintStorePath)
		if err != nil {
			log.Printf("voiceprint store unavailable, speakers will be labeled speaker_<idx>: %v", err)
		} else {
			set.Voiceprint = voiceprint.NewMatcher(store)
		}
	}
	return set
}

// runControlPlane serves the C9 online segmentor over the JSON-codec gRPC
// control plane (§4.9.1) until the process is killed.
func runControlPlane(cfg *config.Config) {
	server := api.NewServer(cfg, 16000)
	server.ServeGRPC()
}

func setupLogging(path string) *os.File {
	if path == "" {
		return nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open trace log %s: %v\n", path, err)
		return nil
	}

	log.SetOutput(io.MultiWriter(os.Stdout, file))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Printf("trace log attached: %s", path)

	return file
}
