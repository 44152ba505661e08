package vad

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeInitialized bool
	runtimeInitMu      sync.Mutex
)

// initRuntime mirrors embeddings.initRuntimeImpl: both packages wrap the
// same process-wide ONNX Runtime library but are independently
// initializable collaborators, so each keeps its own guarded init (neither
// package imports the other).
func initRuntime() error {
	runtimeInitMu.Lock()
	defer runtimeInitMu.Unlock()

	if runtimeInitialized {
		return nil
	}
	if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("vad: onnxruntime environment: %w", err)
	}
	runtimeInitialized = true
	return nil
}
