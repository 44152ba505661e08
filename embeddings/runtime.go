package embeddings

import (
	"fmt"
	"log"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeInitialized bool
	runtimeInitMu      sync.Mutex
)

// initRuntimeImpl lazily loads and initializes the shared ONNX Runtime library:
// search a handful of conventional install locations, honoring an explicit
// environment override, then initialize once process-wide.
func initRuntimeImpl() error {
	runtimeInitMu.Lock()
	defer runtimeInitMu.Unlock()

	if runtimeInitialized {
		return nil
	}

	libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	if libPath == "" {
		for _, path := range []string{
			"./libonnxruntime.so",
			"./libonnxruntime.dylib",
			"../Resources/libonnxruntime.dylib",
		} {
			if _, err := os.Stat(path); err == nil {
				libPath = path
				break
			}
		}
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("embeddings: onnxruntime environment: %w", err)
	}
	runtimeInitialized = true
	log.Println("embeddings: onnxruntime initialized")
	return nil
}
