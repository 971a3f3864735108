package vision

import (
	"context"
	"sync"

	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/pkg/logger"
)

// Backend decodes media natively and runs the full detection pipeline.
type Backend interface {
	OpenVideo(ctx context.Context, req Request) (model.Source, error)
	OpenImage(ctx context.Context, req Request) (model.Source, error)
	OpenStream(ctx context.Context, req Request) (model.Source, error)
	Close() error
}

// BackendConfig configures a native backend.
type BackendConfig struct {
	OutputDir     string
	ModelPath     string
	OCRLanguage   string
	ConfThreshold float32
	NMSThreshold  float32
	Logger        logger.Logger
}

// BackendFactory builds a Backend.
type BackendFactory func(cfg BackendConfig) (Backend, error)

var (
	backendMu      sync.RWMutex
	backendFactory BackendFactory
)

// RegisterBackend installs the native backend factory. Builds with the
// opencv tag register one at init.
func RegisterBackend(f BackendFactory) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendFactory = f
}

// NewBackend builds the registered backend. It returns nil and no error when
// the binary was built without one.
func NewBackend(cfg BackendConfig) (Backend, error) {
	backendMu.RLock()
	f := backendFactory
	backendMu.RUnlock()
	if f == nil {
		return nil, nil //nolint:nilnil // absence of a backend is not an error
	}
	return f(cfg)
}
