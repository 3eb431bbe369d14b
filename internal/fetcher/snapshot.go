// internal/fetcher/snapshot.go
package fetcher

import (
	"context"
	"fmt"

	"github.com/sua-org/lux-bus/internal/core"
)

// SnapshotFetcher busca a imagem numa URL direta (webcam, ESPHome,
// qualquer endpoint que devolva JPEG/PNG). A URL é usada verbatim.
type SnapshotFetcher struct {
	url string
}

func init() {
	Register(core.SourceSnapshot, func(cfg core.SourceConfig) (FrameFetcher, error) {
		return NewSnapshotFetcher(cfg)
	})
}

func NewSnapshotFetcher(cfg core.SourceConfig) (*SnapshotFetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("snapshot fetcher: base_url é obrigatória")
	}
	return &SnapshotFetcher{url: cfg.BaseURL}, nil
}

func (f *SnapshotFetcher) Fetch(ctx context.Context) ([]byte, error) {
	return doGet(ctx, f.url)
}

func (f *SnapshotFetcher) URL() string { return f.url }
