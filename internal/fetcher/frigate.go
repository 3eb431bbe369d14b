// internal/fetcher/frigate.go
package fetcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/sua-org/lux-bus/internal/core"
)

// FrigateFetcher busca o último snapshot de uma câmera via API do
// Frigate NVR: {base_url}/api/{camera}/latest.jpg.
type FrigateFetcher struct {
	url string
}

func init() {
	Register(core.SourceFrigate, func(cfg core.SourceConfig) (FrameFetcher, error) {
		return NewFrigateFetcher(cfg)
	})
}

func NewFrigateFetcher(cfg core.SourceConfig) (*FrigateFetcher, error) {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" || cfg.CameraID == "" {
		return nil, fmt.Errorf("frigate fetcher: base_url e camera são obrigatórios")
	}
	return &FrigateFetcher{
		url: fmt.Sprintf("%s/api/%s/latest.jpg", base, cfg.CameraID),
	}, nil
}

func (f *FrigateFetcher) Fetch(ctx context.Context) ([]byte, error) {
	return doGet(ctx, f.url)
}

func (f *FrigateFetcher) URL() string { return f.url }
