// internal/fetcher/fetcher.go
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sua-org/lux-bus/internal/core"
)

// Timeout cobre o ciclo inteiro de fetch: DNS, connect e leitura do body.
const Timeout = 10 * time.Second

// FrameFetcher busca UM frame por chamada. Sem cache e sem retry aqui
// dentro — retry é responsabilidade do poller, via próximo tick agendado.
type FrameFetcher interface {
	// Fetch retorna os bytes crus da imagem ou *FetchError.
	Fetch(ctx context.Context) ([]byte, error)
	// URL é a última URL montada, exposta para diagnóstico.
	URL() string
}

type Factory func(cfg core.SourceConfig) (FrameFetcher, error)

// registry: source_type -> factory
var registry = map[core.SourceKind]Factory{}

// Register é chamado no init() de cada fetcher (frigate, snapshot, ...).
func Register(kind core.SourceKind, f Factory) {
	registry[kind] = f
}

func New(cfg core.SourceConfig) (FrameFetcher, error) {
	if f, ok := registry[cfg.Kind]; ok {
		return f(cfg)
	}
	return nil, ErrFetcherNotFound
}

// client compartilhado entre os fetchers; o Timeout do client é o teto
// duro mesmo se o contexto do ciclo for mais largo.
var client = &http.Client{Timeout: Timeout}

func doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drena o body pra liberar a conexão do pool
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if len(data) == 0 {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("body vazio")}
	}
	return data, nil
}
