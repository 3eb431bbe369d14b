// internal/fetcher/errors.go
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var ErrFetcherNotFound = errors.New("no fetcher registered for this source type")

// FetchError cobre as duas famílias de falha de fetch: status HTTP
// fora de 2xx (StatusCode != 0) e falha de transporte (Err != nil).
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout diz se a falha foi o teto de 10s estourando (deadline do
// contexto ou timeout do client HTTP).
func (e *FetchError) Timeout() bool {
	if e.Err == nil {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(e.Err, &nerr) && nerr.Timeout()
}
