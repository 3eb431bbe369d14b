// internal/fetcher/fetcher_test.go
package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sua-org/lux-bus/internal/core"
)

func frigateConfig(baseURL string) core.SourceConfig {
	return core.SourceConfig{
		SourceID: "entrada",
		Kind:     core.SourceFrigate,
		BaseURL:  baseURL,
		CameraID: "entrada",
	}
}

func TestFrigateURLConstruction(t *testing.T) {
	f, err := NewFrigateFetcher(frigateConfig("http://frigate:5000"))
	require.NoError(t, err)
	require.Equal(t, "http://frigate:5000/api/entrada/latest.jpg", f.URL())

	// barra no fim não pode duplicar
	f, err = NewFrigateFetcher(frigateConfig("http://frigate:5000/"))
	require.NoError(t, err)
	require.Equal(t, "http://frigate:5000/api/entrada/latest.jpg", f.URL())
}

func TestSnapshotURLVerbatim(t *testing.T) {
	f, err := NewSnapshotFetcher(core.SourceConfig{
		Kind:    core.SourceSnapshot,
		BaseURL: "http://cam.local/snap.jpg?ch=1",
	})
	require.NoError(t, err)
	require.Equal(t, "http://cam.local/snap.jpg?ch=1", f.URL())
}

func TestRegistryResolvesBothKinds(t *testing.T) {
	f, err := New(frigateConfig("http://frigate:5000"))
	require.NoError(t, err)
	require.IsType(t, &FrigateFetcher{}, f)

	f, err = New(core.SourceConfig{Kind: core.SourceSnapshot, BaseURL: "http://x/y.jpg"})
	require.NoError(t, err)
	require.IsType(t, &SnapshotFetcher{}, f)

	_, err = New(core.SourceConfig{Kind: core.SourceKind("rtsp")})
	require.ErrorIs(t, err, ErrFetcherNotFound)
}

func TestFetchReturnsBody(t *testing.T) {
	body := []byte("fake-jpeg-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/entrada/latest.jpg", r.URL.Path)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f, err := New(frigateConfig(srv.URL))
	require.NoError(t, err)

	data, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, body, data)
}

func TestFetchNon2xxFailsWithStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusTeapot} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		f, err := New(core.SourceConfig{Kind: core.SourceSnapshot, BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = f.Fetch(context.Background())
		var ferr *FetchError
		require.ErrorAs(t, err, &ferr)
		require.Equal(t, status, ferr.StatusCode)
		require.False(t, ferr.Timeout())

		srv.Close()
	}
}

func TestFetchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // connection refused a partir daqui

	f, err := New(core.SourceConfig{Kind: core.SourceSnapshot, BaseURL: url})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background())
	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	require.Zero(t, ferr.StatusCode)
	require.Error(t, ferr.Err)
}

func TestFetchHonorsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	f, err := New(core.SourceConfig{Kind: core.SourceSnapshot, BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = f.Fetch(ctx)
	require.Less(t, time.Since(start), 2*time.Second)

	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	require.True(t, ferr.Timeout())
}

func TestFetchEmptyBodyFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f, err := New(core.SourceConfig{Kind: core.SourceSnapshot, BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background())
	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
}
