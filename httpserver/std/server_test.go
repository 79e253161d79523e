package std_test

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailblast/httpserver/std"
)

func TestServerLifecycle(t *testing.T) {
	t.Parallel()
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})
	srv := std.New(std.Config{Host: "127.0.0.1", Port: 0, ReadTimeout: time.Second}, h, slog.New(slog.DiscardHandler))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	addr := srv.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/ping")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "pong", string(body))

	require.NoError(t, srv.Close())
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Close")
	}
}

func TestServerListenError(t *testing.T) {
	t.Parallel()
	srv := std.New(std.Config{Host: "256.0.0.1", Port: 0}, http.NotFoundHandler(), nil)

	err := srv.Start()
	require.Error(t, err)
	assert.Empty(t, srv.Addr())
}
