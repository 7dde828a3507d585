package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fortune-cookie/server/internal/dispatch"
	"github.com/fortune-cookie/server/internal/fortune"
	"github.com/fortune-cookie/server/internal/server"
	"github.com/fortune-cookie/server/internal/session"
	"github.com/fortune-cookie/server/internal/upload"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, opts ...dispatch.Option) (string, *fortune.Catalog) {
	t.Helper()
	catalog := fortune.NewCatalog(nil)
	d := dispatch.New(session.NewRegistry(session.DefaultBuffer), catalog, zerolog.Nop(), opts...)
	s := server.New("127.0.0.1:0", d, zerolog.Nop())
	require.NoError(t, s.Listen())
	go s.Serve(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s.Addr().String(), catalog
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fortunes.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestUploadFile(t *testing.T) {
	addr, catalog := startServer(t)
	path := writeFile(t, "Wisdom|Legendary|Patience wins\nsomething freeform\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, uploadFile(ctx, addr, path, &out))
	assert.Contains(t, out.String(), "Welcome to the Fortune Cookie Network!")
	assert.Contains(t, out.String(), "SUCCESS: 2 new fortunes added!")

	assert.Equal(t, 3, catalog.Len())
	wisdom := catalog.Filter("wisdom", nil)
	require.Len(t, wisdom, 1)
	assert.Equal(t, fortune.Legendary, wisdom[0].Rarity)
}

func TestUploadFileRejected(t *testing.T) {
	addr, catalog := startServer(t, dispatch.WithFramer(upload.NewFramer(4)))
	path := writeFile(t, "far more than four bytes")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := uploadFile(ctx, addr, path, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds the 4 byte limit")
	assert.Equal(t, 1, catalog.Len())
}

func TestUploadFileMissing(t *testing.T) {
	err := uploadFile(context.Background(), "127.0.0.1:1", filepath.Join(t.TempDir(), "nope.txt"), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["upload"])

	for _, flag := range []string{"config", "port", "log-level", "env-file"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(flag), "serve flag %s", flag)
	}
	assert.NotNil(t, uploadCmd.Flags().Lookup("addr"))
}
