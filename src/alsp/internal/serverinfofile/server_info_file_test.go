package serverinfofile

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/acornide/assist-lsp/src/alsp/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/config"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func newInfoFile(t *testing.T, path string) (ServerInfoFile, *fxtest.Lifecycle) {
	t.Helper()
	provider, err := config.NewYAML(config.Source(strings.NewReader("serverInfoFilePath: " + path + "\n")))
	require.NoError(t, err)

	lc := fxtest.NewLifecycle(t)
	s, err := New(Params{
		Config:    provider,
		FS:        fs.New(),
		Lifecycle: lc,
		Logger:    zap.NewNop().Sugar(),
	})
	require.NoError(t, err)
	return s, lc
}

func readContents(t *testing.T, path string) map[string]string {
	t.Helper()
	data, err := fs.New().ReadFile(path)
	require.NoError(t, err)
	var contents map[string]string
	require.NoError(t, json.Unmarshal(data, &contents))
	return contents
}

func TestUpdateField(t *testing.T) {
	t.Run("accumulates fields across updates", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "server-info.json")
		s, _ := newInfoFile(t, path)

		require.NoError(t, s.UpdateField("port", "58080"))
		assert.Equal(t, map[string]string{"port": "58080"}, readContents(t, path))

		require.NoError(t, s.UpdateField("pid", "4242"))
		assert.Equal(t, map[string]string{"port": "58080", "pid": "4242"}, readContents(t, path))

		require.NoError(t, s.UpdateField("port", "58081"))
		assert.Equal(t, map[string]string{"port": "58081", "pid": "4242"}, readContents(t, path))
	})

	t.Run("empty path disables updates", func(t *testing.T) {
		s, _ := newInfoFile(t, `""`)
		assert.NoError(t, s.UpdateField("port", "58080"))
	})
}

func TestOnStop(t *testing.T) {
	t.Run("removes the info file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "server-info.json")
		s, lc := newInfoFile(t, path)

		require.NoError(t, s.UpdateField("port", "58080"))
		lc.RequireStart().RequireStop()

		exists, err := fs.New().FileExists(path)
		assert.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "never-written.json")
		_, lc := newInfoFile(t, path)
		lc.RequireStart().RequireStop()
	})
}
