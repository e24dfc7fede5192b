package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blospray-dev/blospray/internal/config"
	"github.com/blospray-dev/blospray/pkg/plugin"
)

func TestLoadConfigAppliesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blospray.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":6000\"\nthreads: 3\n"), 0644))
	t.Setenv(config.EnvKeepFramebufferFiles, "true")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.Listen)
	assert.Equal(t, 3, cfg.Threads)
	assert.True(t, cfg.Toggles.KeepFramebufferFiles)
	assert.True(t, cfg.Toggles.CompressFramebuffer)
}

func TestLoadConfigRejectsBadToggle(t *testing.T) {
	t.Setenv(config.EnvDumpServerState, "maybe")
	_, err := loadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "B802")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	logger.Warn("hello", "k", 1)
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
}

func TestDescribeParams(t *testing.T) {
	params := []plugin.Parameter{
		{Name: "count", Type: plugin.ParamInt, Length: 1},
		{Name: "dims", Type: plugin.ParamInt, Length: 3},
		{Name: "seed", Type: plugin.ParamInt, Length: 1, Flags: plugin.FlagOptional},
	}
	got := describeParams(params)
	assert.Contains(t, got, "dims:")
	assert.Contains(t, got, "[3]")
	assert.True(t, strings.HasSuffix(got, "?"))
	assert.Equal(t, "-", describeParams(nil))
}

func TestPluginsCommandListsBuiltins(t *testing.T) {
	cmd := pluginsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--plugin-dir", t.TempDir()})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "geometry/spheres")
	assert.Contains(t, out.String(), "volume/procedural")
}

func TestVersionShort(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}
