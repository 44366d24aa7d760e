package viper

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type saveSection struct {
	Protected bool `mapstructure:"protected"`
	Workers   int  `mapstructure:"workers"`
}

func TestLoadReader(t *testing.T) {
	c := New("")
	c.SetDefaults(map[string]any{"save.workers": 2, "save.protected": false})
	require.NoError(t, c.LoadReader(strings.NewReader(`{"save":{"protected":true}}`), "json"))

	var s saveSection
	require.NoError(t, c.UnmarshalKey("save", &s))
	assert.True(t, s.Protected)
	assert.Equal(t, 2, s.Workers)
	assert.True(t, c.IsSet("save.protected"))
	assert.False(t, c.IsSet("load.maxTablesSize"))
}

func TestLoadFileWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yml")
	require.NoError(t, os.WriteFile(path, []byte("save:\n  workers: 4\n"), 0o600))
	t.Setenv("VIPERTEST_SAVE_WORKERS", "9")

	c := New("VIPERTEST")
	c.SetDefault("save.protected", false)
	require.NoError(t, c.LoadFile(path))

	var cfg struct {
		Save saveSection `mapstructure:"save"`
	}
	require.NoError(t, c.Unmarshal(&cfg))
	assert.Equal(t, 9, cfg.Save.Workers)
	assert.False(t, cfg.Save.Protected)

	var s saveSection
	require.NoError(t, c.UnmarshalKey("save", &s))
	assert.Equal(t, cfg.Save, s)

	assert.Error(t, New("").LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestConfigType(t *testing.T) {
	assert.Equal(t, "yaml", configType("a.yaml"))
	assert.Equal(t, "yaml", configType("a.yml"))
	assert.Equal(t, "json", configType("a.json"))
	assert.Equal(t, "", configType("a.conf"))
}
