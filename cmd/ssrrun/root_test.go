package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_PrintsJSON(t *testing.T) {
	out, err := execute(t, "--path", "/audio", "--user", "ada")
	require.NoError(t, err)

	var snapshot struct {
		State map[string]json.RawMessage `json:"state"`
		Retry map[string][]string        `json:"retry"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &snapshot))
	assert.Contains(t, snapshot.State, "catalog")
	assert.Contains(t, snapshot.State, "@@Router")
	assert.Equal(t, []string{"fetchProducts"}, snapshot.Retry["catalog"])
}

func TestRootCommand_PrintsScript(t *testing.T) {
	out, err := execute(t, "--format", "script", "--shared-key", "cli")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<script>window.__EFFECT_STATE__="))
	assert.True(t, strings.HasSuffix(out, "</script>\n"))
}

func TestRootCommand_RejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml")
	assert.Error(t, err)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout_seconds: 3\nshared_key: from-file\n"), 0o600))

	opts := &rootOptions{ConfigPath: path, SharedKey: "from-flag"}
	cfg, err := loadConfig(opts, func(name string) bool { return name == "shared-key" })

	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.TimeoutSeconds)
	assert.Equal(t, "from-flag", cfg.SharedKey)
}
