package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) map[string]interface{} {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	var v map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &v), out.String())
	return v
}

func TestCommandsAgainstFileStore(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "triage.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
log:
  level: error
store:
  backend: file
  path: `+filepath.Join(dir, "incidents.json")+`
journal:
  path: `+filepath.Join(dir, "events.jsonl")+`
`), 0o600))

	sub := run(t, "--config", cfgPath, "submit", "--logs", "OOMKilled: container exceeded memory limit")
	assert.Equal(t, float64(1), sub["incident_id"])
	assert.Equal(t, "high", sub["confidence"])

	act := run(t, "--config", cfgPath, "fix", "--id", "1", "--fix", "increased memory limit to 1Gi", "--new-logs", "pod running normally")
	assert.Equal(t, "resolve", act["evaluation"].(map[string]interface{})["recommendation"])

	res := run(t, "--config", cfgPath, "resolve", "--id", "1", "--notes", "bumped limit")
	assert.Equal(t, "resolved", res["status"])

	list := run(t, "--config", cfgPath, "incidents", "list")
	assert.Equal(t, float64(1), list["total"])

	evs := run(t, "--config", cfgPath, "incidents", "events", "1")
	assert.Len(t, evs["events"], 5)
}

func TestReadLogs(t *testing.T) {
	got, err := readLogs(strings.NewReader("ignored"), "inline", "-")
	require.NoError(t, err)
	assert.Equal(t, "inline", got)

	got, err = readLogs(strings.NewReader("from stdin"), "", "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	path := filepath.Join(t.TempDir(), "pod.log")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o600))
	got, err = readLogs(nil, "", path)
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	got, err = readLogs(nil, "", "")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = readLogs(nil, "", filepath.Join(t.TempDir(), "missing.log"))
	assert.ErrorContains(t, err, "read logs")
}

func TestParseID(t *testing.T) {
	id, err := parseID("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	for _, bad := range []string{"0", "-1", "abc", ""} {
		_, err := parseID(bad)
		assert.Errorf(t, err, "%q", bad)
	}
}
