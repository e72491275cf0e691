package configpatch

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mirrorConfig = `/* Config Sample */
let config = {
	address: "localhost", // loopback only
	port: 8080,
	ipWhitelist: ["127.0.0.1", "::ffff:127.0.0.1", "::1"],
	timeFormat: 24,
	modules: [
		{ module: "alert" },
		{
			module: "clock",
			position: "top_left"
		},
		{
			module: "weather",
			position: "top_right",
			header: "Weather",
			config: {
				a: 1,
				units: "metric",
				refresh: 10 * 60 * 1000
			}
		},
		{
			module: "weather",
			position: "bottom_bar",
			config: { a: 7 }
		},
		{ position: "middle_center" }
	]
};

/*************** DO NOT EDIT THE LINE BELOW ***************/
if (typeof module !== "undefined") { module.exports = config; }
`

type reloads struct {
	modules []string
	indexes []int
}

func (r *reloads) ReloadRequested(module string, index int) {
	r.modules = append(r.modules, module)
	r.indexes = append(r.indexes, index)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.js")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestService(t *testing.T, content string, schemas Validator) (*Service, string, *reloads) {
	t.Helper()
	path := writeConfig(t, content)
	r := &reloads{}
	svc := NewService(Options{
		Path:        path,
		EvalTimeout: time.Second,
		Schemas:     schemas,
		Notifier:    r,
		Logger:      zerolog.Nop(),
	})
	return svc, path, r
}

func intPtr(i int) *int { return &i }

func TestListModules(t *testing.T) {
	svc, _, _ := newTestService(t, mirrorConfig, nil)

	list, err := svc.ListModules()
	require.NoError(t, err)
	require.Len(t, list, 4, "entries without a module name are omitted")

	assert.Equal(t, 0, list[0].Index)
	assert.Equal(t, "alert", list[0].Module)
	assert.Nil(t, list[0].Position)
	assert.Nil(t, list[0].Header)

	assert.Equal(t, "top_left", *list[1].Position)
	assert.Equal(t, "Weather", *list[2].Header)
	assert.Equal(t, 3, list[3].Index)
}

func TestGetModule(t *testing.T) {
	svc, _, _ := newTestService(t, mirrorConfig, nil)

	entry, err := svc.GetModule("weather", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Index, "first match wins without an index")
	assert.Equal(t, json.Number("600000"), entry.Config["refresh"])

	entry, err = svc.GetModule("weather", intPtr(3))
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Index)
	assert.Equal(t, json.Number("7"), entry.Config["a"])

	entry, err = svc.GetModule("clock", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, entry.Config)

	_, err = svc.GetModule("weather", intPtr(1))
	assert.ErrorIs(t, err, ErrNotFound, "index and name must both match")

	_, err = svc.GetModule("calendar", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadFailures(t *testing.T) {
	var readErr *ReadError

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.js"), time.Second)
	assert.ErrorAs(t, err, &readErr)

	for name, src := range map[string]string{
		"syntax":     "module.exports = {",
		"no modules": `module.exports = { port: 8080 };`,
		"not object": `module.exports = [1, 2];`,
		"nothing":    `module.exports = undefined;`,
		"throws":     `throw new Error("boom");`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, src), time.Second)
			assert.ErrorAs(t, err, &readErr)
		})
	}
}

func TestLoadTimesOut(t *testing.T) {
	start := time.Now()
	_, err := LoadFile(writeConfig(t, "for (;;) {}"), 100*time.Millisecond)

	var readErr *ReadError
	assert.ErrorAs(t, err, &readErr)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPatchReplaceRoundTrip(t *testing.T) {
	svc, path, r := newTestService(t, mirrorConfig, nil)

	entry, err := svc.Patch("weather", nil, json.RawMessage(`[{"op":"replace","path":"/a","value":2}]`))
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Index)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "module.exports = {\n"))
	assert.True(t, strings.HasSuffix(string(data), "};\n"))

	doc, err := LoadFile(path, time.Second)
	require.NoError(t, err)
	committed, err := Locate(doc, "weather", nil)
	require.NoError(t, err)
	assert.Equal(t, json.Number("2"), committed.Config["a"])
	assert.Equal(t, "metric", committed.Config["units"])
	assert.Equal(t, json.Number("8080"), doc["port"])

	other, err := Locate(doc, "weather", intPtr(3))
	require.NoError(t, err)
	assert.Equal(t, json.Number("7"), other.Config["a"], "other entries are untouched")

	backup, err := os.ReadFile(svc.BackupPath())
	require.NoError(t, err)
	assert.Equal(t, mirrorConfig, string(backup))

	assert.Equal(t, []string{"weather"}, r.modules)
	assert.Equal(t, []int{2}, r.indexes)
}

func TestPatchWholeConfig(t *testing.T) {
	svc, path, _ := newTestService(t, mirrorConfig, nil)

	_, err := svc.Patch("clock", intPtr(1), json.RawMessage(`[{"op":"replace","path":"","value":{"timeFormat":12}}]`))
	require.NoError(t, err)

	doc, err := LoadFile(path, time.Second)
	require.NoError(t, err)
	entry, err := Locate(doc, "clock", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"timeFormat": json.Number("12")}, entry.Config)
}

func TestPatchFailuresLeaveFileUntouched(t *testing.T) {
	cases := map[string]string{
		"failed test":     `[{"op":"test","path":"/a","value":5}]`,
		"missing target":  `[{"op":"remove","path":"/nope"}]`,
		"unknown op":      `[{"op":"merge","path":"/a","value":1}]`,
		"not an array":    `{"op":"replace","path":"/a","value":1}`,
		"bad pointer":     `[{"op":"replace","path":"a","value":1}]`,
		"non-object root": `[{"op":"replace","path":"","value":3}]`,
	}
	for name, ops := range cases {
		t.Run(name, func(t *testing.T) {
			svc, path, r := newTestService(t, mirrorConfig, nil)

			_, err := svc.Patch("weather", nil, json.RawMessage(ops))
			var patchErr *PatchError
			require.ErrorAs(t, err, &patchErr)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, mirrorConfig, string(data))
			assert.Empty(t, r.modules)
		})
	}
}

func TestPatchNotFoundWritesNothing(t *testing.T) {
	svc, _, _ := newTestService(t, mirrorConfig, nil)

	_, err := svc.Patch("calendar", nil, json.RawMessage(`[]`))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoFileExists(t, svc.BackupPath())
}

func TestPatchReadError(t *testing.T) {
	svc, _, _ := newTestService(t, `module.exports = {};`, nil)

	_, err := svc.Patch("weather", nil, json.RawMessage(`[]`))
	var readErr *ReadError
	assert.ErrorAs(t, err, &readErr)
}

func TestPatchSchemaViolationRestoresFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weather.schema.json"), []byte(`{
		"type": "object",
		"properties": {
			"a": {"type": "integer", "maximum": 5},
			"units": {"enum": ["metric", "imperial"]}
		}
	}`), 0o644))
	schemas := NewSchemas(dir, zerolog.Nop())

	svc, path, r := newTestService(t, mirrorConfig, schemas)

	_, err := svc.Patch("weather", nil, json.RawMessage(`[
		{"op":"replace","path":"/a","value":10},
		{"op":"replace","path":"/units","value":"kelvin"}
	]`))
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.NotEmpty(t, schemaErr.Issues)
	assert.Equal(t, "weather", schemaErr.Module)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, mirrorConfig, string(data), "config is byte-identical after rollback")
	assert.Empty(t, r.modules)

	_, err = svc.Patch("weather", nil, json.RawMessage(`[{"op":"replace","path":"/a","value":4}]`))
	require.NoError(t, err)
}

func newLoggedService(t *testing.T, buf *bytes.Buffer) (*Service, string, *reloads) {
	t.Helper()
	path := writeConfig(t, mirrorConfig)
	r := &reloads{}
	svc := NewService(Options{
		Path:        path,
		EvalTimeout: time.Second,
		Notifier:    r,
		Logger:      zerolog.New(buf),
	})
	return svc, path, r
}

func TestPatchCommitFailureRestoresFile(t *testing.T) {
	var logs bytes.Buffer
	svc, path, r := newLoggedService(t, &logs)
	// The atomic write cannot create its temp file over a directory.
	require.NoError(t, os.Mkdir(path+".tmp", 0o755))

	_, err := svc.Patch("weather", nil, json.RawMessage(`[{"op":"replace","path":"/a","value":2}]`))
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, path, writeErr.Path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, mirrorConfig, string(data))
	assert.Empty(t, r.modules)
	assert.Contains(t, logs.String(), "patch rolled back")
	assert.NoFileExists(t, path+".restore")
}

func TestPatchRollbackFailureKeepsCommitError(t *testing.T) {
	var logs bytes.Buffer
	svc, path, r := newLoggedService(t, &logs)
	require.NoError(t, os.Mkdir(path+".tmp", 0o755))
	require.NoError(t, os.Mkdir(path+".restore", 0o755))

	_, err := svc.Patch("weather", nil, json.RawMessage(`[{"op":"replace","path":"/a","value":2}]`))
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr, "the commit failure is reported, not the rollback failure")
	assert.Contains(t, err.Error(), "commit")
	assert.Empty(t, r.modules)

	out := logs.String()
	assert.Contains(t, out, "rollback failed")
	assert.Contains(t, out, `"level":"error"`)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, mirrorConfig, string(data))
}
