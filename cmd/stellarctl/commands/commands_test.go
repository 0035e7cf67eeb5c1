package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
families:
  - name: Foundations
    core: ignition
    constellations:
      - name: Shell
        color: "#44bba4"
`

const testNodes = `
- classification:
    core_node: IGNITION
    constellation_name: Shell
    difficulty_level: 1
    difficulty_name: Beginner
  analysis_details:
    title: Intro
- classification:
    core_node: IGNITION
    constellation_name: Shell
    difficulty_level: 4
  analysis_details:
    title: Pipes
    link: https://youtu.be/iaAvH7wc9CE
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCommandsAgainstSQLite(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("LOG_LEVEL", "error")
	dir := t.TempDir()
	db := filepath.Join(dir, "stellar.sqlite")

	out, err := execute(t, "migrate", "--sqlite", db)
	require.NoError(t, err)
	assert.Contains(t, out, "schema is up to date (sqlite)")

	out, err = execute(t, "catalog", writeFile(t, dir, "catalog.yaml", testCatalog), "--sqlite", db)
	require.NoError(t, err)
	var catalog struct {
		FamiliesCreated       int `json:"families_created"`
		ConstellationsCreated int `json:"constellations_created"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &catalog))
	assert.Equal(t, 1, catalog.FamiliesCreated)
	assert.Equal(t, 1, catalog.ConstellationsCreated)

	out, err = execute(t, "import", writeFile(t, dir, "nodes.yaml", testNodes), "--sqlite", db)
	require.NoError(t, err)
	var imported struct {
		Inserted int `json:"inserted"`
		Failed   int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &imported))
	assert.Equal(t, 2, imported.Inserted)
	assert.Zero(t, imported.Failed)

	out, err = execute(t, "validate", "--core", "ignition", "--strict", "--sqlite", db)
	require.NoError(t, err)
	assert.Contains(t, out, `"accepted": 2`)

	out, err = execute(t, "map", "--core", "Ignition", "--learner", "ada", "--xp", "4000", "--sqlite", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Pipes")
	assert.NotContains(t, out, "Intro")

	out, err = execute(t, "complete", "n-1", "n-1", "--learner", "ada", "--sqlite", db)
	require.NoError(t, err)
	var completed struct {
		GrantedCount int `json:"granted_count"`
		RepeatCount  int `json:"repeat_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &completed))
	assert.Equal(t, 1, completed.GrantedCount)
	assert.Equal(t, 1, completed.RepeatCount)

	out, err = execute(t, "reward", "n-1", "--learner", "ada", "--sqlite", db)
	require.NoError(t, err)
	var rewarded struct {
		Reward   int64 `json:"reward"`
		NewTotal int64 `json:"new_total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rewarded))
	assert.EqualValues(t, 50, rewarded.Reward)
	assert.EqualValues(t, 100, rewarded.NewTotal)

	out, err = execute(t, "render", "--core", "ignition", "--learner", "ada", "--xp", "0",
		"--frames", "0", "--width", "640", "--height", "480", "--focus", "Shell", "--sqlite", db)
	require.NoError(t, err)
	var report struct {
		Tier   string         `json:"tier"`
		Nodes  int            `json:"nodes"`
		Meshes map[string]int `json:"meshes"`
		Focus  *struct {
			Name string `json:"Name"`
		} `json:"focus"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "Fog", report.Tier)
	assert.Equal(t, 1, report.Nodes)
	assert.Equal(t, 1, report.Meshes["node"])
	assert.Equal(t, 1, report.Meshes["sun"])
	require.NotNil(t, report.Focus)
	assert.Equal(t, "Shell", report.Focus.Name)
}

func TestClassifyNeedsNoStore(t *testing.T) {
	out, err := execute(t, "classify", "--core", "insight", "--xp", "21000")
	require.NoError(t, err)
	var got []struct {
		Core  string `json:"core"`
		Known bool   `json:"known"`
		Range struct {
			Min int `json:"min"`
			Max int `json:"max"`
		} `json:"range"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.True(t, got[0].Known)
	assert.Equal(t, 3, got[0].Range.Min)
	assert.Equal(t, 5, got[0].Range.Max)
}

func TestImportReportsFailures(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "stellar.sqlite")
	nodes := writeFile(t, dir, "nodes.json", `[{"classification":{"core_node":"IGNITION","constellation_name":"Nowhere","difficulty_level":1},"analysis_details":{"title":"Lost"}}]`)

	_, err := execute(t, "import", nodes, "--sqlite", db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 records failed")
}
