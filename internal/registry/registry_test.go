package registry

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/consult/internal/contracts"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func ids(instances []contracts.StrategyInstance) []string {
	out := make([]string, len(instances))
	for i, inst := range instances {
		out[i] = inst.ID
	}
	return out
}

func TestFileSource_ListActiveInstances(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "spreads.yaml", `
id: put-spread-spx
template: short_put_spread
priority: 5
sectors: [index]
parameters:
  symbol: SPX
  delta: 0.16
  dte: 45
  strikes: [4500, 4550]
---
id: call-spread-ndx
template: short_call_spread
priority: 5
sectors: [index, tech]
parameters:
  symbol: NDX
`)
	writeFile(t, dir, "condor.yml", `
id: condor-aapl
template: iron_condor
priority: 9
sectors: [tech]
evolution:
  generation: 3
`)
	writeFile(t, dir, "disabled.yaml", `
id: retired
template: iron_condor
enabled: false
`)
	writeFile(t, dir, "notes.md", "not an instance")

	src := NewFileSource(dir)
	ctx := context.Background()

	all, err := src.ListActiveInstances(ctx, contracts.SectorAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"condor-aapl", "call-spread-ndx", "put-spread-spx"}, ids(all))

	tech, err := src.ListActiveInstances(ctx, "TECH")
	require.NoError(t, err)
	assert.Equal(t, []string{"condor-aapl", "call-spread-ndx"}, ids(tech))

	// parameters keep their YAML types
	put := all[2]
	assert.Equal(t, 0.16, put.Parameters["delta"])
	assert.Equal(t, 45, put.Parameters["dte"])
	assert.True(t, put.Enabled)
	assert.Equal(t, 3, all[0].Evolution["generation"])

	// instances without parameters get an empty map
	assert.NotNil(t, all[0].Parameters)
}

func TestFileSource_Errors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := NewFileSource(filepath.Join(t.TempDir(), "nope")).ListActiveInstances(context.Background(), "ALL")
		assert.ErrorIs(t, err, contracts.ErrRegistry)
	})

	t.Run("unknown field", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "typo.yaml", "id: a\ntemplate: t\npriorty: 3\n")
		_, err := NewFileSource(dir).ListActiveInstances(context.Background(), "ALL")
		assert.ErrorIs(t, err, contracts.ErrRegistry)
	})

	t.Run("missing id", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "noid.yaml", "template: t\n")
		_, err := NewFileSource(dir).ListActiveInstances(context.Background(), "ALL")
		require.Error(t, err)
		assert.ErrorIs(t, err, contracts.ErrRegistry)
		assert.Contains(t, err.Error(), "noid.yaml")
	})
}

func TestFileSource_KeepsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "id: dup\ntemplate: t1\n")
	writeFile(t, dir, "b.yaml", "id: dup\ntemplate: t2\n")

	all, err := NewFileSource(dir).ListActiveInstances(context.Background(), "ALL")
	require.NoError(t, err)
	require.Len(t, all, 2)
	// stable sort keeps file order for equal keys
	assert.Equal(t, "t1", all[0].Template)
	assert.Equal(t, "t2", all[1].Template)
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(
		contracts.StrategyInstance{ID: "b", Priority: 1, Enabled: true},
		contracts.StrategyInstance{ID: "a", Priority: 1, Enabled: true},
		contracts.StrategyInstance{ID: "off", Priority: 9, Enabled: false},
	)

	got, err := src.ListActiveInstances(context.Background(), "ALL")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))

	src.FailWith(errors.New("connection refused"))
	_, err = src.ListActiveInstances(context.Background(), "ALL")
	assert.ErrorIs(t, err, contracts.ErrRegistry)
}

func TestNormalizeNumbers(t *testing.T) {
	obj := map[string]interface{}{
		"dte":    json.Number("45"),
		"delta":  json.Number("0.16"),
		"big":    json.Number("9007199254740993"),
		"nested": []interface{}{json.Number("1"), map[string]interface{}{"x": json.Number("2.5")}},
		"name":   "SPX",
	}

	NormalizeNumbers(obj)

	assert.Equal(t, int64(45), obj["dte"])
	assert.Equal(t, 0.16, obj["delta"])
	assert.Equal(t, int64(9007199254740993), obj["big"])
	nested := obj["nested"].([]interface{})
	assert.Equal(t, int64(1), nested[0])
	assert.Equal(t, 2.5, nested[1].(map[string]interface{})["x"])
	assert.Equal(t, "SPX", obj["name"])
}

func TestDecodeObject(t *testing.T) {
	obj, err := decodeObject([]byte(`{"dte": 30, "delta": 0.2}`))
	require.NoError(t, err)
	assert.Equal(t, int64(30), obj["dte"])

	obj, err = decodeObject(nil)
	require.NoError(t, err)
	assert.Nil(t, obj)

	_, err = decodeObject([]byte(`[1,2]`))
	assert.Error(t, err)
}
