package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLayerPrecedence(t *testing.T) {
	base := writeFile(t, "base.yaml", "stages:\n  semantic:\n    top_k: 10\n")
	override := writeFile(t, "override.yaml", "stages:\n  semantic:\n    top_k: 50\n")

	baseLayer, err := FileLayer(base)
	require.NoError(t, err)
	overrideLayer, err := FileLayer(override)
	require.NoError(t, err)
	inline, err := JSONLayer([]byte(`{"stages":{"semantic":{"top_k":200}}}`))
	require.NoError(t, err)

	acc, err := New(baseLayer, overrideLayer, inline)
	require.NoError(t, err)

	assert.Equal(t, 200, acc.Int("stages.semantic.top_k", 0), "inline JSON wins over both files")

	// Without the inline layer, the file override wins.
	acc, err = New(baseLayer, overrideLayer)
	require.NoError(t, err)
	assert.Equal(t, 50, acc.Int("stages.semantic.top_k", 0))

	acc, err = New(baseLayer)
	require.NoError(t, err)
	assert.Equal(t, 10, acc.Int("stages.semantic.top_k", 0))
}

func TestOverrideKeepsUnrelatedKeys(t *testing.T) {
	base := MapLayer("base", map[string]any{
		"fusion": map[string]any{"rrf_k": 60, "rerank_top_n": 20},
	})
	override := MapLayer("override", map[string]any{
		"fusion": map[string]any{"rrf_k": 10},
	})

	acc, err := New(base, override)
	require.NoError(t, err)
	assert.Equal(t, 10, acc.Int("fusion.rrf_k", 0))
	assert.Equal(t, 20, acc.Int("fusion.rerank_top_n", 0), "sibling keys survive a partial override")
}

func TestMergeLeavesLayersIntact(t *testing.T) {
	base := MapLayer("base", map[string]any{
		"stages": map[string]any{"semantic": map[string]any{"top_k": 10}},
	})
	override := MapLayer("override", map[string]any{
		"stages": map[string]any{"semantic": map[string]any{"top_k": 50}},
	})

	_, err := New(base, override)
	require.NoError(t, err)

	nested := base.Values["stages"].(map[string]any)["semantic"].(map[string]any)
	assert.Equal(t, 10, nested["top_k"], "merging must not write through to the base layer")

	acc, err := New(base)
	require.NoError(t, err)
	assert.Equal(t, 10, acc.Int("stages.semantic.top_k", 0), "a layer is reusable after a merge")
}

func TestMissingPathFallsBackToDefault(t *testing.T) {
	acc, err := New()
	require.NoError(t, err)

	assert.Equal(t, 42, acc.Int("not.there", 42))
	assert.Equal(t, 1.5, acc.Float("not.there", 1.5))
	assert.Equal(t, true, acc.Bool("not.there", true))
	assert.Equal(t, "dflt", acc.String("not.there", "dflt"))
	assert.Equal(t, []string{"a"}, acc.Strings("not.there", []string{"a"}))
}

func TestTypedLookups(t *testing.T) {
	acc, err := New(MapLayer("base", map[string]any{
		"pack": map[string]any{
			"budget":  4096,
			"enabled": true,
			"order":   []string{"episodic", "semantic"},
			"weight":  0.3,
			"label":   "default",
		},
	}))
	require.NoError(t, err)

	assert.Equal(t, 4096, acc.Int("pack.budget", 0))
	assert.True(t, acc.Bool("pack.enabled", false))
	assert.Equal(t, []string{"episodic", "semantic"}, acc.Strings("pack.order", nil))
	assert.Equal(t, 0.3, acc.Float("pack.weight", 0))
	assert.Equal(t, "default", acc.String("pack.label", ""))
}

func TestJSONLayerRejectsMalformed(t *testing.T) {
	_, err := JSONLayer([]byte(`{not json`))
	assert.Error(t, err)
}
