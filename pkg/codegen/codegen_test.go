package codegen

import (
	"os"
	"path/filepath"
	"testing"

	"asphalt/pkg/asset"
	"asphalt/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRefs() map[string]*asset.Ref {
	return map[string]*asset.Ref{
		"foo/bar.png": asset.CloudRef(2),
		"a b.png":     asset.CloudRef(1),
	}
}

func TestRender_Nested(t *testing.T) {
	values := map[string]string{
		"a b.png": "rbxassetid://1",
		"foo/bar": "rbxassetid://2",
	}
	root, err := BuildTree(values, config.StyleNested, false)
	require.NoError(t, err)

	assert.Equal(t, "local assets = {\n"+
		"\t[\"a b.png\"] = \"rbxassetid://1\",\n"+
		"\tfoo = {\n"+
		"\t\tbar = \"rbxassetid://2\",\n"+
		"\t},\n"+
		"}\n\nreturn assets", Render(Luau, "assets", root))

	assert.Equal(t, "declare const assets: {\n"+
		"\t\"a b.png\": string\n"+
		"\tfoo: {\n"+
		"\t\tbar: string\n"+
		"\t}\n"+
		"}\n\nexport = assets", Render(TypeScript, "assets", root))
}

func TestRender_Flat(t *testing.T) {
	root, err := BuildTree(map[string]string{
		"ui/close.png": "rbxassetid://2",
		"logo":         "rbxasset://.asphalt-game/abc.png",
	}, config.StyleFlat, false)
	require.NoError(t, err)

	assert.Equal(t, "local ids = {\n"+
		"\tlogo = \"rbxasset://.asphalt-game/abc.png\",\n"+
		"\t[\"ui/close.png\"] = \"rbxassetid://2\",\n"+
		"}\n\nreturn ids", Render(Luau, "ids", root))
}

func TestBuildTree_StripExtensions(t *testing.T) {
	values := map[string]string{"ui/close.png": "1", "sfx/boom.tar.ogg": "2"}

	flat, err := BuildTree(values, config.StyleFlat, true)
	require.NoError(t, err)
	assert.Contains(t, flat.children, "ui/close")
	assert.Contains(t, flat.children, "sfx/boom.tar")

	nested, err := BuildTree(values, config.StyleNested, true)
	require.NoError(t, err)
	assert.Contains(t, nested.children["ui"].children, "close")
	assert.Contains(t, nested.children["sfx"].children, "boom.tar")
}

func TestBuildTree_Collisions(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		style  config.Style
		strip  bool
	}{
		{"leaf vs table", map[string]string{"a": "1", "a/b.png": "2"}, config.StyleNested, false},
		{"stripped duplicates", map[string]string{"a.png": "1", "a.jpg": "2"}, config.StyleFlat, true},
		{"nested stripped duplicates", map[string]string{"x/a.png": "1", "x/a.jpg": "2"}, config.StyleNested, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildTree(tt.values, tt.style, tt.strip)
			assert.ErrorIs(t, err, ErrKeyCollision)
		})
	}
}

func TestIsIdentifier(t *testing.T) {
	tests := []struct {
		s      string
		luau   bool
		script bool
	}{
		{"foo", true, true},
		{"_bar9", true, true},
		{"9lives", false, false},
		{"a b", false, false},
		{"close.png", false, false},
		{"$money", false, true},
		{"", false, false},
		{"é", false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.luau, isIdentifier(tt.s, false), tt.s)
		assert.Equal(t, tt.script, isIdentifier(tt.s, true), tt.s)
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"say \"hi\"\\"`, quote(`say "hi"\`))
}

func TestGenerate(t *testing.T) {
	cfg := config.Codegen{Style: config.StyleFlat, Luau: true, TypeScript: true, OutputName: "assets"}
	refs := sampleRefs()
	refs["skipped.png"] = nil

	files, err := Generate(cfg, refs)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Contains(t, string(files["assets.luau"]), `["foo/bar.png"] = "rbxassetid://2"`)
	assert.NotContains(t, string(files["assets.luau"]), "skipped")
	assert.Contains(t, string(files["assets.d.ts"]), `"foo/bar.png": string`)

	cfg.Luau = false
	files, err = Generate(cfg, refs)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestWrite_Deterministic(t *testing.T) {
	out := filepath.Join(t.TempDir(), "src", "shared")
	cfg := config.Codegen{Style: config.StyleNested, Luau: true, OutputName: "assets"}

	require.NoError(t, Write(out, cfg, sampleRefs()))
	first, err := os.ReadFile(filepath.Join(out, "assets.luau"))
	require.NoError(t, err)

	for range 5 {
		require.NoError(t, Write(out, cfg, sampleRefs()))
		again, err := os.ReadFile(filepath.Join(out, "assets.luau"))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
