package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"asphalt/pkg/asset"
	"asphalt/pkg/lockfile"
	"asphalt/pkg/types"
	"asphalt/pkg/webapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func processed(t *testing.T, rel string, data []byte) *asset.Asset {
	t.Helper()
	a, err := asset.New(rel, data)
	require.NoError(t, err)
	// 直通类型，Process 只计算 Hash
	require.NoError(t, a.Process(context.Background(), asset.ProcessOptions{}))
	return a
}

func TestParseTarget(t *testing.T) {
	for _, s := range []string{"cloud", "studio", "debug"} {
		target, err := ParseTarget(s)
		require.NoError(t, err)
		assert.Equal(t, Target(s), target)
	}
	target, err := ParseTarget("")
	require.NoError(t, err)
	assert.Equal(t, TargetCloud, target)
	assert.False(t, target.IsLocal())
	assert.True(t, TargetDebug.IsLocal())

	_, err = ParseTarget("s3")
	assert.Error(t, err)
}

func TestDebug(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, DebugDir, "old.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	d, err := NewDebug(dir)
	require.NoError(t, err)
	assert.NoFileExists(t, stale, "debug dir is wiped on start")

	a := processed(t, "ui/icons/close.mp3", []byte("sound"))
	ref, err := d.Sync(context.Background(), "assets", a)
	require.NoError(t, err)
	assert.Nil(t, ref)

	data, err := os.ReadFile(filepath.Join(dir, DebugDir, "ui", "icons", "close.mp3"))
	require.NoError(t, err)
	assert.Equal(t, []byte("sound"), data)
}

func TestProjectIdentifier(t *testing.T) {
	assert.Equal(t, ".asphalt-my-cool-game", ProjectIdentifier("My Cool\tGame"))
	assert.Equal(t, ".asphalt-game", ProjectIdentifier("Game"))
}

func TestStudio(t *testing.T) {
	content := t.TempDir()
	t.Setenv("ROBLOX_CONTENT_PATH", content)
	project := filepath.Join(t.TempDir(), "My Game")
	require.NoError(t, os.MkdirAll(project, 0o755))

	model := processed(t, "walk.fbx", []byte("fbx"))
	existing := lockfile.New()
	existing.Insert("assets", model.Hash, lockfile.Entry{AssetID: 55})

	s, err := NewStudio(project, existing)
	require.NoError(t, err)

	// 普通资源写到 content/<identifier>/<hash>.<ext>
	a := processed(t, "sfx/boom.ogg", []byte("ogg"))
	ref, err := s.Sync(context.Background(), "assets", a)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.False(t, ref.IsCloud())
	assert.Equal(t, "rbxasset://.asphalt-my-game/"+a.Hash.String()+".ogg", ref.Value())
	assert.FileExists(t, filepath.Join(content, ".asphalt-my-game", a.Hash.String()+".ogg"))

	// 已知的模型复用云端 ID
	ref, err = s.Sync(context.Background(), "assets", model)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "rbxassetid://55", ref.Value())

	// 未知的模型跳过
	other := processed(t, "tree.fbx", []byte("other"))
	ref, err = s.Sync(context.Background(), "assets", other)
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestContentPath_Windows(t *testing.T) {
	local := t.TempDir()
	_, err := windowsContentPath(local)
	assert.ErrorIs(t, err, ErrStudioNotFound)

	version := filepath.Join(local, "Roblox", "Versions", "version-abc")
	require.NoError(t, os.MkdirAll(version, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(version, "RobloxStudioBeta.exe"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(local, "Roblox", "Versions", "version-player"), 0o755))

	p, err := windowsContentPath(local)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(version, "content"), p)
}

func TestCloud(t *testing.T) {
	client := webapi.New(webapi.Options{TestMode: true})

	c, err := NewCloud(client, "", "")
	require.NoError(t, err, "test mode needs no credentials")

	ref, err := c.Sync(context.Background(), "assets", processed(t, "a.png", []byte("png")))
	require.NoError(t, err)
	assert.Equal(t, asset.CloudRef(types.AssetID(webapi.TestAssetID)), ref)

	live := webapi.New(webapi.Options{})
	_, err = NewCloud(live, "", "")
	assert.ErrorIs(t, err, ErrAPIKeyRequired)

	c, err = NewCloud(live, "key", "")
	require.NoError(t, err)
	anim, err := asset.New("walk.rbxm", []byte("x"))
	require.NoError(t, err)
	_, err = c.Sync(context.Background(), "assets", anim)
	assert.ErrorIs(t, err, ErrCookieRequired)
}
