package exporter

import (
	"bytes"
	"strings"
	"testing"

	"asphalt/pkg/asset"
	"asphalt/pkg/lockfile"
	"asphalt/pkg/types"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLock() *lockfile.Lockfile {
	lf := lockfile.New()
	lf.Insert("ui", types.Hash(strings.Repeat("b", 64)), lockfile.Entry{AssetID: 2})
	lf.Insert("audio", types.Hash(strings.Repeat("c", 64)), lockfile.Entry{AssetID: 3})
	lf.Insert("ui", types.Hash(strings.Repeat("a", 64)), lockfile.Entry{AssetID: 1})
	return lf
}

func TestRows_Sorted(t *testing.T) {
	rows := NewExporter(sampleLock()).Rows("")
	require.Len(t, rows, 3)
	assert.Equal(t, "audio", rows[0].Input)
	assert.Equal(t, types.AssetID(1), rows[1].AssetID)
	assert.Equal(t, types.AssetID(2), rows[2].AssetID)

	only := NewExporter(sampleLock()).Rows("ui")
	assert.Len(t, only, 2)
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewExporter(sampleLock()).PrintTable(&buf, "", true))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"INPUT", "HASH", "ASSET", "ID"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"audio", "cccccccc", "3"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"ui", "aaaaaaaa", "1"}, strings.Fields(lines[2]))
}

func TestPrintTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewExporter(lockfile.New()).PrintTable(&buf, "", false))
	assert.Equal(t, "No assets in lockfile\n", buf.String())
}

func TestPrintAsset(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	a, err := asset.New("ui/icon.png", []byte("data"))
	require.NoError(t, err)
	a.Hash = types.Hash(strings.Repeat("f", 64))

	var buf bytes.Buffer
	PrintAsset(&buf, a, 99, false)
	assert.Equal(t, "99\n", buf.String())

	buf.Reset()
	PrintAsset(&buf, a, 99, true)
	assert.Equal(t, "https://create.roblox.com/store/asset/99\n", buf.String())

	// 详细信息只进日志
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "icon.png", entry.Data["name"])
	assert.Equal(t, "4B", entry.Data["size"])
	assert.Contains(t, entry.Message, "99")
}

func TestFmtSize(t *testing.T) {
	assert.Equal(t, "512B", fmtSize(512))
	assert.Equal(t, "1.5KB", fmtSize(1536))
	assert.Equal(t, "2.00MB", fmtSize(2*1024*1024))
}
