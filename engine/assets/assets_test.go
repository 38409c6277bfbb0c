package assets

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

// a SPIR-V header: magic, version, generator, bound, schema
var testShader = []byte{
	0x03, 0x02, 0x23, 0x07,
	0x00, 0x00, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newTestAssets(t *testing.T) (string, *AssetManager) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shaders", "triangle.vert.spv"), testShader)
	writeFile(t, filepath.Join(root, "data", "words.bin"), []byte{1, 0, 0, 0, 2, 0, 0, 0})
	writeFile(t, filepath.Join(root, "notes.txt"), []byte("not an asset"))

	am, err := NewAssetManager(root)
	require.NoError(t, err)
	t.Cleanup(func() { am.Close() })
	return root, am
}

func TestAssetManagerIndexesKnownTypes(t *testing.T) {
	_, am := newTestAssets(t)
	assert.True(t, am.Has("shaders/triangle.vert.spv"))
	assert.True(t, am.Has("data/words.bin"))
	assert.False(t, am.Has("notes.txt"))
}

func TestAssetManagerLoad(t *testing.T) {
	_, am := newTestAssets(t)

	res, err := am.LoadAsset("shaders/triangle.vert.spv", metadata.ResourceTypeShader)
	require.NoError(t, err)
	assert.Equal(t, testShader, res.Data)
	assert.Equal(t, "shaders/triangle.vert.spv", res.Name)
	assert.Equal(t, uint64(len(testShader)), res.DataSize)
	require.NoError(t, am.UnloadAsset(res))
	assert.Nil(t, res.Data)

	res, err = am.LoadAsset("data/words.bin", metadata.ResourceTypeBinary)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, res.Data)

	_, err = am.LoadAsset("data/words.bin", metadata.ResourceTypeShader)
	assert.Error(t, err)

	_, err = am.LoadAsset("shaders/missing.spv", metadata.ResourceTypeShader)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestAssetManagerRejectsInvalidShader(t *testing.T) {
	root, am := newTestAssets(t)
	bad := append([]byte{0xde, 0xad, 0xbe, 0xef}, testShader[4:]...)
	writeFile(t, filepath.Join(root, "shaders", "triangle.vert.spv"), bad)

	_, err := am.LoadAsset("shaders/triangle.vert.spv", metadata.ResourceTypeShader)
	assert.Error(t, err)
}

func TestAssetManagerUnsubscribe(t *testing.T) {
	_, am := newTestAssets(t)
	a := am.Subscribe("shaders/triangle.vert.spv", func(string) {})
	b := am.Subscribe("shaders/triangle.vert.spv", func(string) {})
	assert.NotEqual(t, a, b)

	am.Unsubscribe(a)
	assert.Len(t, am.subscribers["shaders/triangle.vert.spv"], 1)
	am.Unsubscribe(b)
	assert.NotContains(t, am.subscribers, "shaders/triangle.vert.spv")
}

func TestAssetManagerWatchNotifiesChanges(t *testing.T) {
	root, am := newTestAssets(t)
	bus := core.NewEventBus()
	am.SetEventBus(bus)

	var notified, fired atomic.Bool
	am.Subscribe("shaders/triangle.vert.spv", func(name string) {
		notified.Store(true)
	})
	bus.Register(core.EVENT_CODE_ASSET_CHANGED, t, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		if data.Data.C[0] == "shaders/triangle.vert.spv" {
			fired.Store(true)
		}
		return false
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- am.Watch(ctx) }()

	path := filepath.Join(root, "shaders", "triangle.vert.spv")
	// the watcher registers its directories asynchronously, keep touching the file until it sees it
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, testShader, 0o644)
		return notified.Load()
	}, 5*time.Second, 50*time.Millisecond)
	assert.Eventually(t, fired.Load, time.Second, 10*time.Millisecond)

	// new files are indexed while watching
	writeFile(t, filepath.Join(root, "shaders", "triangle.frag.spv"), testShader)
	assert.Eventually(t, func() bool { return am.Has("shaders/triangle.frag.spv") }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.Error(t, am.Watch(context.Background()), "closed managers cannot watch again")
}
