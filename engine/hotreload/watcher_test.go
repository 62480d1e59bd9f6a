package hotreload

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-restir/engine/settings"
)

const (
	debounce = 20 * time.Millisecond
	wait     = 2 * time.Second
	tick     = 5 * time.Millisecond
)

func write(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestShaderChangesAreDebounced(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "temporal.wgsl"), "// v1")

	w, err := NewWatcher(WithDebounce(debounce))
	require.NoError(t, err)
	defer w.Close()

	var fired atomic.Int32
	require.NoError(t, w.WatchShaders(dir, func() { fired.Add(1) }))

	for i := 0; i < 5; i++ {
		write(t, filepath.Join(dir, "temporal.wgsl"), "// v2")
	}
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, wait, tick)
	time.Sleep(4 * debounce)
	assert.Equal(t, int32(1), fired.Load())
}

func TestShaderWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(WithDebounce(debounce))
	require.NoError(t, err)
	defer w.Close()

	var fired atomic.Int32
	require.NoError(t, w.WatchShaders(dir, func() { fired.Add(1) }))

	write(t, filepath.Join(dir, "notes.txt"), "x")
	time.Sleep(6 * debounce)
	assert.Zero(t, fired.Load())
}

func TestShaderWatchFollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(WithDebounce(debounce))
	require.NoError(t, err)
	defer w.Close()

	var fired atomic.Int32
	require.NoError(t, w.WatchShaders(dir, func() { fired.Add(1) }))

	sub := filepath.Join(dir, "denoiser")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// the new directory is added by the event loop
	time.Sleep(4 * debounce)
	write(t, filepath.Join(sub, "relax.wgsl"), "// relax")
	assert.Eventually(t, func() bool { return fired.Load() >= 1 }, wait, tick)
}

func TestSettingsFileReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, settings.Save(path, settings.Default()))
	store := settings.NewStore(settings.Default())
	reload := ReloadSettings(path, store)

	w, err := NewWatcher(WithDebounce(debounce))
	require.NoError(t, err)
	defer w.Close()

	var errs atomic.Int32
	var done atomic.Int32
	require.NoError(t, w.WatchFile(path, func() {
		if reload() != nil {
			errs.Add(1)
		}
		done.Add(1)
	}))

	s := settings.Default()
	s.Denoiser = settings.DenoiserReBLUR
	require.NoError(t, settings.Save(path, s))

	assert.Eventually(t, func() bool { return done.Load() >= 1 }, wait, tick)
	assert.Zero(t, errs.Load())
	assert.Equal(t, settings.DenoiserReBLUR, store.Snapshot().Denoiser)
}

func TestReloadSettingsKeepsLiveSettingsOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	write(t, path, "[resolution]\nwidth = 0\n")
	store := settings.NewStore(settings.Default())
	before := store.Snapshot()

	require.Error(t, ReloadSettings(path, store)())
	assert.Equal(t, before, store.Snapshot())
}

func TestClosedWatcher(t *testing.T) {
	w, err := NewWatcher()
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.WatchFile(filepath.Join(t.TempDir(), "x.toml"), func() {}), ErrClosed)
}
