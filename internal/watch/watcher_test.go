package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/shadersense/internal/types"
	"github.com/standardbeagle/shadersense/internal/workspace"
	"github.com/standardbeagle/shadersense/testhelpers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events map[string]EventType
	ch     chan string
}

func newRecorder() *recorder {
	return &recorder{events: make(map[string]EventType), ch: make(chan string, 16)}
}

func (r *recorder) handle(path string, ev EventType) {
	r.mu.Lock()
	r.events[path] = ev
	r.mu.Unlock()
	r.ch <- path
}

func (r *recorder) seen(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.events[path]
	return ok
}

func TestWatcherReportsShaderWrites(t *testing.T) {
	root := t.TempDir()
	cfg := testhelpers.NewTestConfigBuilder(root).WithWatch(20).Build()
	rec := newRecorder()

	w, err := New(cfg, rec.handle)
	require.NoError(t, err)
	require.NoError(t, w.Start(root))
	defer w.Stop()

	notes := filepath.Join(root, "notes.txt")
	shader := filepath.Join(root, "light.glsl")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(shader, []byte("float light;\n"), 0o644))

	select {
	case got := <-rec.ch:
		assert.Equal(t, shader, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no event for shader write")
	}
	assert.False(t, rec.seen(notes))
	assert.GreaterOrEqual(t, w.Stats().EventsProcessed, int64(1))
}

func TestWatcherDisabledIsNoop(t *testing.T) {
	root := t.TempDir()
	cfg := testhelpers.NewTestConfigBuilder(root).Build()

	w, err := New(cfg, func(string, EventType) { t.Error("unexpected event") })
	require.NoError(t, err)
	require.NoError(t, w.Start(root))
	require.NoError(t, w.Stop())
	assert.False(t, w.Stats().IsActive)
}

func TestStartFailsOnMissingDir(t *testing.T) {
	root := t.TempDir()
	cfg := testhelpers.NewTestConfigBuilder(root).WithWatch(20).Build()
	w, err := New(cfg, func(string, EventType) {})
	require.NoError(t, err)
	defer w.Stop()

	assert.Error(t, w.Start(filepath.Join(root, "missing")))
}

func TestShouldProcess(t *testing.T) {
	root := t.TempDir()
	cfg := testhelpers.NewTestConfigBuilder(root).WithWatch(20).Build()
	cfg.Watch.Exclude = []string{"**/build/**"}
	w, err := New(cfg, func(string, EventType) {})
	require.NoError(t, err)
	defer w.Stop()

	assert.True(t, w.shouldProcess(filepath.Join(root, "a.hlsli")))
	assert.True(t, w.shouldProcess(filepath.Join(root, "sub", "b.comp")))
	assert.False(t, w.shouldProcess(filepath.Join(root, "readme.md")))
	assert.False(t, w.shouldProcess(filepath.Join(root, "build", "gen.glsl")))
	// Include dirs outside the project are never excluded
	assert.True(t, w.shouldProcess("/opt/sdk/include/build/common.hlsl"))
}

func TestDebouncerKeepsLatestEventPerPath(t *testing.T) {
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	d := newEventDebouncer(10*time.Millisecond, func(path string, ev EventType) {
		mu.Lock()
		got = append(got, path+":"+ev.String())
		if len(got) == 2 {
			close(done)
		}
		mu.Unlock()
	})
	d.addEvent("a.glsl", EventCreate)
	d.addEvent("a.glsl", EventWrite)
	d.addEvent("b.glsl", EventRemove)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("debouncer never flushed")
	}
	d.stop()

	mu.Lock()
	defer mu.Unlock()
	// Removals are delivered first
	assert.Equal(t, []string{"b.glsl:remove", "a.glsl:write"}, got)
}

func TestDebouncerStopDropsPending(t *testing.T) {
	d := newEventDebouncer(time.Hour, func(string, EventType) { t.Error("flushed after stop") })
	d.addEvent("a.glsl", EventWrite)
	d.stop()
	d.addEvent("b.glsl", EventWrite)
	d.flush()
}

func TestForwardReloadsHeader(t *testing.T) {
	root := t.TempDir()
	header := filepath.Join(root, "common.glsl")
	main := filepath.Join(root, "main.frag")
	require.NoError(t, os.WriteFile(header, []byte("float oldName;\n"), 0o644))
	mainText := "#include \"common.glsl\"\nvoid main() {}\n"
	require.NoError(t, os.WriteFile(main, []byte(mainText), 0o644))

	ws := workspace.New(testhelpers.NewTestConfigBuilder(root).Build(), workspace.Options{})
	defer ws.Close()
	ctx := context.Background()
	_, err := ws.DidOpen(ctx, main, []byte(mainText), types.LanguageUnknown, 1)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(header, []byte("float newName;\n"), 0o644))
	Forward(ctx, ws)(header, EventWrite)

	closure, err := ws.Symbols(ctx, main)
	require.NoError(t, err)
	_, ok := closure.Best("newName", -1)
	assert.True(t, ok)
	_, ok = closure.Best("oldName", -1)
	assert.False(t, ok)
}
