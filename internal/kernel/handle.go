package kernel

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/llm-lab/mockllm/internal/config"
	"github.com/llm-lab/mockllm/internal/observability"
)

// ReloadDebounce is the minimum gap between filesystem reloads. Calls
// inside the window return the published snapshot untouched.
const ReloadDebounce = 1500 * time.Millisecond

// Handle publishes the current snapshot and serializes reloads. Snapshot
// reads cost one atomic load.
type Handle struct {
	root    string
	log     *slog.Logger
	metrics *observability.Metrics

	current atomic.Pointer[Snapshot]

	mu   sync.Mutex
	last time.Time
}

// Open loads the config directory and publishes the first snapshot. The
// debounce clock starts unset, so the first explicit reload is never
// skipped.
func Open(root string, metrics *observability.Metrics) (*Handle, error) {
	h := &Handle{
		root:    root,
		log:     slog.With("component", "kernel"),
		metrics: metrics,
	}
	loaded, err := config.LoadDir(root)
	if err != nil {
		return nil, err
	}
	snap, err := Build(loaded)
	if err != nil {
		return nil, err
	}
	h.current.Store(snap)
	return h, nil
}

// Snapshot returns the currently published snapshot.
func (h *Handle) Snapshot() *Snapshot {
	return h.current.Load()
}

// Reload rebuilds the snapshot from disk and swaps it in. It reports
// whether a reload actually happened; debounced calls return the current
// snapshot with reloaded=false and no error. A failed load keeps the
// prior snapshot published.
func (h *Handle) Reload() (*Snapshot, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.last.IsZero() && time.Since(h.last) < ReloadDebounce {
		h.record("debounced")
		return h.Snapshot(), false, nil
	}
	h.last = time.Now()

	loaded, err := config.LoadDir(h.root)
	if err != nil {
		h.record("error")
		return h.Snapshot(), false, err
	}
	snap, err := Build(loaded)
	if err != nil {
		h.record("error")
		return h.Snapshot(), false, err
	}

	old := h.current.Swap(snap)
	h.last = time.Now()
	if old != nil {
		old.Close()
	}
	h.record("ok")
	h.log.Info("config reloaded", "models", len(snap.Models), "aliases", len(snap.Aliases))
	return snap, true, nil
}

// Close stops the published snapshot's workers.
func (h *Handle) Close() {
	if s := h.current.Load(); s != nil {
		s.Close()
	}
}

func (h *Handle) record(result string) {
	if h.metrics != nil {
		h.metrics.RecordReload(result)
	}
}
