package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	evdev "github.com/holoplot/go-evdev"

	"github.com/nerrad567/keymux/internal/device"
	"github.com/nerrad567/keymux/internal/engine"
	"github.com/nerrad567/keymux/internal/infrastructure/metrics"
	"github.com/nerrad567/keymux/internal/input"
	"github.com/nerrad567/keymux/internal/keys"
)

const waitTimeout = 2 * time.Second

// fakeSource replays queued events and fails with an injected error.
// Close unblocks Read with input.ErrClosed.
type fakeSource struct {
	path   device.Path
	name   string
	events chan *evdev.InputEvent
	errs   chan error

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeSource(p device.Path) *fakeSource {
	return &fakeSource{
		path:   p,
		name:   "Fake Keyboard " + string(p),
		events: make(chan *evdev.InputEvent, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (s *fakeSource) Path() device.Path { return s.path }
func (s *fakeSource) Name() string      { return s.name }

func (s *fakeSource) Read() (*evdev.InputEvent, error) {
	select {
	case <-s.closed:
		return nil, input.ErrClosed
	default:
	}
	select {
	case ev := <-s.events:
		return ev, nil
	case err := <-s.errs:
		return nil, err
	case <-s.closed:
		return nil, input.ErrClosed
	}
}

func (s *fakeSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSource) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// fakeOpener hands out fakeSources, or a configured error per path.
type fakeOpener struct {
	mu      sync.Mutex
	fail    map[device.Path]error
	sources map[device.Path]*fakeSource
	opens   map[device.Path]int
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		fail:    make(map[device.Path]error),
		sources: make(map[device.Path]*fakeSource),
		opens:   make(map[device.Path]int),
	}
}

func (f *fakeOpener) open(_ context.Context, p device.Path) (Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[p]; ok {
		return nil, err
	}
	src := newFakeSource(p)
	f.sources[p] = src
	f.opens[p]++
	return src, nil
}

func (f *fakeOpener) opened(p device.Path) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[p]
}

func (f *fakeOpener) source(p device.Path) *fakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sources[p]
}

type fakeDevices struct {
	known    []device.Path
	watching bool
	found    chan device.Path
	watchErr chan error
}

func newFakeDevices(watching bool, known ...device.Path) *fakeDevices {
	return &fakeDevices{
		known:    known,
		watching: watching,
		found:    make(chan device.Path, 4),
		watchErr: make(chan error, 1),
	}
}

func (d *fakeDevices) Known() []device.Path { return d.known }
func (d *fakeDevices) Watching() bool       { return d.watching }

func (d *fakeDevices) Watch(ctx context.Context) (device.Path, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case p := <-d.found:
		return p, nil
	case err := <-d.watchErr:
		return "", err
	}
}

type fakeDispatcher struct {
	mu      sync.Mutex
	keys    []keys.KeyEvent
	passed  []evdev.EvType
	keyErr  error
	tickErr error
	ticks   atomic.Int32
}

func (d *fakeDispatcher) HandleKeyEvent(ev keys.KeyEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, ev)
	return d.keyErr
}

func (d *fakeDispatcher) PassThrough(raw *evdev.InputEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.passed = append(d.passed, raw.Type)
	return nil
}

func (d *fakeDispatcher) Tick(time.Time) error {
	d.ticks.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tickErr
}

func (d *fakeDispatcher) TapDanceWait() time.Duration { return 20 * time.Millisecond }

func (d *fakeDispatcher) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys), len(d.passed)
}

type memSessions struct {
	mu   sync.Mutex
	byID map[string]device.Session
}

func newMemSessions() *memSessions {
	return &memSessions{byID: make(map[string]device.Session)}
}

func (m *memSessions) Start(_ context.Context, s device.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = s
	return nil
}

func (m *memSessions) Finish(_ context.Context, id string, status device.SessionStatus, errMsg string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return device.ErrSessionNotFound
	}
	s.Status = status
	s.Error = errMsg
	s.EndedAt = &endedAt
	m.byID[id] = s
	return nil
}

func (m *memSessions) Recent(context.Context, int) ([]device.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]device.Session, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

type recordExport struct {
	mu       sync.Mutex
	statuses []string
}

func (r *recordExport) WriteSession(path, _, status string, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, path+"="+status)
}

func (r *recordExport) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

type harness struct {
	orch   *Orchestrator
	devs   *fakeDevices
	opener *fakeOpener
	disp   *fakeDispatcher
}

func newHarness(t *testing.T, devs *fakeDevices, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{devs: devs, opener: newFakeOpener(), disp: &fakeDispatcher{}}
	cfg := Config{Devices: devs, Engine: h.disp, Open: h.opener.open}
	if mutate != nil {
		mutate(&cfg)
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.orch = o
	return h
}

func (h *harness) run(ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- h.orch.Run(ctx) }()
	return errc
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("Run() did not return")
		return nil
	}
}

func keyEvent(code evdev.EvCode, value int32) *evdev.InputEvent {
	return &evdev.InputEvent{Type: evdev.EV_KEY, Code: code, Value: value}
}

func unsupported(p device.Path) error {
	return &input.Error{Path: p, Op: "open", Err: input.ErrUnsupportedDevice}
}

func TestNew_Validation(t *testing.T) {
	devs := newFakeDevices(false)
	disp := &fakeDispatcher{}
	open := newFakeOpener().open

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no devices", cfg: Config{Engine: disp, Open: open}},
		{name: "no engine", cfg: Config{Devices: devs, Open: open}},
		{name: "no opener", cfg: Config{Devices: devs, Engine: disp}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestRun_StaticFirstErrorStopsAll(t *testing.T) {
	h := newHarness(t, newFakeDevices(false, "/dev/input/event1", "/dev/input/event2"), nil)
	errc := h.run(context.Background())

	waitFor(t, "both devices captured", func() bool {
		return h.opener.source("/dev/input/event1") != nil && h.opener.source("/dev/input/event2") != nil
	})

	boom := errors.New("device unplugged")
	h.opener.source("/dev/input/event1").errs <- boom

	if err := waitErr(t, errc); !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if !h.opener.source("/dev/input/event2").isClosed() {
		t.Error("surviving device was not released")
	}
	if h.orch.Readers().Active() != 0 {
		t.Errorf("Readers().Active() = %d, want 0", h.orch.Readers().Active())
	}
}

func TestRun_StaticRejectedDeviceSkipped(t *testing.T) {
	h := newHarness(t, newFakeDevices(false, "/dev/input/event1", "/dev/input/event2"), nil)
	h.opener.fail["/dev/input/event1"] = unsupported("/dev/input/event1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := h.run(ctx)

	waitFor(t, "event2 captured", func() bool { return h.opener.source("/dev/input/event2") != nil })
	h.opener.source("/dev/input/event2").events <- keyEvent(evdev.KEY_A, 1)
	waitFor(t, "key dispatched", func() bool { n, _ := h.disp.counts(); return n == 1 })

	cancel()
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if !h.opener.source("/dev/input/event2").isClosed() {
		t.Error("device not released on cancel")
	}
}

func TestRun_StaticNoDevices(t *testing.T) {
	t.Run("none known", func(t *testing.T) {
		h := newHarness(t, newFakeDevices(false), nil)
		if err := waitErr(t, h.run(context.Background())); !errors.Is(err, ErrNoDevices) {
			t.Errorf("Run() error = %v, want ErrNoDevices", err)
		}
	})

	t.Run("all rejected", func(t *testing.T) {
		h := newHarness(t, newFakeDevices(false, "/dev/input/event4"), nil)
		h.opener.fail["/dev/input/event4"] = unsupported("/dev/input/event4")
		if err := waitErr(t, h.run(context.Background())); !errors.Is(err, ErrNoDevices) {
			t.Errorf("Run() error = %v, want ErrNoDevices", err)
		}
	})
}

func TestRun_StaticOpenFailure(t *testing.T) {
	h := newHarness(t, newFakeDevices(false, "/dev/input/event1"), nil)
	h.opener.fail["/dev/input/event1"] = &input.Error{Path: "/dev/input/event1", Op: "open", Err: input.ErrPermissionDenied}

	if err := waitErr(t, h.run(context.Background())); !errors.Is(err, input.ErrPermissionDenied) {
		t.Errorf("Run() error = %v, want ErrPermissionDenied", err)
	}
}

func TestRun_RoutesKeyAndOtherEvents(t *testing.T) {
	h := newHarness(t, newFakeDevices(false, "/dev/input/event1"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := h.run(ctx)

	waitFor(t, "capture", func() bool { return h.opener.source("/dev/input/event1") != nil })
	src := h.opener.source("/dev/input/event1")
	src.events <- keyEvent(evdev.KEY_A, 1)
	src.events <- &evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_REPORT}
	src.events <- &evdev.InputEvent{Type: evdev.EV_REL, Code: evdev.REL_X, Value: 3}
	src.events <- keyEvent(evdev.KEY_A, 2)
	src.events <- keyEvent(evdev.KEY_A, 0)

	waitFor(t, "events dispatched", func() bool {
		k, p := h.disp.counts()
		return k == 3 && p == 2
	})

	h.disp.mu.Lock()
	if h.disp.keys[1].Value != keys.Repeat {
		t.Errorf("keys[1].Value = %v, want repeat", h.disp.keys[1].Value)
	}
	if h.disp.passed[0] != evdev.EV_SYN || h.disp.passed[1] != evdev.EV_REL {
		t.Errorf("passed = %v, want [EV_SYN EV_REL]", h.disp.passed)
	}
	h.disp.mu.Unlock()

	if got := h.orch.DeviceName("/dev/input/event1"); got != src.name {
		t.Errorf("DeviceName() = %q, want %q", got, src.name)
	}

	cancel()
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := h.orch.DeviceName("/dev/input/event1"); got != "" {
		t.Errorf("DeviceName() after stop = %q, want empty", got)
	}
}

func TestRun_WatchModeHotPlugAndIsolation(t *testing.T) {
	h := newHarness(t, newFakeDevices(true, "/dev/input/event1"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := h.run(ctx)

	waitFor(t, "initial capture", func() bool { return h.opener.source("/dev/input/event1") != nil })

	h.devs.found <- "/dev/input/event7"
	waitFor(t, "hot-plug capture", func() bool { return h.opener.source("/dev/input/event7") != nil })
	h.opener.source("/dev/input/event7").events <- keyEvent(evdev.KEY_B, 1)
	waitFor(t, "hot-plugged key", func() bool { n, _ := h.disp.counts(); return n == 1 })

	// A failing reader does not stop the others in watch mode.
	h.opener.source("/dev/input/event1").errs <- errors.New("read failed")
	waitFor(t, "failed reader stopped", func() bool { return h.orch.Readers().Active() == 1 })

	select {
	case err := <-errc:
		t.Fatalf("Run() returned early: %v", err)
	default:
	}

	cancel()
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if !h.opener.source("/dev/input/event7").isClosed() {
		t.Error("hot-plugged device not released")
	}
}

func TestRun_WatchModeRecreatedNode(t *testing.T) {
	const p device.Path = "/dev/input/event5"
	h := newHarness(t, newFakeDevices(true, p), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := h.run(ctx)

	waitFor(t, "initial capture", func() bool { return h.opener.opened(p) == 1 })
	old := h.opener.source(p)

	// The node is re-created, twice, before its reader sees the removal.
	h.devs.found <- p
	h.devs.found <- p
	waitFor(t, "discoveries consumed", func() bool { return len(h.devs.found) == 0 })
	if n := h.opener.opened(p); n != 1 {
		t.Fatalf("opens while old reader active = %d, want 1", n)
	}

	old.errs <- errors.New("no such device")
	waitFor(t, "re-created node captured", func() bool { return h.opener.opened(p) == 2 })

	fresh := h.opener.source(p)
	fresh.events <- keyEvent(evdev.KEY_A, 1)
	waitFor(t, "key from re-created node", func() bool { n, _ := h.disp.counts(); return n == 1 })

	cancel()
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if !fresh.isClosed() {
		t.Error("re-created device not released")
	}
	if n := h.opener.opened(p); n != 2 {
		t.Errorf("opens = %d, want 2", n)
	}
}

func TestRun_WatcherFailureKeepsReaders(t *testing.T) {
	h := newHarness(t, newFakeDevices(true, "/dev/input/event1"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := h.run(ctx)

	waitFor(t, "capture", func() bool { return h.opener.source("/dev/input/event1") != nil })
	h.devs.watchErr <- errors.New("inotify queue overflow")

	waitFor(t, "watcher stopped", func() bool {
		w, ok := h.orch.Services().Get("watcher")
		return ok && w.Err() != nil
	})

	h.opener.source("/dev/input/event1").events <- keyEvent(evdev.KEY_C, 1)
	waitFor(t, "key after watcher failure", func() bool { n, _ := h.disp.counts(); return n == 1 })

	cancel()
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
}

func TestRun_PoisonedEngineIsFatal(t *testing.T) {
	poison := fmt.Errorf("dispatch: %w", engine.ErrPoisoned)

	for _, watching := range []bool{false, true} {
		t.Run(fmt.Sprintf("watch=%v", watching), func(t *testing.T) {
			h := newHarness(t, newFakeDevices(watching, "/dev/input/event1", "/dev/input/event2"), nil)
			h.disp.keyErr = poison
			errc := h.run(context.Background())

			waitFor(t, "capture", func() bool {
				return h.opener.source("/dev/input/event1") != nil && h.opener.source("/dev/input/event2") != nil
			})
			h.opener.source("/dev/input/event1").events <- keyEvent(evdev.KEY_A, 1)

			if err := waitErr(t, errc); !errors.Is(err, engine.ErrPoisoned) {
				t.Fatalf("Run() error = %v, want ErrPoisoned", err)
			}
			if !h.opener.source("/dev/input/event2").isClosed() {
				t.Error("other device not released")
			}
		})
	}
}

func TestRun_PoisonedTickIsFatal(t *testing.T) {
	h := newHarness(t, newFakeDevices(true), nil)
	h.disp.tickErr = engine.ErrPoisoned

	if err := waitErr(t, h.run(context.Background())); !errors.Is(err, engine.ErrPoisoned) {
		t.Fatalf("Run() error = %v, want ErrPoisoned", err)
	}
}

func TestRun_TicksTapDance(t *testing.T) {
	h := newHarness(t, newFakeDevices(true), nil)
	h.disp.tickErr = errors.New("emit failed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := h.run(ctx)

	// Non-poison tick errors are logged and ticking continues.
	waitFor(t, "ticks", func() bool { return h.disp.ticks.Load() >= 3 })

	cancel()
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRun_AlreadyRunning(t *testing.T) {
	h := newHarness(t, newFakeDevices(true), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := h.run(ctx)

	waitFor(t, "ticker", func() bool { return h.orch.Services().Active() > 0 })
	if err := h.orch.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}

	cancel()
	waitErr(t, errc) //nolint:errcheck // only checking it returns
}

func TestRun_RecordsSessions(t *testing.T) {
	sessions := newMemSessions()
	export := &recordExport{}
	m := metrics.New()
	ids := []string{"s1", "s2", "s3"}
	var next atomic.Int32

	h := newHarness(t, newFakeDevices(true, "/dev/input/event1", "/dev/input/event2"), func(c *Config) {
		c.Sessions = sessions
		c.SessionWriter = export
		c.Metrics = m
		c.NewID = func() string { return ids[next.Add(1)-1] }
	})
	h.opener.fail["/dev/input/event2"] = unsupported("/dev/input/event2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := h.run(ctx)

	waitFor(t, "capture", func() bool { return h.opener.source("/dev/input/event1") != nil })
	waitFor(t, "rejection recorded", func() bool {
		got, _ := sessions.Recent(ctx, 10)
		return len(got) == 2
	})

	cancel()
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, _ := sessions.Recent(context.Background(), 10)
	want := map[device.Path]device.SessionStatus{
		"/dev/input/event1": device.SessionClosed,
		"/dev/input/event2": device.SessionRejected,
	}
	for _, s := range got {
		if s.Status != want[s.Path] {
			t.Errorf("session %s status = %q, want %q", s.Path, s.Status, want[s.Path])
		}
		if s.EndedAt == nil {
			t.Errorf("session %s has no end time", s.Path)
		}
	}

	exported := export.all()
	sort.Strings(exported)
	wantExport := []string{
		"/dev/input/event1=active",
		"/dev/input/event1=closed",
		"/dev/input/event2=rejected",
	}
	if fmt.Sprint(exported) != fmt.Sprint(wantExport) {
		t.Errorf("exported = %v, want %v", exported, wantExport)
	}
}

func TestRun_Notifications(t *testing.T) {
	sink := &recordSink{}
	n := NewNotifier(16, nil, sink)

	h := newHarness(t, newFakeDevices(false, "/dev/input/event1", "/dev/input/event2"), func(c *Config) {
		c.Notifier = n
	})
	h.opener.fail["/dev/input/event2"] = unsupported("/dev/input/event2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := h.run(ctx)

	waitFor(t, "capture", func() bool { return h.opener.source("/dev/input/event1") != nil })
	waitFor(t, "notifications", func() bool { return len(sink.deviceKinds()) == 2 })

	cancel()
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	kinds := sink.deviceKinds()
	sort.Strings(kinds)
	want := []string{
		"/dev/input/event1=captured",
		"/dev/input/event1=released",
		"/dev/input/event2=rejected",
	}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Errorf("device notifications = %v, want %v", kinds, want)
	}
}
