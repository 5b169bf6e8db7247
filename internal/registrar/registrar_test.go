package registrar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/internal/edutec"
	"checkin/internal/queue"
	"checkin/internal/scan"
)

type fakeStatus struct {
	online atomic.Bool
}

func (f *fakeStatus) Online() bool { return f.online.Load() }

func newRegistrar(t *testing.T, handler http.Handler, online bool) (*Registrar, *fakeStatus, *queue.Pending) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	status := &fakeStatus{}
	status.online.Store(online)
	pending := queue.NewPending()
	return New(edutec.New(srv.URL, time.Second), status, pending), status, pending
}

func registerResponse(w http.ResponseWriter, message, status string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message, "status": status})
}

func TestOfflineRegisterSavesToBuffer(t *testing.T) {
	var hits atomic.Int32
	reg, _, pending := newRegistrar(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}), false)

	out := reg.Register(context.Background(), scan.Identity{DNI: "12345678", FullName: "Ana Lima"}, MethodQR)

	assert.Equal(t, Success, out.Kind)
	assert.Equal(t, SavedOffline, out.Message)
	assert.Equal(t, 1, pending.Len())
	assert.Zero(t, hits.Load(), "offline attempts must not hit the network")

	// Every further attempt buffers one more record.
	reg.Register(context.Background(), scan.Identity{DNI: "87654321", FullName: "Jose Ruiz"}, MethodManual)
	assert.Equal(t, 2, pending.Len())
}

func TestOnlineReentryIsDuplicate(t *testing.T) {
	tests := []struct {
		name   string
		status string
	}{
		{name: "spanish uppercase", status: "REINGRESO"},
		{name: "spanish lowercase", status: "reingreso"},
		{name: "english tag", status: "reentry"},
		{name: "english mixed case", status: "ReEntry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _, pending := newRegistrar(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				registerResponse(w, "YA REGISTRADO", tt.status)
			}), true)

			out := reg.Register(context.Background(), scan.Identity{DNI: "12345678", FullName: "Ana"}, MethodQR)

			assert.Equal(t, DuplicateEntry, out.Kind)
			assert.Equal(t, "YA REGISTRADO", out.Message, "duplicate must carry the server message")
			assert.Zero(t, pending.Len(), "a duplicate answer must not be queued")
		})
	}
}

func TestOnlineSuccessCarriesServerMessage(t *testing.T) {
	reg, _, pending := newRegistrar(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		registerResponse(w, "WELCOME", "ok")
	}), true)

	out := reg.Register(context.Background(), scan.Identity{DNI: "11111111", FullName: "A"}, MethodManual)

	assert.Equal(t, Success, out.Kind)
	assert.Equal(t, "WELCOME", out.Message)
	assert.Zero(t, pending.Len())
}

func TestNotFound(t *testing.T) {
	reg, _, pending := newRegistrar(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": 404, "error": "Not Found", "message": "no existe", "path": r.URL.Path})
	}), true)

	out := reg.Register(context.Background(), scan.Identity{DNI: "99999999", FullName: "X"}, MethodManual)

	assert.Equal(t, NotFound, out.Kind)
	assert.Equal(t, "server: identity not registered", out.Message)
	assert.Zero(t, pending.Len())
}

func TestServerRejectionUsesStructuredMessage(t *testing.T) {
	reg, _, _ := newRegistrar(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": 400, "error": "Bad Request", "message": "DNI inválido", "path": r.URL.Path})
	}), true)

	out := reg.Register(context.Background(), scan.Identity{DNI: "12345678", FullName: "A"}, MethodManual)

	assert.Equal(t, ServerError, out.Kind)
	assert.Equal(t, "DNI inválido", out.Message)
}

func TestServerRejectionUnparseableFallsBackToGeneric(t *testing.T) {
	reg, _, _ := newRegistrar(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("nginx error page"))
	}), true)

	out := reg.Register(context.Background(), scan.Identity{DNI: "12345678", FullName: "A"}, MethodManual)

	assert.Equal(t, ServerError, out.Kind)
	assert.Equal(t, "server error (502)", out.Message)
}

func TestTransportFailureIsTerminalNotQueued(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	status := &fakeStatus{}
	status.online.Store(true)
	pending := queue.NewPending()
	reg := New(edutec.New(url, time.Second), status, pending)

	out := reg.Register(context.Background(), scan.Identity{DNI: "12345678", FullName: "A"}, MethodQR)

	assert.Equal(t, ServerError, out.Kind)
	assert.NotEmpty(t, out.Message)
	assert.Zero(t, pending.Len(), "a failed online attempt is terminal, only offline attempts buffer")
}

func TestDrainResendsOldestFirstThroughTheRightEndpoint(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		registerResponse(w, "BIENVENIDO", "INGRESO")
	})

	reg, status, pending := newRegistrar(t, handler, false)
	reg.Register(context.Background(), scan.Identity{DNI: "11111111", FullName: "Ana"}, MethodQR)
	reg.Register(context.Background(), scan.Identity{DNI: "22222222", FullName: "Jose"}, MethodManual)
	require.Equal(t, 2, pending.Len())

	status.online.Store(true)
	sent := reg.Drain(context.Background())

	assert.Equal(t, 2, sent)
	assert.Zero(t, pending.Len())
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"/register", "/register-by-dni"}, paths, "oldest first, qr records replay through /register")
}

func TestFailedResendStaysQueued(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		registerResponse(w, "BIENVENIDO", "INGRESO")
	})

	reg, status, pending := newRegistrar(t, handler, false)
	reg.Register(context.Background(), scan.Identity{DNI: "11111111", FullName: "Ana"}, MethodQR)
	status.online.Store(true)

	assert.Zero(t, reg.Drain(context.Background()))
	assert.Equal(t, 1, pending.Len(), "delivery failure keeps the record for the next edge")

	fail.Store(false)
	assert.Equal(t, 1, reg.Drain(context.Background()))
	assert.Zero(t, pending.Len())
}

func TestRecordEnqueuedDuringDrainSurvives(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		registerResponse(w, "BIENVENIDO", "INGRESO")
	})

	reg, status, pending := newRegistrar(t, handler, false)
	reg.Register(context.Background(), scan.Identity{DNI: "11111111", FullName: "Ana"}, MethodQR)
	status.online.Store(true)

	done := make(chan int)
	go func() { done <- reg.Drain(context.Background()) }()

	<-entered
	// A new attempt lands while the drain is mid-flight.
	late := queue.NewRecord("22222222", "Jose", string(MethodManual))
	pending.Enqueue(late)
	close(release)

	assert.Equal(t, 1, <-done, "only the snapshotted record is sent")
	snap := pending.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, late.ID, snap[0].ID, "the mid-drain record waits for the next edge")
}

func TestConcurrentDrainIsRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		registerResponse(w, "BIENVENIDO", "INGRESO")
	})

	reg, status, pending := newRegistrar(t, handler, false)
	reg.Register(context.Background(), scan.Identity{DNI: "11111111", FullName: "Ana"}, MethodQR)
	status.online.Store(true)

	done := make(chan int)
	go func() { done <- reg.Drain(context.Background()) }()
	<-entered

	assert.Zero(t, reg.Drain(context.Background()), "at most one drain runs per queue")
	close(release)
	assert.Equal(t, 1, <-done)
	assert.Zero(t, pending.Len())
}

func TestWatchDrainsOncePerOnlineEdge(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		registerResponse(w, "BIENVENIDO", "INGRESO")
	})

	reg, status, pending := newRegistrar(t, handler, false)
	reg.Register(context.Background(), scan.Identity{DNI: "11111111", FullName: "Ana"}, MethodQR)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	edges := make(chan bool)
	go reg.Watch(ctx, edges)

	status.online.Store(true)
	edges <- true

	require.Eventually(t, func() bool { return pending.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())

	// A later edge with an empty buffer sends nothing.
	edges <- false
	edges <- true
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())
}

// Mirrors the end-to-end flow: a first manual check-in is welcomed, an
// immediate second one for the same DNI comes back as a re-entry.
func TestManualCheckinThenReentry(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			registerResponse(w, "WELCOME", "ok")
			return
		}
		registerResponse(w, "YA REGISTRADO", "REINGRESO")
	})

	reg, _, _ := newRegistrar(t, handler, true)
	id := scan.Identity{DNI: "11111111", FullName: "A"}

	first := reg.Register(context.Background(), id, MethodManual)
	assert.Equal(t, Success, first.Kind)
	assert.Equal(t, "WELCOME", first.Message)

	second := reg.Register(context.Background(), id, MethodManual)
	assert.Equal(t, DuplicateEntry, second.Kind)
	assert.Equal(t, "YA REGISTRADO", second.Message)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "duplicate", DuplicateEntry.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "server_error", ServerError.String())
}
