package registrar

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync/atomic"

	"checkin/internal/edutec"
	"checkin/internal/metrics"
	"checkin/internal/queue"
	"checkin/internal/scan"
)

// Method tags how an attendance attempt was entered.
type Method string

const (
	MethodQR        Method = "qr"
	MethodManual    Method = "manual"
	MethodSearchFix Method = "search-correction"
)

// Kind classifies the result of a registration attempt.
type Kind int

const (
	Success Kind = iota
	DuplicateEntry
	NotFound
	ServerError
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case DuplicateEntry:
		return "duplicate"
	case NotFound:
		return "not_found"
	case ServerError:
		return "server_error"
	}
	return "unknown"
}

// Outcome is what the UI layer renders: a kind and a display message.
type Outcome struct {
	Kind    Kind
	Message string
}

// SavedOffline is returned when an attempt is accepted locally while
// offline. It is a soft success: accepted but unconfirmed.
const SavedOffline = "SAVED OFFLINE"

// Status is the connectivity view the registrar consults per attempt.
type Status interface {
	Online() bool
}

// Registrar decides, per attempt, between an immediate remote call and
// the offline buffer, and classifies server responses into Outcomes.
// Re-entry detection is server-authoritative: the registrar never
// tracks locally which DNIs it has seen.
type Registrar struct {
	api      *edutec.Client
	status   Status
	pending  *queue.Pending
	draining atomic.Bool
}

// New creates a registrar.
func New(api *edutec.Client, status Status, pending *queue.Pending) *Registrar {
	return &Registrar{api: api, status: status, pending: pending}
}

// Register records one attendance attempt. It never returns an error:
// every failure path terminates in a classified Outcome. Concurrent
// calls for different identities are independent.
func (r *Registrar) Register(ctx context.Context, id scan.Identity, method Method) Outcome {
	if !r.status.Online() {
		rec := queue.NewRecord(id.DNI, id.FullName, string(method))
		r.pending.Enqueue(rec)
		metrics.PendingDepth.Set(float64(r.pending.Len()))
		metrics.CheckinsTotal.WithLabelValues("saved_offline", string(method)).Inc()
		return Outcome{Kind: Success, Message: SavedOffline}
	}

	out := r.send(ctx, id.DNI, id.FullName, method)
	metrics.CheckinsTotal.WithLabelValues(out.Kind.String(), string(method)).Inc()
	return out
}

// send issues the remote call and maps the response. A transport-level
// failure while believed online is terminal, not queued: the device had
// no advance knowledge of being disconnected, so the caller gets a hard
// error instead of a silent buffer.
func (r *Registrar) send(ctx context.Context, dni, fullName string, method Method) Outcome {
	var res *edutec.RegisterResult
	var err error
	if method == MethodQR {
		res, err = r.api.Register(ctx, dni, fullName)
	} else {
		res, err = r.api.RegisterByDNI(ctx, dni)
	}
	if err == nil {
		if isReentry(res.Status) {
			return Outcome{Kind: DuplicateEntry, Message: res.Message}
		}
		return Outcome{Kind: Success, Message: res.Message}
	}

	var apiErr *edutec.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusNotFound {
			return Outcome{Kind: NotFound, Message: "server: identity not registered"}
		}
		return Outcome{Kind: ServerError, Message: apiErr.Message}
	}
	return Outcome{Kind: ServerError, Message: err.Error()}
}

func isReentry(status string) bool {
	return strings.EqualFold(status, "REINGRESO") || strings.EqualFold(status, "reentry")
}

// Watch consumes connectivity transitions and drains the buffer once
// per offline->online edge. The monitor suppresses duplicate values, so
// every true received here is a real edge.
func (r *Registrar) Watch(ctx context.Context, transitions <-chan bool) {
	for {
		select {
		case online, ok := <-transitions:
			if !ok {
				return
			}
			if online {
				if sent := r.Drain(ctx); sent > 0 {
					log.Printf("drained %d buffered check-in(s)", sent)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// Drain resends buffered records oldest first, at most one drain at a
// time per queue. Only the snapshotted records are eligible for
// removal; anything enqueued mid-drain waits for the next edge. A
// record leaves the buffer when the server gives a terminal answer
// (success, duplicate or not-found); delivery failures keep it queued.
func (r *Registrar) Drain(ctx context.Context) int {
	if !r.draining.CompareAndSwap(false, true) {
		return 0
	}
	defer r.draining.Store(false)

	snapshot := r.pending.Snapshot()
	if len(snapshot) == 0 {
		return 0
	}
	metrics.DrainsTotal.Inc()

	sent := 0
	for _, rec := range snapshot {
		out := r.send(ctx, rec.DNI, rec.FullName, Method(rec.Method))
		if out.Kind == ServerError {
			log.Printf("resend for %s failed, keeping queued: %s", rec.DNI, out.Message)
			continue
		}
		r.pending.Remove(rec.ID)
		sent++
	}
	metrics.DrainedRecordsTotal.Add(float64(sent))
	metrics.PendingDepth.Set(float64(r.pending.Len()))
	return sent
}
