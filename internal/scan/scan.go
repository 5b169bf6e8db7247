package scan

import (
	"encoding/json"
	"errors"
	"sync/atomic"
)

// GuestName is the display name used when a scan carries only a DNI.
const GuestName = "Invitado"

// ErrMalformedPayload means the decoded text is neither the expected
// JSON shape nor a bare 8-digit DNI.
var ErrMalformedPayload = errors.New("QR not recognized")

// Identity is the person a scan or manual entry resolves to.
type Identity struct {
	DNI      string
	FullName string
}

// ValidDNI reports whether s is an 8-digit national id.
func ValidDNI(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Decode parses the text produced by the barcode pipeline. Accepted
// payloads are a JSON object {dni, fullName} or a bare 8-digit string;
// anything else is ErrMalformedPayload.
func Decode(payload string) (Identity, error) {
	var body struct {
		DNI      string `json:"dni"`
		FullName string `json:"fullName"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err == nil && ValidDNI(body.DNI) {
		name := body.FullName
		if name == "" {
			name = GuestName
		}
		return Identity{DNI: body.DNI, FullName: name}, nil
	}
	if ValidDNI(payload) {
		return Identity{DNI: payload, FullName: GuestName}, nil
	}
	return Identity{}, ErrMalformedPayload
}

// Gate is a single-in-flight guard for the scan stream. The decoder
// emits the same code continuously while it is in view, so the caller
// must drop new values until the previous one has been resolved, then
// re-arm.
type Gate struct {
	busy atomic.Bool
}

// TryAcquire claims the gate. Returns false while a previous scan is
// still being processed.
func (g *Gate) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release re-arms the gate.
func (g *Gate) Release() {
	g.busy.Store(false)
}
