package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckinsTotal counts registration attempts by outcome and method.
	CheckinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "station_checkins_total",
		Help: "Registration attempts by outcome and entry method.",
	}, []string{"outcome", "method"})

	// ScansRejectedTotal counts decoded payloads that were not recognized.
	ScansRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "station_scans_rejected_total",
		Help: "Scan payloads rejected as malformed.",
	})

	// PendingDepth is the current size of the offline buffer.
	PendingDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "station_pending_records",
		Help: "Attendance records buffered while offline.",
	})

	// DrainsTotal counts offline->online drains.
	DrainsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "station_drains_total",
		Help: "Pending queue drains triggered by reconnects.",
	})

	// DrainedRecordsTotal counts records delivered by drains.
	DrainedRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "station_drained_records_total",
		Help: "Buffered records that reached the server during a drain.",
	})

	// Online mirrors the connectivity signal (1 online, 0 offline).
	Online = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "station_online",
		Help: "Connectivity signal after reachability probing.",
	})
)
