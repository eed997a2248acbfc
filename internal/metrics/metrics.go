// Package metrics exposes scan outcome counters next to the default
// process metrics served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan outcomes.
const (
	OutcomeRecorded  = "recorded"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeDenied    = "denied"
)

// Undo results.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
)

var scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "absensi_scans_total",
	Help: "Scan attempts by outcome.",
}, []string{"outcome"})

var undosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "absensi_undos_total",
	Help: "Undo attempts by result.",
}, []string{"result"})

// CountScan records a scan outcome.
func CountScan(outcome string) {
	scansTotal.WithLabelValues(outcome).Inc()
}

// CountUndo records an undo result.
func CountUndo(result string) {
	undosTotal.WithLabelValues(result).Inc()
}
