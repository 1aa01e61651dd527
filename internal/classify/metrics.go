package classify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// classifiedLines counts every classified line by stream and level.
	classifiedLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n2nmaid_classifier_lines_total",
			Help: "Edge output lines classified, by stream and level",
		},
		[]string{"stream", "level"},
	)

	// signals counts emitted status signals by kind and reason.
	signals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n2nmaid_classifier_signals_total",
			Help: "Status signals derived from edge output, by kind and reason",
		},
		[]string{"kind", "reason"},
	)

	// unrecognizedFailures tracks failure-looking lines that matched no marker.
	unrecognizedFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "n2nmaid_classifier_unrecognized_failure_lines_total",
			Help: "Lines that read like failures but matched no known marker",
		},
	)
)

func init() {
	// Export a zero series for every failure class up front.
	for _, reason := range Reasons() {
		signals.WithLabelValues(SignalError.String(), reason)
	}
}

// Observe records res in the classifier metrics. It is kept out of Classify
// so classification itself stays free of side effects.
func Observe(stream Stream, res Result) {
	classifiedLines.WithLabelValues(stream.String(), res.Record.Level.String()).Inc()
	if res.Signal != nil {
		signals.WithLabelValues(res.Signal.Kind.String(), res.Signal.Reason).Inc()
	}
	if res.Unrecognized {
		unrecognizedFailures.Inc()
	}
}
