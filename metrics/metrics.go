package metrics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "bridge"
)

var (
	Debug                bool = false
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	discoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "discoveries_total",
		Help:      "Count of completed discovery passes",
	}, []string{
		"workspace",
		"status",
	})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "outcomes_total",
		Help:      "Count of per-test outcomes processed",
	}, []string{
		"workspace",
		"outcome",
	})

	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "index_lookups_total",
		Help:      "Count of index lookups by resolution tier",
	}, []string{
		"tier",
	})

	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "frames_total",
		Help:      "Count of framed messages moved over the pipe",
	}, []string{
		"direction",
	})

	staleEntriesSwept = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "stale_entries_swept_total",
		Help:      "Count of stale index entries removed by sweeps",
	}, []string{
		"workspace",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordDiscovery(workspace string, status string) {
	if Debug {
		log.Debug("metric inc",
			"m", "discoveries_total",
			"workspace", workspace,
			"status", status)
	}
	discoveriesTotal.WithLabelValues(workspace, status).Inc()
}

func RecordOutcome(workspace string, outcome string) {
	outcomesTotal.WithLabelValues(workspace, outcome).Inc()
}

func RecordLookupTier(tier string) {
	lookupsTotal.WithLabelValues(tier).Inc()
}

func RecordFrame(direction string) {
	framesTotal.WithLabelValues(direction).Inc()
}

func RecordStaleSweep(workspace string, removed int) {
	staleEntriesSwept.WithLabelValues(workspace).Add(float64(removed))
}
