package metricsvc

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hamzaf287/focus-app/core/focus"
)

const namespace = "focus"

var (
	metricsOnce sync.Once

	runsActive      prometheus.Gauge
	runsStarted     prometheus.Counter
	framesTotal     *prometheus.CounterVec
	tabSwitches     prometheus.Counter
	eventsDropped   *prometheus.CounterVec
	reportsTotal    *prometheus.CounterVec
	clockSkews      prometheus.Counter
	focusPercentage prometheus.Histogram
)

func ensureMetrics() {
	metricsOnce.Do(func() {
		runsActive = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Tracking runs currently live.",
		})
		runsStarted = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Tracking runs started.",
		})
		framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames recorded, by label.",
		}, []string{"label"})
		tabSwitches = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tab_switches_total",
			Help:      "Tab switches recorded.",
		})
		eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events received outside a live run, by kind.",
		}, []string{"kind"})
		reportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Reports built, by grade.",
		}, []string{"grade"})
		clockSkews = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_clock_skew_total",
			Help:      "Reports whose end time preceded their start time.",
		})
		focusPercentage = promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_focus_percentage",
			Help:      "Focus percentage of the built reports.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		})
	})
}

// Recorder exports the tracking activity as prometheus metrics.
type Recorder struct{}

var _ focus.Observer = (*Recorder)(nil)

func NewRecorder() *Recorder {
	ensureMetrics()
	return &Recorder{}
}

func (Recorder) RunStarted() {
	runsStarted.Inc()
	runsActive.Inc()
}

func (Recorder) RunStopped(rep focus.Report) {
	runsActive.Dec()
	reportsTotal.WithLabelValues(rep.Grade).Inc()
	focusPercentage.Observe(float64(rep.FocusPercentage))
	if rep.ClockSkew {
		clockSkews.Inc()
	}
}

func (Recorder) FrameRecorded(label focus.Label) {
	framesTotal.WithLabelValues(string(label)).Inc()
}

func (Recorder) TabSwitchRecorded() {
	tabSwitches.Inc()
}

func (Recorder) EventDropped(kind string) {
	eventsDropped.WithLabelValues(kind).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	ensureMetrics()
	return promhttp.Handler()
}
