package production

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/comalice/pimulator/realtime"
)

const (
	namespace = "pimulator"
	subsystem = "runtime"
)

// Metrics records runtime behavior in Prometheus. It implements
// realtime.Observer; SnapshotEvicted can be passed to WithEvictHook.
type Metrics struct {
	ticks          prometheus.Counter
	tickDuration   prometheus.Histogram
	overruns       prometheus.Counter
	faults         *prometheus.CounterVec
	runningActions prometheus.Gauge
	evicted        prometheus.Counter
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ticks_total",
			Help:      "Total number of completed ticks",
		}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent executing a tick in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		overruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_overruns_total",
			Help:      "Total number of ticks that took longer than the tick period",
		}),
		faults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "faults_total",
			Help:      "Total number of runtime faults by kind",
		}, []string{"kind"}),
		runningActions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "running_actions",
			Help:      "Number of actions in the running set after the last tick",
		}),
		evicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "snapshots_evicted_total",
			Help:      "Total number of snapshots dropped unread from the state buffer",
		}),
	}
}

func (m *Metrics) ObserveTick(tc realtime.TickContext, elapsed time.Duration, overrun bool, actions int) {
	m.ticks.Inc()
	m.tickDuration.Observe(elapsed.Seconds())
	if overrun {
		m.overruns.Inc()
	}
	m.runningActions.Set(float64(actions))
}

func (m *Metrics) ObserveFault(f *realtime.Fault) {
	m.faults.WithLabelValues(f.Kind.String()).Inc()
}

func (m *Metrics) SnapshotEvicted() { m.evicted.Inc() }
