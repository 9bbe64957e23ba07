package importer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	importsTotal    *prometheus.CounterVec
	rowsTotal       prometheus.Counter
	createdTotal    *prometheus.CounterVec
	importDurations *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		importsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schoolsaas",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Total number of import runs.",
		}, []string{"result"}),
		rowsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "schoolsaas",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Total number of rows committed by successful import runs.",
		}),
		createdTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schoolsaas",
			Subsystem: "import",
			Name:      "entities_created_total",
			Help:      "Total number of entities created by successful import runs.",
		}, []string{"entity"}),
		importDurations: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "schoolsaas",
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Duration of import runs.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"result"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

func (m *metrics) observe(res Result, result string, seconds float64) {
	m.importsTotal.WithLabelValues(result).Inc()
	m.importDurations.WithLabelValues(result).Observe(seconds)
	if result != resultSuccess {
		return
	}
	m.rowsTotal.Add(float64(res.Rows))
	m.createdTotal.WithLabelValues(EntitySchool).Add(float64(res.SchoolsCreated))
	m.createdTotal.WithLabelValues(EntityClass).Add(float64(res.ClassesCreated))
	m.createdTotal.WithLabelValues(EntitySubject).Add(float64(res.SubjectsCreated))
	m.createdTotal.WithLabelValues(EntityTeacher).Add(float64(res.TeachersCreated))
	m.createdTotal.WithLabelValues(EntityStudent).Add(float64(res.StudentsCreated))
	m.createdTotal.WithLabelValues("score").Add(float64(res.ScoresCreated))
}
