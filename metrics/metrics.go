package metrics

import (
	"errors"
	"net/http"

	"github.com/CorrelAid/registration_uploader/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "registration"

type Metrics struct {
	Registry      *prometheus.Registry
	Uploads       *prometheus.CounterVec
	Registrations *prometheus.CounterVec
	Rejections    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Profile picture uploads by result.",
		}, []string{"result"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Registration submissions by result.",
		}, []string{"result"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Client-side rejections by rule.",
		}, []string{"rule"}),
	}
	m.Registry.MustRegister(
		m.Uploads,
		m.Registrations,
		m.Rejections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveUpload(err error) {
	m.Uploads.WithLabelValues(m.result(err)).Inc()
}

// ObserveSubmit records a submit attempt. submitted is false both for
// skipped attempts and failures.
func (m *Metrics) ObserveSubmit(submitted bool, err error) {
	if err == nil && !submitted {
		m.Registrations.WithLabelValues("skipped").Inc()
		return
	}
	m.Registrations.WithLabelValues(m.result(err)).Inc()
}

func (m *Metrics) result(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, models.ErrBusy) {
		return "busy"
	}
	var fe *models.FormError
	if errors.As(err, &fe) && fe.Rule != "" {
		m.Rejections.WithLabelValues(fe.Rule).Inc()
		return "rejected"
	}
	return "failed"
}
