package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "speedai"

// Registry holds every SpeedAI collector plus the Go and process collectors.
var Registry = prometheus.NewRegistry()

var (
	HTTPRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	CampaignSendsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaign_sends_total",
			Help:      "Marketing sends by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	TrackingEventsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_events_total",
			Help:      "Marketing open and click tracking hits",
		},
		[]string{"event"},
	)

	ReviewSyncTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_sync_total",
			Help:      "Review source sync runs by platform and outcome",
		},
		[]string{"platform", "status"},
	)

	NoshowChargesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "noshow_charges_total",
			Help:      "No-show charge attempts by outcome",
		},
		[]string{"status"},
	)

	JobsProcessedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Background jobs by type and outcome",
		},
		[]string{"type", "status"},
	)
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Middleware records request count and duration per route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		path := c.Route().Path
		if path == "" {
			path = "unmatched"
		}
		code := strconv.Itoa(status)
		HTTPRequestsTotal.WithLabelValues(c.Method(), path, code).Inc()
		HTTPRequestDuration.WithLabelValues(c.Method(), path, code).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler exposes the registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}

func RecordCampaignSend(channel, status string) {
	CampaignSendsTotal.WithLabelValues(channel, status).Inc()
}

func RecordTrackingEvent(event string) {
	TrackingEventsTotal.WithLabelValues(event).Inc()
}

func RecordReviewSync(platform, status string) {
	ReviewSyncTotal.WithLabelValues(platform, status).Inc()
}

func RecordNoshowCharge(status string) {
	NoshowChargesTotal.WithLabelValues(status).Inc()
}

func RecordJob(jobType, status string) {
	JobsProcessedTotal.WithLabelValues(jobType, status).Inc()
}
