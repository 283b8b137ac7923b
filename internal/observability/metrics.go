package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatclient_http_requests_total",
			Help: "Total number of local API requests processed by the chat client.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatclient_http_request_duration_seconds",
			Help:    "Local API request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatclient_sends_total",
			Help: "Total number of optimistic sends by outcome.",
		},
		[]string{"result"},
	)
	sendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatclient_send_duration_seconds",
			Help:    "Time from optimistic append to server confirmation.",
			Buckets: prometheus.DefBuckets,
		},
	)
	reconciledEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatclient_reconciled_events_total",
			Help: "Total number of real-time events folded into the store.",
		},
		[]string{"event"},
	)
	bufferedEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatclient_buffered_events",
			Help: "Events held for messages not yet present in the store.",
		},
	)
	droppedEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatclient_dropped_events_total",
			Help: "Total number of real-time events dropped as stale or malformed.",
		},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatclient_ws_active_connections",
			Help: "Number of active websocket connections to the backend.",
		},
	)
	wsDialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatclient_ws_dials_total",
			Help: "Total number of websocket dial attempts.",
		},
		[]string{"result"},
	)
	amqpConsumeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatclient_amqp_consume_errors_total",
			Help: "Total number of AMQP consume errors.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatclient_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	openSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatclient_open_sessions",
			Help: "Number of open conversation sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		sendsTotal,
		sendDuration,
		reconciledEventsTotal,
		bufferedEvents,
		droppedEventsTotal,
		wsActiveConnections,
		wsDialsTotal,
		amqpConsumeErrorsTotal,
		amqpPublishErrorsTotal,
		openSessions,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncSend(result string) {
	sendsTotal.WithLabelValues(result).Inc()
}

func ObserveSendDuration(d time.Duration) {
	sendDuration.Observe(d.Seconds())
}

func IncReconciledEvent(event string) {
	reconciledEventsTotal.WithLabelValues(event).Inc()
}

func SetBufferedEvents(n int) {
	bufferedEvents.Set(float64(n))
}

func IncDroppedEvent() {
	droppedEventsTotal.Inc()
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSDial(result string) {
	wsDialsTotal.WithLabelValues(result).Inc()
}

func IncAMQPConsumeError() {
	amqpConsumeErrorsTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func IncOpenSessions() {
	openSessions.Inc()
}

func DecOpenSessions() {
	openSessions.Dec()
}
