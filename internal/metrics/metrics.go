package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AttendanceRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "markaz", Name: "attendance_recorded_total", Help: "Persisted attendance records",
	})
	AttendanceRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "markaz", Name: "attendance_rejected_total", Help: "Attendance submissions rejected by validation",
	})
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "markaz", Name: "notifications_sent_total", Help: "Notifications delivered per channel",
	}, []string{"channel"})
	NotificationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "markaz", Name: "notification_errors_total", Help: "Notification delivery failures per channel",
	}, []string{"channel"})
	HandlerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "markaz", Name: "handler_errors_total", Help: "Handler errors",
	})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "markaz", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(AttendanceRecorded, AttendanceRejected, NotificationsSent, NotificationErrors, HandlerErrors, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }
