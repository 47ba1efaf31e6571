package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics 서비스 Prometheus 지표
type Metrics struct {
	PoolsCreated    prometheus.Counter
	PoolsDeleted    prometheus.Counter
	CanvasSaves     *prometheus.CounterVec // result: ok, conflict, error
	CanvasReads     *prometheus.CounterVec // source: db, cache
	FilesUploaded   prometheus.Counter
	FilesDeleted    prometheus.Counter
	WSConnections   prometheus.Gauge
	EventsPublished *prometheus.CounterVec
}

// Get 전역 지표 (한 번만 등록)
func Get() *Metrics {
	once.Do(func() {
		global = &Metrics{
			PoolsCreated: promauto.NewCounter(prometheus.CounterOpts{
				Name: "studypool_pools_created_total",
				Help: "Total number of pools created",
			}),
			PoolsDeleted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "studypool_pools_deleted_total",
				Help: "Total number of pools deleted",
			}),
			CanvasSaves: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "studypool_canvas_saves_total",
				Help: "Canvas save requests by result",
			}, []string{"result"}),
			CanvasReads: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "studypool_canvas_reads_total",
				Help: "Canvas reads by source",
			}, []string{"source"}),
			FilesUploaded: promauto.NewCounter(prometheus.CounterOpts{
				Name: "studypool_files_uploaded_total",
				Help: "Total number of confirmed file uploads",
			}),
			FilesDeleted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "studypool_files_deleted_total",
				Help: "Total number of deleted files",
			}),
			WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "studypool_ws_connections",
				Help: "Open pool event WebSocket connections",
			}),
			EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "studypool_pool_events_published_total",
				Help: "Pool events published by type",
			}, []string{"type"}),
		}
	})
	return global
}
