package bridge

import (
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

var (
	connectRequests  = metrics.NewCounter("wifibridge_connect_requests_total")
	connectSucceeded = metrics.NewCounter(`wifibridge_connect_results_total{result="success"}`)
	connectFailed    = metrics.NewCounter(`wifibridge_connect_results_total{result="failure"}`)
	stateChanges     = metrics.NewCounter("wifibridge_state_changes_total")
	pushesSent       = metrics.NewCounter("wifibridge_status_pushes_total")
	pushesDropped    = metrics.NewCounter("wifibridge_status_pushes_dropped_total")

	subscriberCount atomic.Int64
	_               = metrics.NewGauge("wifibridge_subscribers", func() float64 {
		return float64(subscriberCount.Load())
	})
)
