package collector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
  DefaultInterval = 10 * time.Second
  DefaultResponseTimeout = 5 * time.Second
  DefaultReconnectDelay = 2 * time.Second
  DefaultMaxReconnectDelay = 5 * time.Minute
)

type PollOptions struct {
  // Pause between the end of a poll cycle and the start of the next one.
  Interval time.Duration
  // How long to wait for both fragments of a response.
  ResponseTimeout time.Duration
  // Base delay before reopening a failed transport. Zero disables reconnection.
  ReconnectDelay time.Duration
  MaxReconnectDelay time.Duration
}

func (o PollOptions) withDefaults() PollOptions {
  if o.Interval <= 0 {
    o.Interval = DefaultInterval
  }

  if o.ResponseTimeout <= 0 {
    o.ResponseTimeout = DefaultResponseTimeout
  }

  if o.MaxReconnectDelay <= 0 {
    o.MaxReconnectDelay = DefaultMaxReconnectDelay
  }

  return o
}

var (
  framesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "jbd_exporter_frames_total",
    Help: "Frames decoded, by device and frame type.",
  }, []string{"name", "type"})
  unrecognizedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "jbd_exporter_unrecognized_chunks_total",
    Help: "Chunks not matching any frame template.",
  }, []string{"name"})
  anomaliesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "jbd_exporter_protocol_anomalies_total",
    Help: "Out of order cell voltage blocks.",
  }, []string{"name"})
  timeoutsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "jbd_exporter_response_timeouts_total",
    Help: "Commands whose response did not complete in time.",
  }, []string{"name", "command"})
  transportFailuresCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "jbd_exporter_transport_failures_total",
    Help: "Sessions terminated by a transport failure.",
  }, []string{"name"})
)

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    framesCounter,
    unrecognizedCounter,
    anomaliesCounter,
    timeoutsCounter,
    transportFailuresCounter,
  )
}
