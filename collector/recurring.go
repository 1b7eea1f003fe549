package collector

import (
	"context"
	"sync"
	"time"

	"github.com/robertof/go-jbd-exporter/collector/model"
	"github.com/robertof/go-jbd-exporter/device"
	"github.com/robertof/go-jbd-exporter/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Recurring runs one Poller per device and keeps the latest Reading of each.
type Recurring struct {
  // Called from the consumer goroutine for every record, after the reading is updated.
  OnRecord func(ctx context.Context, r model.DeviceRecord)

  env device.Env
  devices []device.Device

  readings map[device.Device]device.Reading
  mu sync.Mutex

  // collector has been Start()ed
  started bool
}

func NewRecurring(env device.Env, devices []device.Device) *Recurring {
  return &Recurring{
    env: env,
    devices: devices,
    readings: make(map[device.Device]device.Reading, len(devices)),
  }
}

func (s *Recurring) Update(r model.DeviceRecord) {
  s.mu.Lock()
  defer s.mu.Unlock()

  reading := s.readings[r.Device]
  reading.Apply(r.Record, r.At)
  s.readings[r.Device] = reading
}

// Latest returns a snapshot of the readings collected so far and the time of the most
// recent update. Devices which never answered are absent.
func (s *Recurring) Latest() (map[device.Device]device.Reading, time.Time) {
  s.mu.Lock()
  defer s.mu.Unlock()

  out := make(map[device.Device]device.Reading, len(s.readings))
  var latest time.Time

  for dev, reading := range s.readings {
    if reading.UpdatedAt.IsZero() {
      continue
    }

    out[dev] = reading

    if reading.UpdatedAt.After(latest) {
      latest = reading.UpdatedAt
    }
  }

  return out, latest
}

// Start blocks until ctx is canceled or a poller gives up, in which case the remaining
// pollers are stopped and the error is returned.
func (s *Recurring) Start(ctx context.Context, opts PollOptions) error {
  if s.started {
    panic("attempted to call collector.Recurring.Start() twice")
  }

  s.started = true
  opts = opts.withDefaults()

  log.Info().
    Array("Devices", utils.ToZeroLogArray(s.devices)).
    Dur("Interval", opts.Interval).
    Dur("ResponseTimeout", opts.ResponseTimeout).
    Dur("ReconnectDelay", opts.ReconnectDelay).
    Msg("Starting recurring collector")

  records := make(chan model.DeviceRecord, 2 * len(s.devices))
  eg, pollCtx := errgroup.WithContext(ctx)

  for _, dev := range s.devices {
    poller := NewPoller(dev, s.env, opts, records)

    eg.Go(func() error {
      return poller.Run(pollCtx)
    })
  }

  done := make(chan struct{})

  go func() {
    defer close(done)

    for r := range records {
      log.Trace().Stringer("Record", r).Msg("Received record")

      s.Update(r)

      if s.OnRecord != nil {
        s.OnRecord(ctx, r)
      }
    }
  }()

  err := eg.Wait()
  close(records)
  <-done

  log.Info().Err(err).Msg("Recurring collector is shutting down")

  return err
}
