package collector

import (
  "context"
  "errors"
  "strconv"
  "time"

  "github.com/robertof/go-jbd-exporter/collector/model"
  "github.com/robertof/go-jbd-exporter/device"
  "github.com/robertof/go-jbd-exporter/jbd"
  "github.com/rs/zerolog/log"
)

type pollState uint8

const (
  stateIdle pollState = iota
  stateAwaitInfoResponse
  stateAwaitCellResponse
)

func (s pollState) String() string {
  switch s {
  case stateIdle:
    return "Idle"
  case stateAwaitInfoResponse:
    return "AwaitInfoResponse"
  case stateAwaitCellResponse:
    return "AwaitCellResponse"
  default:
    panic("unknown pollState value: " + strconv.Itoa(int(s)))
  }
}

func awaitStateFor(k jbd.Kind) pollState {
  if k == jbd.KindInfo {
    return stateAwaitInfoResponse
  }
  return stateAwaitCellResponse
}

// Poller drives the request/response cycle of a single device and forwards every decoded
// record to out.
type Poller struct {
  dev device.Device
  env device.Env
  opts PollOptions
  pipeline *jbd.Pipeline
  out chan<- model.DeviceRecord

  state pollState
}

func NewPoller(dev device.Device, env device.Env, opts PollOptions, out chan<- model.DeviceRecord) *Poller {
  return &Poller{
    dev: dev,
    env: env,
    opts: opts.withDefaults(),
    pipeline: jbd.NewPipeline(dev.InfoLayout()),
    out: out,
  }
}

func (p *Poller) Device() device.Device {
  return p.dev
}

// Cycle sends the info command, then the cell voltage command, waiting for each response in
// turn. Response timeouts are logged and do not fail the cycle, transport errors do.
func (p *Poller) Cycle(ctx context.Context, t device.Transport) error {
  p.pipeline.StartCycle()

  for _, kind := range []jbd.Kind{jbd.KindInfo, jbd.KindCellVoltage} {
    err := p.await(ctx, t, kind)
    p.setState(stateIdle)

    if err != nil {
      return err
    }
  }

  return nil
}

func (p *Poller) setState(s pollState) {
  p.state = s

  log.Trace().
    Stringer("Device", p.dev).
    Stringer("State", s).
    Msg("collector: poll state changed")
}

// await sends the command for kind and reads until its response is complete. Small packs
// answer the cell voltage command in a single chunk, so the tail is only waited for when
// the pipeline expects one.
func (p *Poller) await(ctx context.Context, t device.Transport, kind jbd.Kind) error {
  p.setState(awaitStateFor(kind))

  if err := t.Write(ctx, jbd.Request(kind)); err != nil {
    return err
  }

  deadline := time.Now().Add(p.opts.ResponseTimeout)
  var gotFull, gotTail bool

  for !gotFull || (!gotTail && p.pipeline.ExpectsTail(kind)) {
    remaining := time.Until(deadline)

    if remaining <= 0 {
      return p.timedOut(kind, gotFull, gotTail)
    }

    chunk, err := t.ReadChunk(ctx, remaining)

    switch {
    case errors.Is(err, device.ErrTimeout):
      return p.timedOut(kind, gotFull, gotTail)
    case errors.Is(err, device.ErrCorruptedData):
      log.Warn().Err(err).Stringer("Device", p.dev).Msg("collector: dropping corrupted response")
      continue
    case err != nil:
      return err
    }

    typ, records, err := p.pipeline.Feed(chunk)

    if errors.Is(err, jbd.ErrUnrecognizedFrame) {
      unrecognizedCounter.WithLabelValues(p.dev.Name()).Inc()
      log.Debug().
        Stringer("Device", p.dev).
        Hex("Chunk", chunk).
        Msg("collector: ignoring unrecognized chunk")
      continue
    }

    if errors.Is(err, jbd.ErrProtocolAnomaly) {
      anomaliesCounter.WithLabelValues(p.dev.Name()).Inc()
      log.Warn().Err(err).Stringer("Device", p.dev).Msg("collector: protocol anomaly")
    }

    framesCounter.WithLabelValues(p.dev.Name(), typ.String()).Inc()

    if err := p.emit(ctx, records); err != nil {
      return err
    }

    if typ.Kind() != kind {
      log.Debug().
        Stringer("Device", p.dev).
        Stringer("Frame", typ).
        Stringer("State", p.state).
        Msg("collector: received frame for another command")
      continue
    }

    if typ.Variant() == jbd.VariantFull {
      gotFull = true
    } else {
      gotTail = true
    }
  }

  return nil
}

func (p *Poller) timedOut(kind jbd.Kind, gotFull, gotTail bool) error {
  timeoutsCounter.WithLabelValues(p.dev.Name(), kind.String()).Inc()

  log.Warn().
    Stringer("Device", p.dev).
    Stringer("Command", kind).
    Bool("GotFull", gotFull).
    Bool("GotTail", gotTail).
    Dur("Timeout", p.opts.ResponseTimeout).
    Msg("collector: response timed out")

  return nil
}

func (p *Poller) emit(ctx context.Context, records []jbd.Record) error {
  at := time.Now()

  for _, rec := range records {
    select {
    case <-ctx.Done():
      return ctx.Err()
    case p.out <- model.DeviceRecord{Device: p.dev, Record: rec, At: at}:
    }
  }

  return nil
}
