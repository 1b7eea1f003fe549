package collector

import (
  "bytes"
  "context"
  "encoding/binary"
  "encoding/json"
  "errors"
  "reflect"
  "testing"
  "time"

  "github.com/prometheus/client_golang/prometheus/testutil"
  "github.com/robertof/go-jbd-exporter/collector/model"
  "github.com/robertof/go-jbd-exporter/device"
  "github.com/robertof/go-jbd-exporter/jbd"
  "github.com/rs/zerolog"
  "github.com/rs/zerolog/log"
)

func response(k jbd.Kind, data []byte) []byte {
  body := append([]byte{0x00, byte(len(data))}, data...)
  frame := append([]byte{0xdd, byte(k)}, body...)
  frame = binary.BigEndian.AppendUint16(frame, jbd.Checksum(body))

  return append(frame, 0x77)
}

func infoResponse() []byte {
  return infoResponseCells(16)
}

func infoResponseCells(cells byte) []byte {
  data := make([]byte, 0, 31)
  for _, v := range []uint16{1320, 0xff6a, 4000, 10000, 42, 0x2a8f, 0, 0, 0} {
    data = binary.BigEndian.AppendUint16(data, v)
  }
  data = append(data, 0x10, 40, 0x03, cells, 4)
  for _, v := range []uint16{2971, 2981, 2961, 2951} {
    data = binary.BigEndian.AppendUint16(data, v)
  }

  return response(jbd.KindInfo, data)
}

func cellsResponse() []byte {
  return cellsResponseN(16)
}

func cellsResponseN(n int) []byte {
  data := make([]byte, 0, 2*n)
  for i := 0; i < n; i++ {
    data = binary.BigEndian.AppendUint16(data, uint16(3300 + i))
  }

  return response(jbd.KindCellVoltage, data)
}

// fakeTransport answers each command with the chunks scripted for it. Reads with nothing
// queued time out immediately.
type fakeTransport struct {
  replies map[byte][][]byte
  // returned by the next ReadChunk once the queue is empty, instead of ErrTimeout
  readErr error

  writes [][]byte
  queue [][]byte
  closed bool
}

func (t *fakeTransport) Write(ctx context.Context, b []byte) error {
  t.writes = append(t.writes, b)
  t.queue = append(t.queue, t.replies[b[2]]...)

  return nil
}

func (t *fakeTransport) ReadChunk(ctx context.Context, timeout time.Duration) ([]byte, error) {
  if len(t.queue) == 0 {
    if t.readErr != nil {
      return nil, t.readErr
    }
    return nil, device.ErrTimeout
  }

  chunk := t.queue[0]
  t.queue = t.queue[1:]

  return chunk, nil
}

func (t *fakeTransport) Close() error {
  t.closed = true
  return nil
}

type fakeDevice struct {
  transport *fakeTransport
  opens int
}

func (d *fakeDevice) Name() string { return "fake" }
func (d *fakeDevice) Meter() string { return "bms0" }
func (d *fakeDevice) Addr() string { return "fake0" }
func (d *fakeDevice) Flags() device.Flags { return 0 }
func (d *fakeDevice) InfoLayout() jbd.InfoLayout { return jbd.InfoLayoutFourSensors }
func (d *fakeDevice) String() string { return "fake" }

func (d *fakeDevice) Open(ctx context.Context, env device.Env) (device.Transport, error) {
  d.opens += 1
  return d.transport, nil
}

func recordTypes(records []model.DeviceRecord) (out []string) {
  for _, r := range records {
    switch rec := r.Record.(type) {
    case jbd.InfoRecord:
      out = append(out, "info:" + rec.Variant.String())
    case jbd.BalanceFlags:
      out = append(out, "balance")
    case jbd.ProtectionFlags:
      out = append(out, "protection")
    case jbd.CellBlock:
      out = append(out, "cells:" + rec.Index.String())
    case jbd.PackSummary:
      out = append(out, "summary")
    }
  }

  return out
}

func drain(ch chan model.DeviceRecord) (out []model.DeviceRecord) {
  for {
    select {
    case r := <-ch:
      out = append(out, r)
    default:
      return out
    }
  }
}

func newTestPoller(t *fakeTransport) (*Poller, chan model.DeviceRecord) {
  out := make(chan model.DeviceRecord, 64)
  p := NewPoller(&fakeDevice{transport: t}, device.Env{}, PollOptions{
    Interval: time.Millisecond,
    ResponseTimeout: time.Second,
  }, out)

  return p, out
}

func TestPoller_Cycle(t *testing.T) {
  info, cells := infoResponse(), cellsResponse()
  tr := &fakeTransport{
    replies: map[byte][][]byte{
      0x03: jbd.Segment(info),
      0x04: jbd.Segment(cells),
    },
  }

  p, out := newTestPoller(tr)

  if err := p.Cycle(context.Background(), tr); err != nil {
    t.Fatalf("Cycle() got error: %v", err)
  }

  wantWrites := [][]byte{jbd.Request(jbd.KindInfo), jbd.Request(jbd.KindCellVoltage)}
  if len(tr.writes) != 2 || !bytes.Equal(tr.writes[0], wantWrites[0]) || !bytes.Equal(tr.writes[1], wantWrites[1]) {
    t.Fatalf("Cycle() wrote %x, wanted %x", tr.writes, wantWrites)
  }

  want := []string{
    "info:Full", "balance", "info:TailFragment", "protection",
    "cells:1-8", "cells:9-16", "summary",
  }

  records := drain(out)
  if got := recordTypes(records); !reflect.DeepEqual(got, want) {
    t.Fatalf("Cycle() emitted %v, wanted %v", got, want)
  }

  summary := records[len(records)-1].Record.(jbd.PackSummary)
  if summary.MinCell != 1 || summary.MaxCell != 16 || summary.DeltaMillivolts != 15 {
    t.Fatalf("summary %+v, wanted min #1, max #16, delta 15", summary)
  }

  if p.state != stateIdle {
    t.Fatalf("state after Cycle() = %v, wanted Idle", p.state)
  }
}

func TestPoller_CycleEightCells(t *testing.T) {
  cells := jbd.Segment(cellsResponseN(8))
  tr := &fakeTransport{
    replies: map[byte][][]byte{
      0x03: jbd.Segment(infoResponseCells(8)),
      0x04: cells,
    },
  }

  timeouts := timeoutsCounter.WithLabelValues("fake", "CellVoltage")
  unrecognized := unrecognizedCounter.WithLabelValues("fake")
  timeoutsBefore, unrecognizedBefore := testutil.ToFloat64(timeouts), testutil.ToFloat64(unrecognized)

  p, out := newTestPoller(tr)

  for i := 0; i < 2; i++ {
    if err := p.Cycle(context.Background(), tr); err != nil {
      t.Fatalf("Cycle() got error: %v", err)
    }

    want := []string{
      "info:Full", "balance", "info:TailFragment", "protection",
      "cells:1-8", "summary",
    }

    records := drain(out)
    if got := recordTypes(records); !reflect.DeepEqual(got, want) {
      t.Fatalf("cycle %d emitted %v, wanted %v", i, got, want)
    }

    summary := records[len(records)-1].Record.(jbd.PackSummary)
    if summary.Cells != 8 || summary.MinCell != 1 || summary.MaxCell != 8 || summary.DeltaMillivolts != 7 {
      t.Fatalf("cycle %d summary %+v, wanted 8 cells, min #1, max #8, delta 7", i, summary)
    }

    if len(tr.queue) != 0 {
      t.Fatalf("cycle %d left %d chunks unread", i, len(tr.queue))
    }
  }

  if got := testutil.ToFloat64(timeouts) - timeoutsBefore; got != 0 {
    t.Fatalf("8 cell pack hit %v cell voltage timeouts", got)
  }

  if got := testutil.ToFloat64(unrecognized) - unrecognizedBefore; got != 0 {
    t.Fatalf("8 cell pack produced %v unrecognized chunks", got)
  }
}

func TestPoller_StateTransitions(t *testing.T) {
  var buf bytes.Buffer

  logger, level := log.Logger, zerolog.GlobalLevel()
  log.Logger = zerolog.New(&buf)
  zerolog.SetGlobalLevel(zerolog.TraceLevel)

  defer func() {
    log.Logger = logger
    zerolog.SetGlobalLevel(level)
  }()

  tr := &fakeTransport{
    replies: map[byte][][]byte{
      0x03: jbd.Segment(infoResponse()),
      0x04: jbd.Segment(cellsResponse()),
    },
  }

  p, _ := newTestPoller(tr)
  p.Cycle(context.Background(), tr)

  var states []string
  dec := json.NewDecoder(&buf)

  for dec.More() {
    var entry struct {
      Message string `json:"message"`
      State string
    }

    if err := dec.Decode(&entry); err != nil {
      t.Fatalf("decoding log output: %v", err)
    }

    if entry.Message == "collector: poll state changed" {
      states = append(states, entry.State)
    }
  }

  want := []string{"AwaitInfoResponse", "Idle", "AwaitCellResponse", "Idle"}
  if !reflect.DeepEqual(states, want) {
    t.Fatalf("Cycle() went through %v, wanted %v", states, want)
  }
}

func TestPoller_CycleSurvivesTimeouts(t *testing.T) {
  cells := cellsResponse()
  tr := &fakeTransport{
    replies: map[byte][][]byte{
      // info never answers, cells loses its tail
      0x04: jbd.Segment(cells)[:1],
    },
  }

  p, out := newTestPoller(tr)

  if err := p.Cycle(context.Background(), tr); err != nil {
    t.Fatalf("Cycle() got error: %v", err)
  }

  if len(tr.writes) != 2 {
    t.Fatalf("Cycle() sent %d commands after a timeout, wanted 2", len(tr.writes))
  }

  if got := recordTypes(drain(out)); !reflect.DeepEqual(got, []string{"cells:1-8"}) {
    t.Fatalf("Cycle() emitted %v, wanted only the first cell block", got)
  }

  // the stale block must not pair with the next cycle's tail
  tr.replies[0x04] = jbd.Segment(cells)[1:]

  p.Cycle(context.Background(), tr)

  if got := recordTypes(drain(out)); !reflect.DeepEqual(got, []string{"cells:9-16"}) {
    t.Fatalf("second Cycle() emitted %v, wanted only the second cell block", got)
  }
}

func TestPoller_CycleSkipsUnrecognized(t *testing.T) {
  info := infoResponse()
  chunks := append([][]byte{{0x01, 0x02, 0x03}}, jbd.Segment(info)...)
  tr := &fakeTransport{replies: map[byte][][]byte{0x03: chunks}}

  p, out := newTestPoller(tr)
  p.Cycle(context.Background(), tr)

  want := []string{"info:Full", "balance", "info:TailFragment", "protection"}
  if got := recordTypes(drain(out)); !reflect.DeepEqual(got, want) {
    t.Fatalf("Cycle() emitted %v, wanted %v", got, want)
  }
}

func TestPoller_TransportFailureEndsSession(t *testing.T) {
  tr := &fakeTransport{readErr: device.ErrTransportFailure}
  p, _ := newTestPoller(tr)

  err := p.Cycle(context.Background(), tr)
  if !errors.Is(err, device.ErrTransportFailure) {
    t.Fatalf("Cycle() got error %v, wanted ErrTransportFailure", err)
  }

  if len(tr.writes) != 1 {
    t.Fatalf("Cycle() sent %d commands after a transport failure, wanted 1", len(tr.writes))
  }

  // without a reconnect delay Run gives up and closes the transport
  if err := p.Run(context.Background()); !errors.Is(err, device.ErrTransportFailure) {
    t.Fatalf("Run() got error %v, wanted ErrTransportFailure", err)
  }

  if !tr.closed {
    t.Fatalf("Run() did not close the transport")
  }
}

func TestPoller_RunReconnects(t *testing.T) {
  tr := &fakeTransport{readErr: device.ErrTransportFailure}
  dev := &fakeDevice{transport: tr}
  out := make(chan model.DeviceRecord, 64)

  p := NewPoller(dev, device.Env{}, PollOptions{
    ResponseTimeout: time.Second,
    ReconnectDelay: time.Millisecond,
    MaxReconnectDelay: 4 * time.Millisecond,
  }, out)

  ctx, cancel := context.WithTimeout(context.Background(), 100 * time.Millisecond)
  defer cancel()

  if err := p.Run(ctx); err != nil {
    t.Fatalf("Run() got error %v, wanted nil on cancel", err)
  }

  if dev.opens < 2 {
    t.Fatalf("Run() opened the transport %d times, wanted reconnects", dev.opens)
  }
}
