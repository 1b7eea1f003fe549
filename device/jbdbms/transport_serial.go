package jbdbms

import (
  "bytes"
  "context"
  "fmt"
  "io"
  "time"

  "github.com/robertof/go-jbd-exporter/device"
  "github.com/robertof/go-jbd-exporter/jbd"
  "github.com/rs/zerolog/log"
  "go.bug.st/serial"
)

const (
  // longest blocking read while waiting for the first byte, bounds shutdown latency
  serialPollInterval = 100 * time.Millisecond
  // silence that ends a response
  serialQuietGap = 50 * time.Millisecond
  serialMaxResponse = 256
)

// serialPort is the subset of serial.Port used by the transport.
type serialPort interface {
  io.ReadWriteCloser
  SetReadTimeout(t time.Duration) error
}

type serialTransport struct {
  port serialPort
  name string

  quietGap time.Duration
  pending [][]byte
}

func openSerial(name string, baud int) (*serialTransport, error) {
  port, err := serial.Open(name, &serial.Mode{
    BaudRate: baud,
    DataBits: 8,
    Parity: serial.NoParity,
    StopBits: serial.OneStopBit,
  })

  if err != nil {
    return nil, fmt.Errorf("%w: failed to open serial port %q: %v", device.ErrTransportFailure, name, err)
  }

  log.Debug().Str("Port", name).Int("Baud", baud).Msg("jbd: serial port opened")

  return newSerialTransport(port, name), nil
}

func newSerialTransport(port serialPort, name string) *serialTransport {
  return &serialTransport{
    port: port,
    name: name,
    quietGap: serialQuietGap,
  }
}

func (t *serialTransport) Write(ctx context.Context, b []byte) error {
  if err := ctx.Err(); err != nil {
    return err
  }

  // anything still queued belongs to an earlier request
  t.pending = nil

  if _, err := t.port.Write(b); err != nil {
    return fmt.Errorf("%w: write to %q failed: %v", device.ErrTransportFailure, t.name, err)
  }

  return nil
}

func (t *serialTransport) read(buf []byte, timeout time.Duration) (int, error) {
  if err := t.port.SetReadTimeout(timeout); err != nil {
    return 0, fmt.Errorf("%w: cannot set read timeout on %q: %v", device.ErrTransportFailure, t.name, err)
  }

  n, err := t.port.Read(buf)

  if err != nil {
    return n, fmt.Errorf("%w: read from %q failed: %v", device.ErrTransportFailure, t.name, err)
  }

  return n, nil
}

// ReadChunk returns the next chunk in the same shape a BLE transport delivers: a complete
// response is verified and split at the notification size, anything else is passed on
// untouched for the classifier to judge.
func (t *serialTransport) ReadChunk(ctx context.Context, timeout time.Duration) ([]byte, error) {
  if len(t.pending) > 0 {
    chunk := t.pending[0]
    t.pending = t.pending[1:]
    return chunk, nil
  }

  deadline := time.Now().Add(timeout)
  buf := make([]byte, serialMaxResponse)
  var acc []byte

  for {
    if err := ctx.Err(); err != nil {
      return nil, err
    }

    wait := t.quietGap

    if len(acc) == 0 {
      left := time.Until(deadline)

      if left <= 0 {
        return nil, device.ErrTimeout
      }

      wait = min(left, serialPollInterval)
    }

    n, err := t.read(buf, wait)

    if err != nil {
      return nil, err
    }

    if n == 0 {
      if len(acc) > 0 {
        break
      }
      continue
    }

    acc = append(acc, buf[:n]...)

    if len(acc) >= serialMaxResponse || completeFrame(acc) {
      break
    }
  }

  return t.segment(acc)
}

// completeFrame reports whether b holds a full response according to its length byte.
func completeFrame(b []byte) bool {
  return len(b) >= 7 && b[0] == 0xdd && len(b) == int(b[3])+7 && b[len(b)-1] == 0x77
}

func (t *serialTransport) segment(acc []byte) ([]byte, error) {
  // drop line noise in front of the frame start
  if i := bytes.IndexByte(acc, 0xdd); i > 0 && completeFrame(acc[i:]) {
    acc = acc[i:]
  }

  if !completeFrame(acc) {
    return acc, nil
  }

  if _, err := jbd.VerifyFrame(acc); err != nil {
    return nil, fmt.Errorf("%w: %v", device.ErrCorruptedData, err)
  }

  chunks := jbd.Segment(acc)
  t.pending = chunks[1:]

  log.Trace().
    Str("Port", t.name).
    Int("Bytes", len(acc)).
    Int("Chunks", len(chunks)).
    Msg("jbd: split serial response into chunks")

  return chunks[0], nil
}

func (t *serialTransport) Close() error {
  return t.port.Close()
}
