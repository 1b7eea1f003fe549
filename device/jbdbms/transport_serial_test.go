package jbdbms

import (
  "bytes"
  "context"
  "encoding/binary"
  "errors"
  "testing"
  "time"

  "github.com/robertof/go-jbd-exporter/device"
  "github.com/robertof/go-jbd-exporter/jbd"
)

type fakePort struct {
  reads [][]byte
  written [][]byte
  timeout time.Duration
  readErr error
  closed bool
}

func (f *fakePort) SetReadTimeout(t time.Duration) error {
  f.timeout = t
  return nil
}

func (f *fakePort) Read(b []byte) (int, error) {
  if f.readErr != nil {
    return 0, f.readErr
  }

  if len(f.reads) == 0 {
    time.Sleep(f.timeout)
    return 0, nil
  }

  n := copy(b, f.reads[0])
  f.reads = f.reads[1:]

  return n, nil
}

func (f *fakePort) Write(b []byte) (int, error) {
  f.written = append(f.written, append([]byte(nil), b...))
  return len(b), nil
}

func (f *fakePort) Close() error {
  f.closed = true
  return nil
}

func cellsFrame() []byte {
  return cellsFrameN(16)
}

func cellsFrameN(n int) []byte {
  data := make([]byte, 0, 2*n)
  for i := 0; i < n; i++ {
    data = binary.BigEndian.AppendUint16(data, uint16(3300+i))
  }

  body := append([]byte{0x00, byte(len(data))}, data...)
  frame := append([]byte{0xdd, 0x04}, body...)
  frame = binary.BigEndian.AppendUint16(frame, jbd.Checksum(body))

  return append(frame, 0x77)
}

func TestSerialTransport_SplitsWholeFrame(t *testing.T) {
  frame := cellsFrame()
  // the frame trickles in over several reads
  port := &fakePort{reads: [][]byte{frame[:7], frame[7:25], frame[25:]}}
  tr := newSerialTransport(port, "fake")
  tr.quietGap = 5 * time.Millisecond

  first, err := tr.ReadChunk(context.Background(), time.Second)
  if err != nil {
    t.Fatalf("ReadChunk() got error: %v", err)
  }

  second, err := tr.ReadChunk(context.Background(), time.Second)
  if err != nil {
    t.Fatalf("ReadChunk() got error: %v", err)
  }

  if !bytes.Equal(first, frame[:20]) || !bytes.Equal(second, frame[20:]) {
    t.Fatalf("ReadChunk() chunks %x / %x, wanted %x / %x", first, second, frame[:20], frame[20:])
  }
}

func TestSerialTransport_PassesFragmentsThrough(t *testing.T) {
  frame := cellsFrame()
  port := &fakePort{reads: [][]byte{frame[:20]}}
  tr := newSerialTransport(port, "fake")
  tr.quietGap = 5 * time.Millisecond

  chunk, err := tr.ReadChunk(context.Background(), time.Second)
  if err != nil {
    t.Fatalf("ReadChunk() got error: %v", err)
  }

  if !bytes.Equal(chunk, frame[:20]) {
    t.Fatalf("ReadChunk() = %x, wanted %x", chunk, frame[:20])
  }
}

func TestSerialTransport_Checksum(t *testing.T) {
  frame := cellsFrame()
  frame[10] ^= 0xff

  port := &fakePort{reads: [][]byte{frame}}
  tr := newSerialTransport(port, "fake")
  tr.quietGap = 5 * time.Millisecond

  if _, err := tr.ReadChunk(context.Background(), time.Second); !errors.Is(err, device.ErrCorruptedData) {
    t.Fatalf("ReadChunk() got error %v, wanted ErrCorruptedData", err)
  }
}

func TestSerialTransport_SingleChunkFrame(t *testing.T) {
  frame := cellsFrameN(4)
  port := &fakePort{reads: [][]byte{frame}}
  tr := newSerialTransport(port, "fake")
  tr.quietGap = 5 * time.Millisecond

  chunk, err := tr.ReadChunk(context.Background(), time.Second)
  if err != nil {
    t.Fatalf("ReadChunk() got error: %v", err)
  }

  if !bytes.Equal(chunk, frame) || len(tr.pending) != 0 {
    t.Fatalf("ReadChunk() = %x with %d pending, wanted %x alone", chunk, len(tr.pending), frame)
  }

  // short responses are checksum-verified too
  frame[6] ^= 0xff
  port.reads = [][]byte{frame}

  if _, err := tr.ReadChunk(context.Background(), time.Second); !errors.Is(err, device.ErrCorruptedData) {
    t.Fatalf("ReadChunk() of a corrupted 4 cell frame got error %v, wanted ErrCorruptedData", err)
  }
}

func TestSerialTransport_Timeout(t *testing.T) {
  tr := newSerialTransport(&fakePort{}, "fake")

  if _, err := tr.ReadChunk(context.Background(), 30*time.Millisecond); !errors.Is(err, device.ErrTimeout) {
    t.Fatalf("ReadChunk() got error %v, wanted ErrTimeout", err)
  }
}

func TestSerialTransport_Failure(t *testing.T) {
  tr := newSerialTransport(&fakePort{readErr: errors.New("port gone")}, "fake")

  if _, err := tr.ReadChunk(context.Background(), time.Second); !errors.Is(err, device.ErrTransportFailure) {
    t.Fatalf("ReadChunk() got error %v, wanted ErrTransportFailure", err)
  }
}

func TestSerialTransport_WriteDropsStaleChunks(t *testing.T) {
  port := &fakePort{}
  tr := newSerialTransport(port, "fake")
  tr.pending = [][]byte{{0x01}}

  if err := tr.Write(context.Background(), jbd.Request(jbd.KindInfo)); err != nil {
    t.Fatalf("Write() got error: %v", err)
  }

  if len(tr.pending) != 0 {
    t.Fatalf("Write() kept %d stale chunks", len(tr.pending))
  }

  if len(port.written) != 1 || !bytes.Equal(port.written[0], jbd.Request(jbd.KindInfo)) {
    t.Fatalf("Write() wrote %x", port.written)
  }
}
