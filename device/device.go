package device

import (
	"context"
	"errors"

	"github.com/robertof/go-jbd-exporter/ble"
	"github.com/robertof/go-jbd-exporter/jbd"
)

var (
  ErrInvalidData = errors.New("invalid data")
  ErrCorruptedData = errors.New("corrupted data")
  ErrTimeout = errors.New("transport timeout")
  ErrTransportFailure = errors.New("transport failure")
)

type Flags uint8

const (
  FlagRequiresBle Flags = 1 << iota
)

// Env carries the shared handles a device needs to open its transport.
type Env struct {
  BLE *ble.Handle
}

type Device interface {
  Name() string
  // Meter is the label attached to every record emitted for this device.
  Meter() string
  Addr() string
  Flags() Flags
  InfoLayout() jbd.InfoLayout
  Open(ctx context.Context, env Env) (Transport, error)
  String() string
}
