package ble

import (
  "context"
  "fmt"
  "strings"

  "github.com/go-ble/ble"
  "github.com/go-ble/ble/linux"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/rs/zerolog/log"
)

type Characteristic = ble.Characteristic
type Client = ble.Client

// Options configures the HCI device used to reach the BMS units. Devices are dialed
// directly by address, so the adapter is never put in scanning mode.
type Options struct {
  ConnParams ConnParams
  // Keep connections open across sessions of the same device.
  PersistConnections bool
}

func (o Options) String() string {
  parts := []string{"conn params " + string(o.ConnParams)}

  if o.PersistConnections {
    parts = append(parts, "persistent connections")
  }

  return strings.Join(parts, ", ")
}

type Handle struct {
  dev *linux.Device
  connPool *connectionPool
}

func UUID16(i uint16) ble.UUID {
  return ble.UUID16(i)
}

// WrapContextWithSigHandler cancels ctx on SIGINT/SIGTERM.
func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
  return ble.WithSigHandler(ctx, cancel)
}

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    successfulConnectionsCounter,
    failedConnectionsCounter,
    connectionsFromPoolCounter,
    disconnectsCounter,
  )
}

// Open brings up HCI device deviceId and makes it the default for ble.Dial.
func Open(deviceId int, opts Options) (*Handle, error) {
  if opts.ConnParams == "" {
    opts.ConnParams = ConnParamsDefault
  }

  log.Debug().
    Int("DeviceID", deviceId).
    Stringer("Options", opts).
    Msg("Initializing Bluetooth device")

  dev, err := linux.NewDevice(
    ble.OptDeviceID(deviceId),
    ble.OptConnParams(opts.ConnParams.AdapterOptions()),
  )

  if err != nil {
    return nil, fmt.Errorf("failed to init bluetooth device: %w", err)
  }

  ble.SetDefaultDevice(dev)

  h := &Handle{
    dev: dev,
  }

  if opts.PersistConnections {
    h.connPool = initConnectionPool()
  }

  return h, nil
}

// Stop closes every pooled connection and shuts the HCI device down.
func (h *Handle) Stop() {
  h.DisconnectAll()
  h.dev.Stop()
}
