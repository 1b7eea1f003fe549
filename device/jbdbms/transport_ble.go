package jbdbms

import (
  "context"
  "fmt"
  "net"
  "time"

  "github.com/robertof/go-jbd-exporter/ble"
  "github.com/robertof/go-jbd-exporter/device"
  "github.com/rs/zerolog/log"
)

const (
  serviceUuid = 0xff00
  notifyUuid = 0xff01
  writeUuid = 0xff02

  // notifications buffered between the BLE stack and ReadChunk
  notificationBacklog = 16
)

type bleTransport struct {
  handle *ble.Handle
  client ble.Client
  addr net.HardwareAddr

  notify, write *ble.Characteristic
  chunks chan []byte
}

func findCharacteristics(client ble.Client) (notify, write *ble.Characteristic, err error) {
  p, err := client.DiscoverProfile(false)

  if err != nil {
    return nil, nil, fmt.Errorf("cannot discover profile for device: %w", err)
  }

  for _, svc := range p.Services {
    if !svc.UUID.Equal(ble.UUID16(serviceUuid)) {
      continue
    }

    for _, char := range svc.Characteristics {
      switch {
      case char.UUID.Equal(ble.UUID16(notifyUuid)):
        notify = char
      case char.UUID.Equal(ble.UUID16(writeUuid)):
        write = char
      }
    }
  }

  if notify == nil || write == nil {
    return nil, nil, fmt.Errorf("failed to find characteristics '%x'/'%x' in service '%x'",
      notifyUuid, writeUuid, serviceUuid)
  }

  if notify.CCCD == nil {
    return nil, nil, fmt.Errorf("characteristic '%x' does not support notifications", notifyUuid)
  }

  return notify, write, nil
}

func openBLE(ctx context.Context, h *ble.Handle, addr net.HardwareAddr) (*bleTransport, error) {
  client, err := h.Connect(ctx, addr)

  if err != nil {
    return nil, fmt.Errorf("%w: failed to connect to device: %v", device.ErrTransportFailure, err)
  }

  t := &bleTransport{
    handle: h,
    client: client,
    addr: addr,
    chunks: make(chan []byte, notificationBacklog),
  }

  t.notify, t.write, err = findCharacteristics(client)

  if err == nil {
    err = client.Subscribe(t.notify, false, t.onNotification)
  }

  if err != nil {
    h.Release(addr, client)
    return nil, fmt.Errorf("%w: %v", device.ErrTransportFailure, err)
  }

  log.Debug().Stringer("Addr", addr).Msg("jbd: subscribed to BMS notifications")

  return t, nil
}

func (t *bleTransport) onNotification(b []byte) {
  // the BLE stack reuses its buffer
  chunk := append([]byte(nil), b...)

  select {
  case t.chunks <- chunk:
  default:
    log.Warn().
      Stringer("Addr", t.addr).
      Hex("Chunk", chunk).
      Msg("jbd: notification backlog full, dropping chunk")
  }
}

func (t *bleTransport) Write(ctx context.Context, b []byte) error {
  if err := ctx.Err(); err != nil {
    return err
  }

  if err := t.client.WriteCharacteristic(t.write, b, true); err != nil {
    return fmt.Errorf("%w: failed to write characteristic '%x': %v", device.ErrTransportFailure,
      writeUuid, err)
  }

  return nil
}

func (t *bleTransport) ReadChunk(ctx context.Context, timeout time.Duration) ([]byte, error) {
  timer := time.NewTimer(timeout)
  defer timer.Stop()

  select {
  case chunk := <-t.chunks:
    return chunk, nil
  case <-t.client.Disconnected():
    return nil, fmt.Errorf("%w: device %v disconnected", device.ErrTransportFailure, t.addr)
  case <-timer.C:
    return nil, device.ErrTimeout
  case <-ctx.Done():
    return nil, ctx.Err()
  }
}

func (t *bleTransport) Close() error {
  select {
  case <-t.client.Disconnected():
  default:
    if err := t.client.Unsubscribe(t.notify, false); err != nil {
      log.Debug().Err(err).Stringer("Addr", t.addr).Msg("jbd: failed to unsubscribe")
    }
  }

  return t.handle.Release(t.addr, t.client)
}
