package jbdbms

import (
  "context"
  "fmt"
  "net"

  "github.com/robertof/go-jbd-exporter/device"
  "github.com/robertof/go-jbd-exporter/jbd"
)

type link uint8

const (
  linkBLE link = iota
  linkSerial
)

type Device struct {
  name string
  meter string
  layout jbd.InfoLayout
  link link

  // BLE
  hwAddr net.HardwareAddr

  // serial
  port string
  baud int
}

func (d *Device) Name() string {
  return d.name
}

func (d *Device) Meter() string {
  return d.meter
}

func (d *Device) Addr() string {
  if d.link == linkBLE {
    return d.hwAddr.String()
  }
  return d.port
}

func (d *Device) Flags() device.Flags {
  if d.link == linkBLE {
    return device.FlagRequiresBle
  }
  return 0
}

func (d *Device) InfoLayout() jbd.InfoLayout {
  return d.layout
}

func (d *Device) Open(ctx context.Context, env device.Env) (device.Transport, error) {
  switch d.link {
  case linkBLE:
    if env.BLE == nil {
      return nil, fmt.Errorf("%v: bluetooth is not initialized", d)
    }
    t, err := openBLE(ctx, env.BLE, d.hwAddr)
    if err != nil {
      return nil, err
    }
    return t, nil
  case linkSerial:
    t, err := openSerial(d.port, d.baud)
    if err != nil {
      return nil, err
    }
    return t, nil
  default:
    panic(fmt.Sprintf("device %v has unknown link %d", d, d.link))
  }
}

func (d *Device) String() string {
  if d.link == linkBLE {
    return fmt.Sprintf("jbd-ble[name=%q, addr=%v]", d.name, d.hwAddr.String())
  }
  return fmt.Sprintf("jbd-serial[name=%q, port=%v, baud=%d]", d.name, d.port, d.baud)
}
