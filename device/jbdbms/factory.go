package jbdbms

import (
  "fmt"
  "net"
  "path/filepath"
  "strconv"
  "strings"

  "github.com/robertof/go-jbd-exporter/device"
  "github.com/robertof/go-jbd-exporter/jbd"
  "github.com/rs/zerolog/log"
)

const DefaultBaudRate = 9600

func commonFromSpec(d *Device, spec device.DeviceSpec, fallbackName string) error {
  if name := spec.Name(); name != "" {
    d.name = name
  } else {
    d.name = fallbackName
  }

  if meter := spec.Meter(); meter != "" {
    d.meter = meter
  } else {
    d.meter = d.name
  }

  layout, err := jbd.ParseInfoLayout(spec.Layout())
  if err != nil {
    return err
  }

  d.layout = layout

  return nil
}

type BLEFactory struct{}

func (f *BLEFactory) FromSpec(spec device.DeviceSpec) (device.Device, error) {
  d := Device{link: linkBLE}

  addr := spec.Addr()

  hwAddr, err := net.ParseMAC(addr)
  if err != nil {
    return nil, fmt.Errorf("invalid addr: %w", err)
  }

  d.hwAddr = hwAddr

  err = commonFromSpec(&d, spec, "jbd-" + strings.ToLower(strings.ReplaceAll(addr, ":", "")))
  if err != nil {
    return nil, err
  }

  log.Debug().Stringer("Device", &d).Stringer("Layout", d.layout).Msg("jbd: configured BLE device")

  return &d, nil
}

func (f *BLEFactory) Help() string {
  return `Supported parameters:
addr (string, required): MAC address of the BMS
name (string): Name of this BMS
meter (string): Label attached to every record of this BMS. Defaults to the name
layout (string): Info frame layout, 4ntc (default) or 2ntc temperature sensors`
}

type SerialFactory struct{}

func (f *SerialFactory) FromSpec(spec device.DeviceSpec) (device.Device, error) {
  d := Device{link: linkSerial, baud: DefaultBaudRate}

  d.port = spec["port"]
  if d.port == "" {
    d.port = spec.Addr()
  }

  if d.port == "" {
    return nil, fmt.Errorf("%w: port is required", device.ErrInvalidData)
  }

  if baud := spec["baud"]; baud != "" {
    b, err := strconv.Atoi(baud)
    if err != nil || b <= 0 {
      return nil, fmt.Errorf("invalid baud rate %q", baud)
    }
    d.baud = b
  }

  err := commonFromSpec(&d, spec, "jbd-" + strings.ToLower(filepath.Base(d.port)))
  if err != nil {
    return nil, err
  }

  log.Debug().Stringer("Device", &d).Stringer("Layout", d.layout).Msg("jbd: configured serial device")

  return &d, nil
}

func (f *SerialFactory) Help() string {
  return `Supported parameters:
port (string, required): Serial port of the BMS, e.g. /dev/ttyUSB0 or COM2
baud (int): Baud rate, defaults to 9600
name (string): Name of this BMS
meter (string): Label attached to every record of this BMS. Defaults to the name
layout (string): Info frame layout, 4ntc (default) or 2ntc temperature sensors`
}
