package main

import (
  "flag"
  "io"
  "testing"
  "time"

  "github.com/robertof/go-jbd-exporter/jbd"
  "github.com/robertof/go-jbd-exporter/telemetry"
)

func newFlagSet() *flag.FlagSet {
  fs := flag.NewFlagSet("test", flag.ContinueOnError)
  fs.SetOutput(io.Discard)
  return fs
}

func TestParseConfig_Flags(t *testing.T) {
  cfg, err := parseConfig(newFlagSet(), []string{
    "-jbd-ble", "addr=A4:C1:38:00:00:01,layout=2ntc",
    "-jbd-serial", "port=/dev/ttyUSB0,baud=19200,meter=garage",
    "-interval", "30s",
    "-output", "influx",
  })

  if err != nil {
    t.Fatalf("parseConfig() got error: %v", err)
  }

  if len(cfg.Devices) != 2 {
    t.Fatalf("got %d devices, wanted 2", len(cfg.Devices))
  }

  ble, serial := cfg.Devices[0], cfg.Devices[1]

  if ble.Name() != "jbd-a4c138000001" || ble.InfoLayout() != jbd.InfoLayoutTwoSensors {
    t.Errorf("BLE device = %v (layout %v)", ble, ble.InfoLayout())
  }

  if serial.Meter() != "garage" || serial.Name() != "jbd-ttyusb0" {
    t.Errorf("serial device = %v (meter %v)", serial, serial.Meter())
  }

  if cfg.Interval != 30 * time.Second || cfg.Output != telemetry.FormatInflux {
    t.Errorf("interval = %v, output = %v", cfg.Interval, cfg.Output)
  }
}

func TestParseConfig_Validation(t *testing.T) {
  tests := [][]string{
    {},
    {"-jbd-serial", "port=/dev/ttyUSB0", "-interval", "500ms"},
    {"-jbd-serial", "port=/dev/ttyUSB0", "-interval", "1.5s"},
    {"-jbd-serial", "port=/dev/ttyUSB0", "-jbd-serial", "port=/dev/ttyUSB1,name=jbd-ttyusb0"},
    {"-jbd-serial", "port=/dev/ttyUSB0", "-reconnect-delay", "-1s"},
  }

  for _, args := range tests {
    if _, err := parseConfig(newFlagSet(), args); err == nil {
      t.Errorf("parseConfig(%q): expected error", args)
    }
  }
}

func TestApplyFile(t *testing.T) {
  fs := newFlagSet()
  var cfg config
  cfg.register(fs)

  if err := fs.Parse([]string{"-interval", "5s"}); err != nil {
    t.Fatalf("Parse() got error: %v", err)
  }

  file := `
interval: 1m
timeout: 3s
kafka-brokers:
  - kafka1:9092
  - kafka2:9092
persist-connections: false
devices:
  - type: jbd-serial
    port: /dev/ttyS1
    baud: 115200
  - type: jbd-ble
    addr: a4:c1:38:00:00:02
    name: shed
`

  if err := cfg.applyFile(fs, []byte(file)); err != nil {
    t.Fatalf("applyFile() got error: %v", err)
  }

  // command line wins
  if cfg.Interval != 5 * time.Second {
    t.Errorf("interval = %v, wanted the command line value", cfg.Interval)
  }

  if cfg.ResponseTimeout != 3 * time.Second || cfg.PersistConnections {
    t.Errorf("timeout = %v, persist = %v", cfg.ResponseTimeout, cfg.PersistConnections)
  }

  if brokers := cfg.kafkaBrokers(); len(brokers) != 2 || brokers[1] != "kafka2:9092" {
    t.Errorf("kafka brokers = %v", brokers)
  }

  if len(cfg.Devices) != 2 || cfg.Devices[1].Name() != "shed" {
    t.Fatalf("devices = %v", cfg.Devices)
  }

  for _, bad := range []string{"colour: blue", "devices: 3", "devices:\n  - type: jbd-can\n", "jbd-ble: addr=x"} {
    if err := cfg.applyFile(newFlagSet(), []byte(bad)); err == nil {
      t.Errorf("applyFile(%q): expected error", bad)
    }
  }
}
