package metrics_test

import (
  "context"
  "testing"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/prometheus/client_golang/prometheus/testutil"
  "github.com/robertof/go-jbd-exporter/device"
  "github.com/robertof/go-jbd-exporter/jbd"
  "github.com/robertof/go-jbd-exporter/metrics"
)

type namedDevice string

func (d namedDevice) Name() string { return string(d) }
func (d namedDevice) Meter() string { return string(d) }
func (d namedDevice) Addr() string { return "" }
func (d namedDevice) Flags() device.Flags { return 0 }
func (d namedDevice) InfoLayout() jbd.InfoLayout { return jbd.InfoLayoutFourSensors }
func (d namedDevice) String() string { return string(d) }

func (d namedDevice) Open(context.Context, device.Env) (device.Transport, error) {
  return nil, nil
}

func TestCollector(t *testing.T) {
  at := time.Unix(1700000000, 0)

  var reading device.Reading
  reading.Apply(jbd.InfoRecord{Variant: jbd.VariantFull, CentiVolts: 1320, CentiAmps: -150}, at)
  reading.Apply(jbd.InfoRecord{
    Variant: jbd.VariantTailFragment,
    Percent: 40,
    FET: 1,
    CellCount: 16,
    RawTemps: []uint16{2971},
  }, at)

  readings := map[device.Device]device.Reading{namedDevice("bms0"): reading}

  reg := prometheus.NewPedanticRegistry()
  metrics.RegisterCollector(func() (map[device.Device]device.Reading, time.Time) {
    return readings, at
  }, reg)

  families, err := reg.Gather()
  if err != nil {
    t.Fatalf("Gather() got error: %v", err)
  }

  values := make(map[string]float64)

  for _, mf := range families {
    for _, m := range mf.GetMetric() {
      key := mf.GetName()

      for _, l := range m.GetLabel() {
        if l.GetName() != "name" {
          key += ":" + l.GetValue()
        }
      }

      values[key] = m.GetGauge().GetValue()

      if m.GetTimestampMs() != at.UnixMilli() {
        t.Errorf("%v has timestamp %d, wanted %d", key, m.GetTimestampMs(), at.UnixMilli())
      }
    }
  }

  want := map[string]float64{
    "jbd_pack_voltage_volts": 13.2,
    "jbd_pack_current_amperes": -1.5,
    "jbd_state_of_charge_ratio": 0.4,
    "jbd_fet_enabled:charge": 1,
    "jbd_fet_enabled:discharge": 0,
    "jbd_temperature_celsius:1": 24,
    "jbd_cell_balancing:1": 0,
    "jbd_protection_active:cot": 0,
  }

  for key, v := range want {
    if got, ok := values[key]; !ok || got != v {
      t.Errorf("%v = %v (present: %v), wanted %v", key, got, ok, v)
    }
  }

  // no cell blocks yet
  if n, _ := testutil.GatherAndCount(reg, "jbd_cell_voltage_volts", "jbd_cell_voltage_delta_volts"); n != 0 {
    t.Fatalf("got %d cell voltage series before any cell block", n)
  }
}
