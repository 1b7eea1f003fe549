package metrics

import (
  "strconv"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-jbd-exporter/device"
)

func newDesc(name, help string, labels ...string) *prometheus.Desc {
  return prometheus.NewDesc("jbd_" + name, help, append([]string{"name"}, labels...), nil)
}

var (
  descVoltage = newDesc("pack_voltage_volts", "Pack voltage.")
  descCurrent = newDesc("pack_current_amperes", "Pack current, negative while discharging.")
  descPower = newDesc("pack_power_watts", "Pack power, negative while discharging.")
  descRemaining = newDesc("pack_remaining_capacity_ampere_hours", "Remaining capacity.")
  descCapacity = newDesc("pack_nominal_capacity_ampere_hours", "Nominal capacity.")
  descCycles = newDesc("pack_cycles", "Charge cycles reported by the BMS.")
  descBalancing = newDesc("cell_balancing", "Whether the cell is being balanced.", "cell")

  descCharge = newDesc("state_of_charge_ratio", "State of charge reported by the BMS.")
  descTemperature = newDesc("temperature_celsius", "Temperature of an NTC sensor in Celsius.", "sensor")
  descFET = newDesc("fet_enabled", "Whether the charge or discharge MOSFET is on.", "fet")
  descProtection = newDesc("protection_active", "Whether a protection has tripped.", "protection")
  descCellCount = newDesc("cell_count", "Number of cells in series reported by the BMS.")

  descCellVoltage = newDesc("cell_voltage_volts", "Voltage of a single cell.", "cell")
  descCellMin = newDesc("cell_voltage_min_volts", "Lowest cell voltage of the last complete read.")
  descCellMax = newDesc("cell_voltage_max_volts", "Highest cell voltage of the last complete read.")
  descCellDelta = newDesc("cell_voltage_delta_volts", "Spread between highest and lowest cell.")

  descLastUpdate = newDesc("last_update_timestamp_seconds", "Time of the last record received from the BMS.")
)

type CollectFunc func() (map[device.Device]device.Reading, time.Time)

type collector struct {
  CollectFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
  prometheus.DescribeByCollect(c, ch)
}

func boolValue(b bool) float64 {
  if b {
    return 1
  }
  return 0
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
  out, _ := c.CollectFunc()

  for device, reading := range out {
    ts := reading.UpdatedAt
    name := device.Name()

    gauge := func(desc *prometheus.Desc, v float64, labels ...string) {
      m := prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, append([]string{name}, labels...)...)
      ch <- prometheus.NewMetricWithTimestamp(ts, m)
    }

    if reading.HasPack {
      p := reading.Pack

      gauge(descVoltage, p.Volts())
      gauge(descCurrent, p.Amps())
      gauge(descPower, p.Watts())
      gauge(descRemaining, p.RemainAh())
      gauge(descCapacity, p.CapacityAh())
      gauge(descCycles, float64(p.Cycles))

      for cell := 1; cell <= 16; cell++ {
        gauge(descBalancing, boolValue(p.BalanceFlags().Cell(cell)), strconv.Itoa(cell))
      }
    }

    if reading.HasStatus {
      s := reading.Status

      gauge(descCharge, float64(s.Percent) / 100)
      gauge(descCellCount, float64(s.CellCount))
      gauge(descFET, boolValue(s.ChargeEnabled()), "charge")
      gauge(descFET, boolValue(s.DischargeEnabled()), "discharge")

      for i, temp := range s.Temperatures() {
        gauge(descTemperature, temp, strconv.Itoa(i + 1))
      }

      for _, flag := range s.ProtectionFlags().Flags {
        gauge(descProtection, boolValue(flag.Set), flag.Name)
      }
    }

    for cell, mv := range reading.Cells() {
      gauge(descCellVoltage, float64(mv) / 1000, strconv.Itoa(cell))
    }

    if reading.HasSummary {
      gauge(descCellMin, float64(reading.Summary.MinMillivolts) / 1000)
      gauge(descCellMax, float64(reading.Summary.MaxMillivolts) / 1000)
      gauge(descCellDelta, float64(reading.Summary.DeltaMillivolts) / 1000)
    }

    gauge(descLastUpdate, float64(ts.UnixNano()) / 1e9)
  }
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
  c := &collector{f}

  reg.MustRegister(c)
}
