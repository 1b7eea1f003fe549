package jbd

import (
  "fmt"
  "math"
)

const (
  CellsPerBlock = 8
  MaxCells      = 2 * CellsPerBlock

  // temperatures are reported in 0.1 K
  kelvinOffset = 2731
)

// Record is a decoded piece of telemetry: InfoRecord, CellBlock, PackSummary,
// ProtectionFlags or BalanceFlags.
type Record interface {
  fmt.Stringer
  record()
}

// InfoRecord holds the basic pack information. The header chunk (VariantFull) fills the
// electrical and balancing fields, the tail fragment fills status and temperatures.
type InfoRecord struct {
  Variant Variant

  CentiVolts      uint16
  CentiAmps       int16 // positive while charging
  RemainCentiAh   uint16
  CapacityCentiAh uint16
  Cycles          uint16
  ManufactureDate uint16
  Balance1        uint16 // cells 1-16
  Balance2        uint16 // cells 17-32

  Protect     uint16
  Version     uint8
  Percent     uint8
  FET         uint8
  CellCount   uint8
  SensorCount uint8
  RawTemps    []uint16 // 0.1 K
}

func (InfoRecord) record() {}

func centi(v float64) float64 {
  return math.Round(v*100) / 100
}

func (r InfoRecord) Volts() float64 {
  return float64(r.CentiVolts) / 100
}

func (r InfoRecord) Amps() float64 {
  return float64(r.CentiAmps) / 100
}

func (r InfoRecord) Watts() float64 {
  return centi(r.Volts() * r.Amps())
}

func (r InfoRecord) RemainAh() float64 {
  return float64(r.RemainCentiAh) / 100
}

func (r InfoRecord) CapacityAh() float64 {
  return float64(r.CapacityCentiAh) / 100
}

// Temperatures in Celsius, one per sensor carried by the frame.
func (r InfoRecord) Temperatures() []float64 {
  out := make([]float64, len(r.RawTemps))

  for i, raw := range r.RawTemps {
    out[i] = float64(int(raw)-kelvinOffset) / 10
  }

  return out
}

func (r InfoRecord) ChargeEnabled() bool {
  return r.FET&0x01 != 0
}

func (r InfoRecord) DischargeEnabled() bool {
  return r.FET&0x02 != 0
}

func (r InfoRecord) ProtectionFlags() ProtectionFlags {
  return DecodeProtection(r.Protect)
}

func (r InfoRecord) BalanceFlags() BalanceFlags {
  return DecodeBalance(r.Balance1)
}

func (r InfoRecord) String() string {
  if r.Variant == VariantFull {
    return fmt.Sprintf("Info[Volts=%.2f,Amps=%.2f,Watts=%.2f,Remain=%.2fAh,Capacity=%.2fAh,Cycles=%d,Balance=0x%04x]",
      r.Volts(), r.Amps(), r.Watts(), r.RemainAh(), r.CapacityAh(), r.Cycles, r.Balance1)
  }

  return fmt.Sprintf("Info[Protect=0x%04x,Version=%d,Percent=%d%%,FET=%d,Cells=%d,Sensors=%d,Temperatures=%v]",
    r.Protect, r.Version, r.Percent, r.FET, r.CellCount, r.SensorCount, r.Temperatures())
}

type BlockIndex uint8

const (
  BlockFirst BlockIndex = iota
  BlockSecond
)

func (b BlockIndex) String() string {
  if b == BlockFirst {
    return "1-8"
  }
  return "9-16"
}

// FirstCell is the 1-based number of the first cell in the block.
func (b BlockIndex) FirstCell() int {
  return int(b)*CellsPerBlock + 1
}

type CellBlock struct {
  Index      BlockIndex
  Millivolts []uint16
}

func (CellBlock) record() {}

func (b CellBlock) String() string {
  return fmt.Sprintf("Cells[%v,%v]", b.Index, b.Millivolts)
}

// PackSummary is derived from both cell blocks of one poll cycle. Cell indexes are 1-based.
type PackSummary struct {
  Cells           int
  MinMillivolts   uint16
  MinCell         int
  MaxMillivolts   uint16
  MaxCell         int
  DeltaMillivolts uint16
}

func (PackSummary) record() {}

func (s PackSummary) String() string {
  return fmt.Sprintf("Summary[Cells=%d,Min=%dmV(#%d),Max=%dmV(#%d),Delta=%dmV]",
    s.Cells, s.MinMillivolts, s.MinCell, s.MaxMillivolts, s.MaxCell, s.DeltaMillivolts)
}

// Summarize computes min, max and delta over cells. Ties resolve to the lowest index.
func Summarize(cells []uint16) PackSummary {
  if len(cells) == 0 {
    panic("cannot summarize an empty cell list")
  }

  s := PackSummary{
    Cells:         len(cells),
    MinMillivolts: cells[0],
    MinCell:       1,
    MaxMillivolts: cells[0],
    MaxCell:       1,
  }

  for i, mv := range cells[1:] {
    if mv < s.MinMillivolts {
      s.MinMillivolts, s.MinCell = mv, i+2
    }
    if mv > s.MaxMillivolts {
      s.MaxMillivolts, s.MaxCell = mv, i+2
    }
  }

  s.DeltaMillivolts = s.MaxMillivolts - s.MinMillivolts

  return s
}
