package device

import (
  "fmt"
  "strings"
  "time"

  "github.com/robertof/go-jbd-exporter/jbd"
)

// Reading is the latest decoded state of one BMS, assembled from the records of
// possibly different poll cycles.
type Reading struct {
  // electrical values and balancing, from the info header chunk
  Pack jbd.InfoRecord
  // protection, FET, cell count and temperatures, from the info tail fragment
  Status jbd.InfoRecord
  Blocks [2]jbd.CellBlock
  Summary jbd.PackSummary

  HasPack bool
  HasStatus bool
  HasSummary bool

  UpdatedAt time.Time
}

func (r *Reading) Apply(rec jbd.Record, at time.Time) {
  switch rec := rec.(type) {
  case jbd.InfoRecord:
    if rec.Variant == jbd.VariantFull {
      r.Pack, r.HasPack = rec, true
    } else {
      r.Status, r.HasStatus = rec, true
    }
  case jbd.CellBlock:
    r.Blocks[rec.Index] = rec
  case jbd.PackSummary:
    r.Summary, r.HasSummary = rec, true
  default:
    // flags are derived from the info records
    return
  }

  r.UpdatedAt = at
}

// Cells returns the known cell voltages keyed by 1-based cell number.
func (r Reading) Cells() map[int]uint16 {
  out := make(map[int]uint16)

  for _, b := range r.Blocks {
    for i, mv := range b.Millivolts {
      out[b.Index.FirstCell()+i] = mv
    }
  }

  return out
}

func (r Reading) String() string {
  var fields []string

  if r.HasPack {
    fields = append(fields, fmt.Sprintf("Volts=%.2f,Amps=%.2f", r.Pack.Volts(), r.Pack.Amps()))
  }

  if r.HasStatus {
    fields = append(fields, fmt.Sprintf("Percent=%d%%,Protection=%v", r.Status.Percent,
      r.Status.ProtectionFlags().Flags))
  }

  if r.HasSummary {
    fields = append(fields, fmt.Sprintf("Delta=%dmV", r.Summary.DeltaMillivolts))
  }

  return fmt.Sprintf("Reading[%v]", strings.Join(fields, ","))
}
