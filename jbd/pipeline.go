package jbd

import (
  "github.com/rs/zerolog/log"
)

// Pipeline runs chunks of one device session through assembly, decoding and aggregation.
type Pipeline struct {
  assembler   Assembler
  aggregation *Aggregation
}

func NewPipeline(l InfoLayout) *Pipeline {
  return &Pipeline{
    assembler:   NewAssembler(l),
    aggregation: NewAggregation(),
  }
}

func (p *Pipeline) Layout() InfoLayout {
  return p.assembler.classifier.Layout()
}

func (p *Pipeline) Aggregation() *Aggregation {
  return p.aggregation
}

// ExpectsTail reports whether the response to k still has a tail fragment after its header
// chunk, given the cell count learned so far.
func (p *Pipeline) ExpectsTail(k Kind) bool {
  return p.assembler.classifier.ExpectsTail(k)
}

func (p *Pipeline) setCellCount(n int) {
  if normalizeCellCount(n) == p.aggregation.CellCount() {
    return
  }

  p.assembler = p.assembler.WithCellCount(n)
  p.aggregation.SetCellCount(n)

  log.Debug().
    Int("Reported", n).
    Int("Cells", p.aggregation.CellCount()).
    Msg("jbd: cell count changed, adjusting cell voltage templates")
}

// StartCycle marks the beginning of a poll cycle, abandoning any incomplete cell pair.
func (p *Pipeline) StartCycle() {
  if p.aggregation.Reset() {
    log.Debug().Msg("jbd: discarded incomplete cell block pair from previous cycle")
  }
}

// Feed processes one chunk. Unrecognized chunks return ErrUnrecognizedFrame and no records.
// A ProtocolAnomaly error may be returned together with records.
func (p *Pipeline) Feed(chunk []byte) (FrameType, []Record, error) {
  frame, err := p.assembler.Next(chunk)

  if err != nil {
    return 0, nil, err
  }

  log.Trace().Stringer("Frame", frame).Msg("jbd: assembled frame")

  var records []Record

  switch rec := Decode(frame).(type) {
  case InfoRecord:
    records = append(records, rec)

    if rec.Variant == VariantFull {
      records = append(records, rec.BalanceFlags())
    } else {
      records = append(records, rec.ProtectionFlags())
      p.setCellCount(int(rec.CellCount))

      if int(rec.SensorCount) != len(rec.RawTemps) {
        log.Debug().
          Uint8("SensorCount", rec.SensorCount).
          Int("Decoded", len(rec.RawTemps)).
          Stringer("Layout", p.Layout()).
          Msg("jbd: device reports a different number of temperature sensors than the layout")
      }
    }

  case CellBlock:
    // checksum and terminator left over from a pack of 7 or 8 cells
    if len(rec.Millivolts) == 0 {
      return frame.Type, nil, nil
    }

    records = append(records, rec)

    summary, ok, err := p.aggregation.Add(rec)

    if ok {
      records = append(records, summary)
    }

    if err != nil {
      return frame.Type, records, err
    }
  }

  return frame.Type, records, nil
}
