package jbd

import (
  "strconv"

  "github.com/pkg/errors"
)

type AggregationPhase uint8

const (
  AwaitingFirstBlock AggregationPhase = iota
  AwaitingSecondBlock
)

func (p AggregationPhase) String() string {
  switch p {
  case AwaitingFirstBlock:
    return "AwaitingFirstBlock"
  case AwaitingSecondBlock:
    return "AwaitingSecondBlock"
  default:
    panic("unknown aggregation phase: " + strconv.Itoa(int(p)))
  }
}

// Aggregation keeps the first cell block of a poll cycle until the second one arrives.
// Packs of 8 cells or fewer are summarized from the first block alone. One instance belongs
// to one device session.
type Aggregation struct {
  phase     AggregationPhase
  pending   []uint16
  cellCount int
}

func NewAggregation() *Aggregation {
  return &Aggregation{cellCount: MaxCells}
}

func (a *Aggregation) Phase() AggregationPhase {
  return a.phase
}

// SetCellCount limits the summary to the first n cells. Values outside 1..16 fall back
// to 16.
func (a *Aggregation) SetCellCount(n int) {
  a.cellCount = normalizeCellCount(n)
}

func (a *Aggregation) CellCount() int {
  return a.cellCount
}

// Reset drops any pending block. It reports whether a block was discarded.
func (a *Aggregation) Reset() (discarded bool) {
  discarded = a.phase == AwaitingSecondBlock
  a.phase = AwaitingFirstBlock
  a.pending = a.pending[:0]

  return discarded
}

func (a *Aggregation) summarize(cells []uint16) PackSummary {
  return Summarize(cells[:min(len(cells), a.cellCount)])
}

// Add feeds a block. A summary is returned only when b completes the pack. A repeated
// first block replaces the pending one, and a second block without a first is dropped;
// both cases return ErrProtocolAnomaly alongside the corrected state.
func (a *Aggregation) Add(b CellBlock) (summary PackSummary, ok bool, err error) {
  if len(b.Millivolts) > CellsPerBlock {
    panic("jbd: cell block with " + strconv.Itoa(len(b.Millivolts)) + " cells")
  }

  switch b.Index {
  case BlockFirst:
    if len(b.Millivolts) == 0 {
      panic("jbd: empty first cell block")
    }

    if a.phase == AwaitingSecondBlock {
      err = errors.Wrap(ErrProtocolAnomaly, "duplicate first cell block, replacing pending block")
    }

    if a.cellCount <= CellsPerBlock {
      a.Reset()
      return a.summarize(b.Millivolts), true, err
    }

    a.pending = append(a.pending[:0], b.Millivolts...)
    a.phase = AwaitingSecondBlock

    return summary, false, err

  case BlockSecond:
    if a.phase != AwaitingSecondBlock {
      return summary, false, errors.Wrap(ErrProtocolAnomaly,
        "second cell block without a first block, dropping")
    }

    all := make([]uint16, 0, len(a.pending)+len(b.Millivolts))
    all = append(all, a.pending...)
    all = append(all, b.Millivolts...)

    a.Reset()

    return a.summarize(all), true, nil

  default:
    panic("jbd: unknown cell block index " + strconv.Itoa(int(b.Index)))
  }
}
