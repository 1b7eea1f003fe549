package jbd

import (
  "encoding/binary"
  "fmt"
)

var bo = binary.BigEndian

// mustLen guards every decode. The classifier only lets through payloads of the template
// length, so a short payload here is a bug rather than bad input.
func mustLen(t FrameType, p []byte, want int) {
  if len(p) < want {
    panic(fmt.Sprintf("jbd: %v payload has %d bytes, template requires %d", t, len(p), want))
  }
}

// Decode interprets a classified frame. It returns an InfoRecord for info frames and a
// CellBlock for cell voltage frames.
func Decode(f Frame) Record {
  switch f.Type {
  case FrameInfoFull:
    return decodeInfoFull(f.Payload)
  case FrameInfoTail:
    return decodeInfoTail(f.Payload)
  case FrameCellsFull:
    return decodeCellBlock(f.Type, f.Payload, BlockFirst)
  case FrameCellsTail:
    return decodeCellBlock(f.Type, f.Payload, BlockSecond)
  default:
    panic("jbd: cannot decode frame type " + f.Type.String())
  }
}

func decodeInfoFull(p []byte) InfoRecord {
  mustLen(FrameInfoFull, p, infoFullPayloadLen)

  return InfoRecord{
    Variant:         VariantFull,
    CentiVolts:      bo.Uint16(p[0:]),
    CentiAmps:       int16(bo.Uint16(p[2:])), // two's complement
    RemainCentiAh:   bo.Uint16(p[4:]),
    CapacityCentiAh: bo.Uint16(p[6:]),
    Cycles:          bo.Uint16(p[8:]),
    ManufactureDate: bo.Uint16(p[10:]),
    Balance1:        bo.Uint16(p[12:]),
    Balance2:        bo.Uint16(p[14:]),
  }
}

func decodeInfoTail(p []byte) InfoRecord {
  mustLen(FrameInfoTail, p, infoTailFixedLen)

  if (len(p)-infoTailFixedLen)%2 != 0 {
    panic(fmt.Sprintf("jbd: info tail payload of %d bytes has a partial temperature", len(p)))
  }

  r := InfoRecord{
    Variant:     VariantTailFragment,
    Protect:     bo.Uint16(p[0:]),
    Version:     p[2],
    Percent:     p[3],
    FET:         p[4],
    CellCount:   p[5],
    SensorCount: p[6],
  }

  temps := p[infoTailFixedLen:]
  r.RawTemps = make([]uint16, len(temps)/2)

  for i := range r.RawTemps {
    r.RawTemps[i] = bo.Uint16(temps[2*i:])
  }

  return r
}

// decodeCellBlock reads one reading per two payload bytes. The payload length comes from the
// cell count the classifier was built for, so a block may hold fewer than 8 cells, or none
// at all for a tail that only carries the trailer.
func decodeCellBlock(t FrameType, p []byte, idx BlockIndex) CellBlock {
  if len(p)%2 != 0 || len(p) > 2*CellsPerBlock {
    panic(fmt.Sprintf("jbd: %v payload of %d bytes is not a cell block", t, len(p)))
  }

  b := CellBlock{
    Index:      idx,
    Millivolts: make([]uint16, len(p)/2),
  }

  for i := range b.Millivolts {
    b.Millivolts[i] = bo.Uint16(p[2*i:])
  }

  return b
}
