package jbd

import (
  "fmt"
  "strconv"
)

const (
  frameStart byte = 0xdd
  frameEnd   byte = 0x77
  statusOK   byte = 0x00

  // DD, command, status, length
  headerLen = 4
  // checksum (2 bytes), terminator
  trailerLen = 3

  // Size of a single BLE notification. Responses longer than this arrive as a header
  // chunk of exactly this size followed by a tail chunk.
  ChunkSize = 20
)

// Kind is the command a frame responds to.
type Kind uint8

const (
  KindInfo        Kind = 0x03
  KindCellVoltage Kind = 0x04
)

func (k Kind) String() string {
  switch k {
  case KindInfo:
    return "Info"
  case KindCellVoltage:
    return "CellVoltage"
  default:
    return "Kind(0x" + strconv.FormatUint(uint64(k), 16) + ")"
  }
}

// Variant tells whether a chunk started with the `DD cmd` header or was recognized only by
// its terminator and residual length.
type Variant uint8

const (
  VariantFull Variant = iota
  VariantTailFragment
)

func (v Variant) String() string {
  switch v {
  case VariantFull:
    return "Full"
  case VariantTailFragment:
    return "TailFragment"
  default:
    panic("unknown variant value: " + strconv.Itoa(int(v)))
  }
}

// FrameType is the closed set of kind x variant combinations understood by the decoder.
type FrameType uint8

const (
  FrameInfoFull FrameType = iota + 1
  FrameInfoTail
  FrameCellsFull
  FrameCellsTail
)

var frameTypes = [...]struct {
  kind    Kind
  variant Variant
  name    string
}{
  FrameInfoFull:  {KindInfo, VariantFull, "InfoFull"},
  FrameInfoTail:  {KindInfo, VariantTailFragment, "InfoTail"},
  FrameCellsFull: {KindCellVoltage, VariantFull, "CellsFull"},
  FrameCellsTail: {KindCellVoltage, VariantTailFragment, "CellsTail"},
}

func (t FrameType) valid() bool {
  return t >= FrameInfoFull && t <= FrameCellsTail
}

func (t FrameType) Kind() Kind {
  if !t.valid() {
    panic("unknown frame type: " + strconv.Itoa(int(t)))
  }
  return frameTypes[t].kind
}

func (t FrameType) Variant() Variant {
  if !t.valid() {
    panic("unknown frame type: " + strconv.Itoa(int(t)))
  }
  return frameTypes[t].variant
}

func (t FrameType) String() string {
  if !t.valid() {
    return "FrameType(" + strconv.Itoa(int(t)) + ")"
  }
  return frameTypes[t].name
}

// Frame is one recognized chunk with the span that the decoder is allowed to read.
type Frame struct {
  Type    FrameType
  Payload []byte
}

func (f Frame) String() string {
  return fmt.Sprintf("Frame[%v,%x]", f.Type, f.Payload)
}

// InfoLayout selects the firmware revision of the info tail fragment, which differs in the
// number of temperature sensors it carries.
type InfoLayout uint8

const (
  InfoLayoutFourSensors InfoLayout = iota
  InfoLayoutTwoSensors
)

func ParseInfoLayout(s string) (InfoLayout, error) {
  switch s {
  case "", "4ntc", "4":
    return InfoLayoutFourSensors, nil
  case "2ntc", "2":
    return InfoLayoutTwoSensors, nil
  default:
    return 0, fmt.Errorf("unknown info layout %q (must be one of 4ntc, 2ntc)", s)
  }
}

func (l InfoLayout) Sensors() int {
  switch l {
  case InfoLayoutFourSensors:
    return 4
  case InfoLayoutTwoSensors:
    return 2
  default:
    panic("unknown info layout: " + strconv.Itoa(int(l)))
  }
}

func (l InfoLayout) String() string {
  return strconv.Itoa(l.Sensors()) + "ntc"
}
