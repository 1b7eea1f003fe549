package jbd

import "bytes"

const (
  infoFullPayloadLen = 16
  infoTailFixedLen   = 7
)

// template is the fixed shape of one frame type: its exact chunk length and where the
// decodable payload lives inside it.
type template struct {
  typ           FrameType
  length        int
  payloadOffset int
  payloadLen    int
}

func (t template) frame(span []byte) Frame {
  return Frame{
    Type:    t.typ,
    Payload: span[t.payloadOffset : t.payloadOffset+t.payloadLen],
  }
}

func infoTailTemplate(l InfoLayout) template {
  payloadLen := infoTailFixedLen + 2*l.Sensors()

  return template{
    typ:        FrameInfoTail,
    length:     payloadLen + trailerLen,
    payloadLen: payloadLen,
  }
}

var (
  infoFullTemplate = template{
    typ:           FrameInfoFull,
    length:        headerLen + infoFullPayloadLen,
    payloadOffset: headerLen,
    payloadLen:    infoFullPayloadLen,
  }
)

// cellTemplates shapes the cell voltage response of an n cell pack. The header chunk carries
// at most the first block; whatever does not fit in ChunkSize bytes arrives as a tail
// fragment, which for 7 and 8 cells is only the checksum and terminator. Packs of up to 6
// cells answer in a single chunk and have no tail.
func cellTemplates(n int) (full template, tail template, hasTail bool) {
  dataLen := 2 * n
  total := headerLen + dataLen + trailerLen
  headData := min(dataLen, 2*CellsPerBlock)

  full = template{
    typ:           FrameCellsFull,
    length:        min(total, ChunkSize),
    payloadOffset: headerLen,
    payloadLen:    headData,
  }

  if total <= ChunkSize {
    return full, template{}, false
  }

  tail = template{
    typ:        FrameCellsTail,
    length:     total - ChunkSize,
    payloadLen: dataLen - headData,
  }

  return full, tail, true
}

// normalizeCellCount maps counts a block pair cannot carry to a full pack.
func normalizeCellCount(n int) int {
  if n < 1 || n > MaxCells {
    return MaxCells
  }
  return n
}

// Classifier recognizes chunks by their markers and exact length.
type Classifier struct {
  layout   InfoLayout
  cells    int
  full     []template
  tail     []template
  cellTail bool
}

// NewClassifier expects a full pack of 16 cells until WithCellCount says otherwise.
func NewClassifier(l InfoLayout) Classifier {
  return Classifier{layout: l}.WithCellCount(MaxCells)
}

// WithCellCount returns a classifier whose cell voltage templates fit an n cell pack.
func (c Classifier) WithCellCount(n int) Classifier {
  n = normalizeCellCount(n)
  cellsFull, cellsTail, hasTail := cellTemplates(n)

  c.cells = n
  c.cellTail = hasTail
  c.full = []template{infoFullTemplate, cellsFull}
  c.tail = []template{infoTailTemplate(c.layout)}

  if hasTail {
    c.tail = append(c.tail, cellsTail)
  }

  return c
}

func (c Classifier) Layout() InfoLayout {
  return c.layout
}

func (c Classifier) CellCount() int {
  return c.cells
}

// ExpectsTail reports whether the response to k spans a header chunk and a tail fragment.
func (c Classifier) ExpectsTail(k Kind) bool {
  return k != KindCellVoltage || c.cellTail
}

func (c Classifier) match(span []byte) (template, bool) {
  for _, t := range c.full {
    header := []byte{frameStart, byte(t.typ.Kind())}

    if len(span) == t.length && bytes.HasPrefix(span, header) && span[2] == statusOK {
      return t, true
    }
  }

  if len(span) == 0 || span[len(span)-1] != frameEnd {
    return template{}, false
  }

  for _, t := range c.tail {
    if len(span) == t.length {
      return t, true
    }
  }

  return template{}, false
}

// Classify returns the frame type of span, or false when no template matches.
func (c Classifier) Classify(span []byte) (FrameType, bool) {
  t, ok := c.match(span)
  return t.typ, ok
}
