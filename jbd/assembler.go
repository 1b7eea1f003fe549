package jbd

import (
  "errors"
  "fmt"
)

var (
  ErrUnrecognizedFrame = errors.New("unrecognized frame")
  ErrProtocolAnomaly   = errors.New("protocol anomaly")
)

// Assembler turns transport chunks into frames. It keeps no state between chunks: a tail
// fragment is emitted as its own frame and never merged with the header chunk before it.
type Assembler struct {
  classifier Classifier
}

func NewAssembler(l InfoLayout) Assembler {
  return Assembler{classifier: NewClassifier(l)}
}

// WithCellCount returns an assembler that expects cell voltage responses of an n cell pack.
func (a Assembler) WithCellCount(n int) Assembler {
  return Assembler{classifier: a.classifier.WithCellCount(n)}
}

// Next returns the frame carried by chunk. The payload is copied so the caller may reuse
// the chunk buffer.
func (a Assembler) Next(chunk []byte) (Frame, error) {
  t, ok := a.classifier.match(chunk)

  if !ok {
    return Frame{}, fmt.Errorf("%w: %d byte chunk matches no %v template", ErrUnrecognizedFrame,
      len(chunk), a.classifier.layout)
  }

  f := t.frame(chunk)
  f.Payload = append([]byte(nil), f.Payload...)

  return f, nil
}
