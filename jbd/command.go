package jbd

import (
  "encoding/binary"

  "github.com/pkg/errors"
)

const (
  cmdRead byte = 0xa5
)

// Checksum is the JBD frame checksum: 0x10000 minus the byte sum.
func Checksum(b []byte) uint16 {
  var sum uint16

  for _, c := range b {
    sum += uint16(c)
  }

  return ^sum + 1
}

// Request builds the read command for k, e.g. `DD A5 03 00 FF FD 77` for KindInfo.
func Request(k Kind) []byte {
  body := []byte{byte(k), 0x00}
  crc := Checksum(body)

  return []byte{frameStart, cmdRead, body[0], body[1], byte(crc >> 8), byte(crc), frameEnd}
}

// VerifyFrame checks a complete response frame (`DD cmd status len data crc 77`).
func VerifyFrame(b []byte) (Kind, error) {
  if len(b) < headerLen+trailerLen {
    return 0, errors.Errorf("frame too short (%d bytes)", len(b))
  }

  if b[0] != frameStart || b[len(b)-1] != frameEnd {
    return 0, errors.Errorf("missing frame markers (%02x..%02x)", b[0], b[len(b)-1])
  }

  if want := int(b[3]) + headerLen + trailerLen; want != len(b) {
    return 0, errors.Errorf("length byte says %d bytes, got %d", want, len(b))
  }

  crc := Checksum(b[2 : len(b)-trailerLen])
  got := binary.BigEndian.Uint16(b[len(b)-trailerLen:])

  if crc != got {
    return 0, errors.Errorf("checksum mismatch (want %04x, got %04x)", crc, got)
  }

  if b[2] != statusOK {
    return 0, errors.Errorf("device returned error status %02x", b[2])
  }

  return Kind(b[1]), nil
}

// Segment splits a buffer at the BLE notification size, producing the same chunks a BLE
// transport would deliver.
func Segment(b []byte) [][]byte {
  var out [][]byte

  for len(b) > ChunkSize {
    out = append(out, b[:ChunkSize:ChunkSize])
    b = b[ChunkSize:]
  }

  if len(b) > 0 {
    out = append(out, b)
  }

  return out
}
