package jbd_test

import (
  "encoding/binary"

  "github.com/robertof/go-jbd-exporter/jbd"
)

func u16(vs ...uint16) []byte {
  out := make([]byte, 0, 2*len(vs))

  for _, v := range vs {
    out = binary.BigEndian.AppendUint16(out, v)
  }

  return out
}

// response wraps data into a complete `DD cmd 00 len data crc 77` frame.
func response(k jbd.Kind, data []byte) []byte {
  body := append([]byte{0x00, byte(len(data))}, data...)
  crc := jbd.Checksum(body)

  frame := append([]byte{0xdd, byte(k)}, body...)
  frame = binary.BigEndian.AppendUint16(frame, crc)

  return append(frame, 0x77)
}

func infoData(temps ...uint16) []byte {
  return infoDataCells(16, temps...)
}

func infoDataCells(cells byte, temps ...uint16) []byte {
  data := u16(
    1320,   // 13.20 V
    0xff6a, // -1.50 A
    4000,   // 40.00 Ah
    10000,  // 100.00 Ah
    42,     // cycles
    0x2a8f, // manufacture date
    0x0005, // balancing cells 1 and 3
    0x0000,
  )
  data = append(data, u16(0x0800)...)                        // cot
  data = append(data, 0x10, 40, 0x03, cells, byte(len(temps))) // version, percent, fet, cells, sensors
  data = append(data, u16(temps...)...)

  return data
}

var (
  firstCells  = []uint16{3300, 3310, 3290, 3305, 3295, 3312, 3301, 3298}
  secondCells = []uint16{3315, 3289, 3300, 3307, 3293, 3302, 3299, 3296}
)

func cellsResponse() []byte {
  return cellsResponseN(jbd.MaxCells)
}

// cellsResponseN answers for a pack of n cells, taken from firstCells then secondCells.
func cellsResponseN(n int) []byte {
  all := append(append([]uint16(nil), firstCells...), secondCells...)
  return response(jbd.KindCellVoltage, u16(all[:n]...))
}
