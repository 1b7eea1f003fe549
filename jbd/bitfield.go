package jbd

import (
  "fmt"
  "strings"
)

// Protection trip flags, most significant bit first.
var ProtectionFlagNames = []string{
  "ovp", // cell overvoltage
  "uvp", // cell undervoltage
  "bov", // pack overvoltage
  "buv", // pack undervoltage
  "cot", // charge over temperature
  "cut", // charge under temperature
  "dot", // discharge over temperature
  "dut", // discharge under temperature
  "coc", // charge overcurrent
  "duc", // discharge overcurrent
  "sc",  // short circuit
  "ic",  // front-end IC failure
  "cnf", // software lock / configuration
}

// Balancing flags, most significant bit first: bit 15 is cell 16, bit 0 is cell 1.
var BalanceFlagNames = []string{
  "c16", "c15", "c14", "c13", "c12", "c11", "c10", "c09",
  "c08", "c07", "c06", "c05", "c04", "c03", "c02", "c01",
}

type Flag struct {
  Name string
  Set  bool
}

// Flags is an ordered set of named bits; index 0 maps to the most significant bit.
type Flags []Flag

// DecodeFlags maps names[i] to bit (15 - i) of word.
func DecodeFlags(word uint16, names []string) Flags {
  if len(names) > 16 {
    panic(fmt.Sprintf("cannot decode %d flags from a 16-bit word", len(names)))
  }

  out := make(Flags, len(names))

  for i, name := range names {
    out[i] = Flag{
      Name: name,
      Set:  (word>>(15-i))&1 == 1,
    }
  }

  return out
}

// Word rebuilds the bits covered by the flags.
func (f Flags) Word() (word uint16) {
  for i, flag := range f {
    if flag.Set {
      word |= 1 << (15 - i)
    }
  }

  return word
}

func (f Flags) Get(name string) bool {
  for _, flag := range f {
    if flag.Name == name {
      return flag.Set
    }
  }

  return false
}

// Active returns the names of the set flags in bit order.
func (f Flags) Active() (names []string) {
  for _, flag := range f {
    if flag.Set {
      names = append(names, flag.Name)
    }
  }

  return names
}

func (f Flags) String() string {
  active := f.Active()

  if len(active) == 0 {
    return "none"
  }

  return strings.Join(active, ",")
}

type ProtectionFlags struct {
  Raw uint16
  Flags
}

func DecodeProtection(word uint16) ProtectionFlags {
  return ProtectionFlags{Raw: word, Flags: DecodeFlags(word, ProtectionFlagNames)}
}

func (ProtectionFlags) record() {}

func (p ProtectionFlags) String() string {
  return fmt.Sprintf("Protection[0x%04x,%v]", p.Raw, p.Flags)
}

type BalanceFlags struct {
  Raw uint16
  Flags
}

func DecodeBalance(word uint16) BalanceFlags {
  return BalanceFlags{Raw: word, Flags: DecodeFlags(word, BalanceFlagNames)}
}

// Cell reports whether the 1-based cell is balancing.
func (b BalanceFlags) Cell(n int) bool {
  if n < 1 || n > 16 {
    return false
  }
  return b.Raw&(1<<(n-1)) != 0
}

func (BalanceFlags) record() {}

func (b BalanceFlags) String() string {
  return fmt.Sprintf("Balance[0x%04x,%v]", b.Raw, b.Flags)
}
