package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robertof/go-jbd-exporter/jbd"
)

type Field struct {
	Key string
	Value float64
	// decimals kept when the value is rendered as text
	Precision int
}

// Point is one named group of fields, the unit every sink publishes.
type Point struct {
	Measurement string
	Meter string
	// Gauge points are the frequently changing electrical values; the others describe state.
	Gauge bool
	Time time.Time
	Fields []Field
}

func (p Point) String() string {
	fields := make([]string, len(p.Fields))

	for i, f := range p.Fields {
		fields[i] = f.Key + "=" + formatValue(f)
	}

	return fmt.Sprintf("%v[meter=%v,%v]", p.Measurement, p.Meter, strings.Join(fields, ","))
}

func (p Point) Value(key string) (float64, bool) {
	for _, f := range p.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}

	return 0, false
}

func bit(set bool) float64 {
	if set {
		return 1
	}
	return 0
}

func flagFields(flags jbd.Flags) []Field {
	out := make([]Field, len(flags))

	for i, f := range flags {
		out[i] = Field{Key: f.Name, Value: bit(f.Set)}
	}

	return out
}

// FromRecord converts a decoded record into the point published for it.
func FromRecord(meter string, rec jbd.Record, at time.Time) Point {
	p := Point{Meter: meter, Time: at}

	switch r := rec.(type) {
	case jbd.InfoRecord:
		if r.Variant == jbd.VariantFull {
			p.Measurement, p.Gauge = "pack", true
			p.Fields = []Field{
				{"volts", r.Volts(), 2},
				{"amps", r.Amps(), 2},
				{"watts", r.Watts(), 2},
				{"remain", r.RemainAh(), 2},
				{"capacity", r.CapacityAh(), 2},
				{"cycles", float64(r.Cycles), 0},
			}
		} else {
			p.Measurement = "status"
			p.Fields = []Field{
				{"protect", float64(r.Protect), 0},
				{"percent", float64(r.Percent), 0},
				{"fet", float64(r.FET), 0},
				{"cells", float64(r.CellCount), 0},
			}

			for i, t := range r.Temperatures() {
				p.Fields = append(p.Fields, Field{fmt.Sprintf("temp%d", i+1), t, 1})
			}
		}

	case jbd.BalanceFlags:
		p.Measurement, p.Gauge = "balance", true
		// c01 first
		fields := flagFields(r.Flags)

		for i, j := 0, len(fields)-1; i < j; i, j = i+1, j-1 {
			fields[i], fields[j] = fields[j], fields[i]
		}

		p.Fields = fields

	case jbd.ProtectionFlags:
		p.Measurement = "protect"
		p.Fields = flagFields(r.Flags)

	case jbd.CellBlock:
		p.Measurement, p.Gauge = "cells", true

		for i, mv := range r.Millivolts {
			p.Fields = append(p.Fields, Field{fmt.Sprintf("cell%d", r.Index.FirstCell()+i), float64(mv), 0})
		}

	case jbd.PackSummary:
		p.Measurement, p.Gauge = "cellstats", true
		p.Fields = []Field{
			{"mincell", float64(r.MinCell), 0},
			{"cellsmin", float64(r.MinMillivolts), 0},
			{"maxcell", float64(r.MaxCell), 0},
			{"cellsmax", float64(r.MaxMillivolts), 0},
			{"delta", float64(r.DeltaMillivolts), 0},
		}

	default:
		panic(fmt.Sprintf("telemetry: unknown record type %T", rec))
	}

	return p
}

// EmitRecord publishes every point of rec through e.
func EmitRecord(ctx context.Context, e Emitter, meter string, rec jbd.Record, at time.Time) error {
	p := FromRecord(meter, rec, at)

	if err := e.Emit(ctx, p); err != nil {
		return fmt.Errorf("failed to emit %v: %w", p.Measurement, err)
	}

	return nil
}
