package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Format string

const (
	FormatCSV    Format = "csv"
	FormatInflux Format = "influx"
	FormatJSON   Format = "json"
	FormatNone   Format = "none"
)

var AllFormats = []Format{FormatCSV, FormatInflux, FormatJSON, FormatNone}

func (f *Format) String() string {
	return string(*f)
}

func (f *Format) Set(v string) error {
	switch Format(v) {
	case FormatCSV, FormatInflux, FormatJSON, FormatNone:
		*f = Format(v)
		return nil
	case "":
		*f = FormatNone
		return nil
	}

	return fmt.Errorf("unknown output format %q (must be one of %v)", v, AllFormats)
}

func formatValue(f Field) string {
	return strconv.FormatFloat(f.Value, 'f', f.Precision, 64)
}

// Encode renders p in format f. FormatNone yields nil.
func (f Format) Encode(p Point) []byte {
	switch f {
	case FormatCSV:
		return encodeCSV(p)
	case FormatInflux:
		return encodeInflux(p)
	case FormatJSON:
		return encodeJSON(p)
	case FormatNone:
		return nil
	default:
		panic("unknown telemetry format: " + string(f))
	}
}

// `meter,volts,amps\r\nbms0,13.20,-1.50`
func encodeCSV(p Point) []byte {
	var header, values strings.Builder

	header.WriteString("meter")
	values.WriteString(p.Meter)

	for _, f := range p.Fields {
		header.WriteString("," + f.Key)
		values.WriteString("," + formatValue(f))
	}

	return []byte(header.String() + "\r\n" + values.String())
}

var influxEscaper = strings.NewReplacer(",", `\,`, " ", `\ `, "=", `\=`)

// `pack,meter=bms0 volts=13.20,amps=-1.50 1700000000000000000`
func encodeInflux(p Point) []byte {
	var b bytes.Buffer

	b.WriteString(influxEscaper.Replace(p.Measurement))
	b.WriteString(",meter=")
	b.WriteString(influxEscaper.Replace(p.Meter))

	for i, f := range p.Fields {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteByte(',')
		}

		b.WriteString(influxEscaper.Replace(f.Key))
		b.WriteByte('=')
		b.WriteString(formatValue(f))
	}

	if !p.Time.IsZero() {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(p.Time.UnixNano(), 10))
	}

	return b.Bytes()
}

// Field order is preserved.
func encodeJSON(p Point) []byte {
	var b bytes.Buffer

	str := func(s string) {
		enc, _ := json.Marshal(s)
		b.Write(enc)
	}

	b.WriteString(`{"meter":`)
	str(p.Meter)
	b.WriteString(`,"measurement":`)
	str(p.Measurement)

	for _, f := range p.Fields {
		b.WriteByte(',')
		str(f.Key)
		b.WriteByte(':')
		b.WriteString(formatValue(f))
	}

	if !p.Time.IsZero() {
		b.WriteString(`,"time":`)
		str(p.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	}

	b.WriteByte('}')

	return b.Bytes()
}
