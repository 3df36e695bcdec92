package reading

import (
	"bytes"
	"strconv"
	"strings"
)

// RecordType tags the human-readable line encoding of a reading.
const RecordType = "STATE"

// Wire field names.
const (
	KeySoil = "soil"
	KeyTemp = "temp"
	KeyHum  = "hum"
	KeyMQ2  = "mq2"
	KeyRain = "rain"
	KeyBio  = "bio"

	keyLine   = "line"
	keyFields = "json"
)

// Reading is one sample of the six sensor channels.
type Reading struct {
	Soil int64   // soil moisture, raw ADC count
	Temp float64 // temperature, degrees Celsius
	Hum  float64 // relative humidity, percent
	MQ2  int64   // gas / air quality index
	Rain int64   // rain index
	Bio  int64   // bioelectric signal
}

// field describes one sensor channel on the wire.
type field struct {
	key      string
	integral bool
	get      func(*Reading) float64
	set      func(*Reading, float64)
}

var fields = []field{
	{KeySoil, true, func(r *Reading) float64 { return float64(r.Soil) }, func(r *Reading, v float64) { r.Soil = int64(v) }},
	{KeyTemp, false, func(r *Reading) float64 { return r.Temp }, func(r *Reading, v float64) { r.Temp = v }},
	{KeyHum, false, func(r *Reading) float64 { return r.Hum }, func(r *Reading, v float64) { r.Hum = v }},
	{KeyMQ2, true, func(r *Reading) float64 { return float64(r.MQ2) }, func(r *Reading, v float64) { r.MQ2 = int64(v) }},
	{KeyRain, true, func(r *Reading) float64 { return float64(r.Rain) }, func(r *Reading, v float64) { r.Rain = int64(v) }},
	{KeyBio, true, func(r *Reading) float64 { return float64(r.Bio) }, func(r *Reading, v float64) { r.Bio = int64(v) }},
}

// Keys returns the six sensor field names in wire order.
func Keys() []string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.key
	}
	return keys
}

// formatValue renders a field value. Fractional channels always carry a
// decimal point so 19 is written as 19.0.
func formatValue(f field, v float64) string {
	if f.integral {
		return strconv.FormatInt(int64(v), 10)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Line returns the semicolon-delimited encoding of r, e.g.
// "STATE;soil=395;temp=22.9;hum=19.0;mq2=85;rain=1020;bio=513".
func (r Reading) Line() string {
	var b strings.Builder
	b.WriteString(RecordType)
	for _, f := range fields {
		b.WriteByte(';')
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(formatValue(f, f.get(&r)))
	}
	return b.String()
}

// appendJSON appends the nested numeric object for r.
func (r Reading) appendJSON(buf *bytes.Buffer) {
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(f.key))
		buf.WriteByte(':')
		buf.WriteString(formatValue(f, f.get(&r)))
	}
	buf.WriteByte('}')
}

// Payload is the canonical, immutable unit stored and broadcast: the line
// encoding of a reading paired with the structured reading itself.
type Payload struct {
	line    string
	reading Reading
	encoded []byte
}

// NewPayload builds the canonical payload for r.
func NewPayload(r Reading) Payload {
	line := r.Line()

	var buf bytes.Buffer
	buf.WriteString(`{"line":`)
	buf.WriteString(strconv.Quote(line))
	buf.WriteString(`,"json":`)
	r.appendJSON(&buf)
	buf.WriteByte('}')

	return Payload{
		line:    line,
		reading: r,
		encoded: buf.Bytes(),
	}
}

// Line returns the human-readable encoding.
func (p Payload) Line() string { return p.line }

// Reading returns the structured reading.
func (p Payload) Reading() Reading { return p.reading }

// IsZero reports whether p was never built by NewPayload or Validate.
func (p Payload) IsZero() bool { return p.encoded == nil }

// Bytes returns the canonical wire encoding. The slice is shared and must
// not be modified.
func (p Payload) Bytes() []byte { return p.encoded }

// MarshalJSON implements json.Marshaler with the canonical encoding.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.encoded == nil {
		return []byte("null"), nil
	}
	out := make([]byte, len(p.encoded))
	copy(out, p.encoded)
	return out, nil
}

// String returns the wire encoding as a string.
func (p Payload) String() string { return string(p.encoded) }
