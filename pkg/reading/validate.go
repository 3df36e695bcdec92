package reading

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"math"
	"sort"
	"strings"

	"github.com/sprout-iot/sprout/internal/errors"
)

// maxIntegral is 2^63, the first float64 that does not fit an int64.
const maxIntegral float64 = 1 << 63

// ErrRejected is wrapped by every validation failure.
var ErrRejected = stderrors.New("reading: candidate rejected")

// Validate decodes a candidate frame and checks its shape. On success it
// returns the canonical payload; on failure it returns a validation
// *errors.SproutError wrapping ErrRejected and has no other effect.
//
// The top-level object must carry a string "line" and an object "json" with
// exactly the six sensor keys, all numeric. Integral channels accept float
// representations of whole numbers (395.0) but not fractional values.
// Additional top-level keys are ignored.
func Validate(candidate []byte) (Payload, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(candidate, &top); err != nil || top == nil {
		return Payload{}, reject("E100", "candidate does not decode to an object")
	}

	rawLine, ok := top[keyLine]
	if !ok {
		return Payload{}, reject("E101", "")
	}
	// Unmarshal leaves a string untouched for null, so decode through a
	// pointer to tell the two apart.
	var line *string
	if err := json.Unmarshal(rawLine, &line); err != nil || line == nil {
		return Payload{}, reject("E101", `"line" is not a string`)
	}

	rawFields, ok := top[keyFields]
	if !ok {
		return Payload{}, reject("E102", "")
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(rawFields, &values); err != nil || values == nil {
		return Payload{}, reject("E102", `"json" is not an object`)
	}

	var r Reading
	for _, f := range fields {
		raw, ok := values[f.key]
		if !ok {
			return Payload{}, reject("E104", `key "`+f.key+`" missing`)
		}
		v, ok := decodeNumber(raw)
		if !ok {
			return Payload{}, reject("E103", `key "`+f.key+`" is not numeric`)
		}
		if f.integral && (v != math.Trunc(v) || v >= maxIntegral || v < -maxIntegral) {
			return Payload{}, reject("E106", `key "`+f.key+`" must be a whole number`)
		}
		f.set(&r, v)
	}

	if len(values) != len(fields) {
		return Payload{}, reject("E105", "unexpected keys: "+strings.Join(extraKeys(values), ", "))
	}

	return NewPayload(r), nil
}

// decodeNumber reports whether raw is a JSON number and returns its value.
func decodeNumber(raw json.RawMessage) (float64, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func extraKeys(values map[string]json.RawMessage) []string {
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.key] = true
	}
	var extra []string
	for k := range values {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}

func reject(code, detail string) error {
	err := errors.New(code).Wrap(ErrRejected)
	if detail != "" {
		err.WithDetail(detail)
	}
	return err
}

// Reason returns a short description of why err rejected a candidate,
// suitable for a log field.
func Reason(err error) string {
	var se *errors.SproutError
	if stderrors.As(err, &se) {
		return se.FormatCompact()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
