package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies one of the three JSON resources a device serves.
type Kind int

const (
	// KindData is the live measurement resource (data.jsn), polled every cycle.
	KindData Kind = iota
	// KindInfo is the static identity resource (mypv_dev.jsn), fetched once.
	KindInfo
	// KindSetup is the slow-changing configuration resource (setup.jsn).
	KindSetup
)

// Kinds lists every resource kind in fetch order.
var Kinds = []Kind{KindData, KindInfo, KindSetup}

// String returns the short resource name used in logs and API output.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindInfo:
		return "info"
	case KindSetup:
		return "setup"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ErrNotObject is returned by Decode when the body is valid JSON but not an object.
var ErrNotObject = errors.New("top-level JSON value is not an object")

// Resource is one decoded JSON resource: a flat mapping from key to a JSON
// scalar or array. Numbers are kept as json.Number so no precision is lost
// before a typed accessor is asked for them.
//
// A Resource is never mutated after it has been placed in a Snapshot.
type Resource map[string]any

// Decode parses a device response body into a Resource.
func Decode(body []byte) (Resource, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Resource(obj), nil
}

// Has reports whether key is present with a non-null value.
func (r Resource) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// Raw returns the decoded value for key.
func (r Resource) Raw(key string) (any, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Int returns key as an integer. Whole floats and numeric strings are
// accepted; anything else reports absent.
func (r Resource) Int(key string) (int64, bool) {
	v, ok := r.Raw(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		return wholeFloat(t.String())
	case float64:
		return wholeFloatValue(t)
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		return wholeFloat(s)
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Float returns key as a float64. Numeric strings are accepted.
func (r Resource) Float(key string) (float64, bool) {
	v, ok := r.Raw(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil && isFinite(f)
	case float64:
		return t, isFinite(t)
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && isFinite(f)
	}
	return 0, false
}

// Bool returns key as a boolean. JSON booleans, numbers (non-zero is true)
// and the strings "1", "0", "true", "false", "on", "off" are accepted.
func (r Resource) Bool(key string) (bool, bool) {
	v, ok := r.Raw(key)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "on":
			return true, true
		case "0", "false", "off":
			return false, true
		}
		return false, false
	}
	f, ok := r.Float(key)
	if !ok {
		return false, false
	}
	return f != 0, true
}

// String returns key as a string. Numbers are rendered in their original
// textual form and booleans as "true"/"false".
func (r Resource) String(key string) (string, bool) {
	v, ok := r.Raw(key)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}

func wholeFloat(s string) (int64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return wholeFloatValue(f)
}

func wholeFloatValue(f float64) (int64, bool) {
	if !isFinite(f) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
