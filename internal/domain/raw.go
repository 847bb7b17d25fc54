package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawRecord is an upstream product record as decoded from JSON. Field names
// drift between upstream versions, so accessors take several alias keys and
// return the first usable value.
type RawRecord map[string]any

// String returns the first non-empty string (or stringified number) found
// under keys.
func (r RawRecord) String(keys ...string) string {
	for _, key := range keys {
		v, ok := r[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case int:
			return strconv.Itoa(t)
		case fmt.Stringer:
			return t.String()
		}
	}
	return ""
}

// Number returns the first finite number found under keys. Strings such as
// "$50,000" or "12.5%" are parsed leniently.
func (r RawRecord) Number(keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := r[key]
		if !ok || v == nil {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// Bool returns the first boolean found under keys. Status strings such as
// "active"/"inactive" are understood.
func (r RawRecord) Bool(keys ...string) (bool, bool) {
	for _, key := range keys {
		v, ok := r[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case bool:
			return t, true
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "yes", "1", "active", "enabled":
				return true, true
			case "false", "no", "0", "inactive", "disabled", "archived":
				return false, true
			}
		case float64:
			return t != 0, true
		}
	}
	return false, false
}

// Strings returns the first string list found under keys. A single string is
// returned as a one-element list.
func (r RawRecord) Strings(keys ...string) []string {
	for _, key := range keys {
		v, ok := r[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case []string:
			return t
		case []any:
			out := make([]string, 0, len(t))
			for _, item := range t {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return []string{s}
			}
		}
	}
	return nil
}

// Time returns the first RFC 3339 timestamp found under keys
func (r RawRecord) Time(keys ...string) (time.Time, bool) {
	for _, key := range keys {
		s, ok := r[key].(string)
		if !ok {
			continue
		}
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Merge returns a copy of r with every key of overlay applied on top
func (r RawRecord) Merge(overlay RawRecord) RawRecord {
	out := make(RawRecord, len(r)+len(overlay))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		cleaned := strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(t)
		if cleaned == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
