// Package layer parses layer definitions and turns them into typed layers.
//
// A definition is a ';'-separated list of key=value segments, for example
// "type=hex;const=30;angle=15". Values that parse as floats are stored as
// float64, everything else as the trimmed string.
package layer

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/moire/internal/pattern"
)

var (
	// ErrMalformedSpec is returned when a definition does not follow the
	// key=value grammar. The whole definition is rejected.
	ErrMalformedSpec = errors.New("layer: malformed layer definition")

	// ErrUnknownType is returned for a type other than lines or hex.
	ErrUnknownType = errors.New("layer: unknown layer type")
)

// Spec maps parameter names to values (float64 or string). Unknown keys are
// carried along and ignored by FromSpec. Treat a Spec as read-only once
// parsed; WithAngle returns a modified copy.
type Spec map[string]any

// Parse converts a definition string into a Spec.
//
// Blank input yields an empty Spec. Empty segments (from stray or trailing
// semicolons) are skipped, but input made only of separators is malformed.
// Every remaining segment must contain exactly one '=' with a non-empty key
// and value after trimming.
func Parse(def string) (Spec, error) {
	if strings.TrimSpace(def) == "" {
		return Spec{}, nil
	}

	var parts []string
	for _, part := range strings.Split(def, ";") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %q has no key=value segments", ErrMalformedSpec, def)
	}

	spec := make(Spec, len(parts))
	for _, part := range parts {
		if strings.Count(part, "=") != 1 {
			return nil, fmt.Errorf("%w: segment %q must be a single key=value pair", ErrMalformedSpec, part)
		}
		key, value, _ := strings.Cut(part, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			return nil, fmt.Errorf("%w: segment %q has an empty key or value", ErrMalformedSpec, part)
		}

		if f, ok := parseNumber(value); ok {
			spec[key] = f
		} else {
			spec[key] = value
		}
	}
	return spec, nil
}

// parseNumber accepts decimal floats, inf and nan in any case, and single
// underscores between digits ("1_000"). Out-of-range values become ±Inf.
// Hexadecimal literals are not numbers.
func parseNumber(s string) (float64, bool) {
	if strings.ContainsAny(s, "xX") {
		return 0, false
	}
	if strings.Contains(s, "_") {
		for i := 0; i < len(s); i++ {
			if s[i] == '_' && (i == 0 || i == len(s)-1 || !isDigit(s[i-1]) || !isDigit(s[i+1])) {
				return 0, false
			}
		}
		s = strings.ReplaceAll(s, "_", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return f, true
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

// Format renders s back into the definition syntax with keys sorted, so
// equal specs always format identically.
func Format(s Spec) string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatValue(s[k]))
	}
	return strings.Join(parts, ";")
}

// FormatAll joins several specs with " | ".
func FormatAll(specs []Spec) string {
	parts := make([]string, len(specs))
	for i, s := range specs {
		parts[i] = Format(s)
	}
	return strings.Join(parts, " | ")
}

func formatValue(v any) string {
	switch v := v.(type) {
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Type returns the layer type, defaulting to lines.
func (s Spec) Type() string {
	v, ok := s["type"]
	if !ok {
		return string(KindLines)
	}
	return formatValue(v)
}

// Number returns the numeric value of key, or def when the key is absent.
// A non-numeric value is an invalid parameter.
func (s Spec) Number(key string, def float64) (float64, error) {
	v, ok := s[key]
	if !ok {
		return def, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s=%v is not a number", pattern.ErrInvalidParameter, key, v)
	}
	return f, nil
}

// WithAngle returns a copy of s with its angle increased by delta degrees.
func (s Spec) WithAngle(delta float64) (Spec, error) {
	angle, err := s.Number("angle", DefaultAngle)
	if err != nil {
		return nil, err
	}
	out := make(Spec, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out["angle"] = angle + delta
	return out, nil
}
