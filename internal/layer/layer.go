package layer

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/moire/internal/pattern"
)

// Kind names a layer generator.
type Kind string

const (
	KindLines Kind = "lines"
	KindHex   Kind = "hex"
)

// Defaults applied when a Spec omits a parameter.
const (
	DefaultPitch    = 10.0
	DefaultConstant = 20.0
	DefaultAngle    = 0.0
)

// Layer is a validated layer: either Lines or Hex.
type Layer interface {
	Kind() Kind
	// Generate evaluates the layer on a resolution x resolution canvas.
	Generate(resolution int) (*pattern.Field, error)
	// Spec converts the layer back to its parameter mapping.
	Spec() Spec

	isLayer()
}

// Lines is a sinusoidal line grating.
type Lines struct {
	Pitch float64
	Angle float64
}

// Hex is a Gaussian-peaked hexagonal lattice.
type Hex struct {
	Constant float64
	Angle    float64
}

func (Lines) Kind() Kind { return KindLines }
func (Hex) Kind() Kind   { return KindHex }
func (Lines) isLayer()   {}
func (Hex) isLayer()     {}

func (l Lines) Generate(resolution int) (*pattern.Field, error) {
	return pattern.LineGrating(resolution, resolution, l.Pitch, l.Angle)
}

func (h Hex) Generate(resolution int) (*pattern.Field, error) {
	return pattern.HexLattice(resolution, resolution, h.Constant, h.Angle)
}

func (l Lines) Spec() Spec {
	return Spec{"type": string(KindLines), "pitch": l.Pitch, "angle": l.Angle}
}

func (h Hex) Spec() Spec {
	return Spec{"type": string(KindHex), "const": h.Constant, "angle": h.Angle}
}

// FromSpec resolves a Spec into a typed layer. It returns ErrUnknownType for
// an unrecognized type and pattern.ErrInvalidParameter for a non-numeric,
// non-finite or non-positive pitch/constant or a non-finite angle.
func FromSpec(s Spec) (Layer, error) {
	kind := Kind(s.Type())
	var sizeKey string
	var sizeDefault float64
	switch kind {
	case KindLines:
		sizeKey, sizeDefault = "pitch", DefaultPitch
	case KindHex:
		sizeKey, sizeDefault = "const", DefaultConstant
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, string(kind))
	}

	size, err := s.Number(sizeKey, sizeDefault)
	if err != nil {
		return nil, err
	}
	if !(size > 0) || math.IsInf(size, 0) {
		return nil, fmt.Errorf("%w: %s must be a positive finite number, got %v", pattern.ErrInvalidParameter, sizeKey, size)
	}
	angle, err := s.Number("angle", DefaultAngle)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return nil, fmt.Errorf("%w: angle must be finite, got %v", pattern.ErrInvalidParameter, angle)
	}

	if kind == KindHex {
		return Hex{Constant: size, Angle: angle}, nil
	}
	return Lines{Pitch: size, Angle: angle}, nil
}
