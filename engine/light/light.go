// Package light holds the scene's primitive light sources. Lights are a closed set of tagged
// variants: every variant implements Light, and nothing outside the package can add one.
package light

import (
	"fmt"
	"math"
)

// Kind identifies the variant of a Light. The values are stable, they are written to the GPU
// light records and to light files.
type Kind uint32

const (
	// KindDirectional is an infinitely distant light with an angular size, like the sun.
	KindDirectional Kind = iota
	// KindPoint is a spherical light with a radius.
	KindPoint
	// KindSpot is a point light limited to a cone, optionally shaped by an IES profile.
	KindSpot
	// KindEnvironment is the sky, sampled from the environment map.
	KindEnvironment
	// KindCylinder is a tube light along its direction.
	KindCylinder
	// KindDisk is a one-sided disk facing its direction.
	KindDisk
	// KindRect is a one-sided rectangle facing its direction.
	KindRect
)

var kindNames = []string{"directional", "point", "spot", "environment", "cylinder", "disk", "rect"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint32(k))
}

// ParseKind returns the Kind named s.
//
// Parameters:
//   - s: the kind name as written in light files
//
// Returns:
//   - Kind: the kind
//   - error: ErrUnknownKind
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Light is a primitive light source.
type Light interface {
	// Kind returns the variant tag.
	Kind() Kind

	// ID returns the light's name in the scene.
	ID() string

	// Infinite reports whether the light has no position. Infinite lights are stored after every
	// local light in the light buffer.
	Infinite() bool

	// GPU returns the packed record of the light.
	GPU() GPULight

	sealed()
}

// Directional is a distant light.
type Directional struct {
	Name       string
	Color      [3]float32
	Irradiance float32
	Direction  [3]float32
	// AngularSize is the apparent diameter in degrees.
	AngularSize float32
}

// Point is a spherical light.
type Point struct {
	Name      string
	Color     [3]float32
	Intensity float32
	Position  [3]float32
	Radius    float32
}

// Spot is a cone-limited spherical light.
type Spot struct {
	Point
	Direction [3]float32
	// InnerAngle and OuterAngle are cone half-angles in degrees.
	InnerAngle float32
	OuterAngle float32
	// Profile names an IES profile. ProfileIndex is the profile's texture index, -1 when none is
	// resolved.
	Profile      string
	ProfileIndex int32
}

// Environment is the sky light.
type Environment struct {
	Name          string
	RadianceScale [3]float32
	// TextureIndex is the environment map's texture index, -1 for the procedural sky.
	TextureIndex int32
	// Rotation turns the map around the up axis, in revolutions.
	Rotation    float32
	TextureSize [2]uint32
}

// Cylinder is a tube light.
type Cylinder struct {
	Name      string
	Color     [3]float32
	Flux      float32
	Position  [3]float32
	Direction [3]float32
	Length    float32
	Radius    float32
}

// Disk is a one-sided disk light.
type Disk struct {
	Name      string
	Color     [3]float32
	Flux      float32
	Position  [3]float32
	Direction [3]float32
	Radius    float32
}

// Rect is a one-sided rectangular light.
type Rect struct {
	Name      string
	Color     [3]float32
	Flux      float32
	Position  [3]float32
	Direction [3]float32
	Width     float32
	Height    float32
}

var (
	_ Light = &Directional{}
	_ Light = &Point{}
	_ Light = &Spot{}
	_ Light = &Environment{}
	_ Light = &Cylinder{}
	_ Light = &Disk{}
	_ Light = &Rect{}
)

func (l *Directional) Kind() Kind     { return KindDirectional }
func (l *Directional) ID() string     { return l.Name }
func (l *Directional) Infinite() bool { return true }
func (l *Directional) sealed()        {}

func (l *Point) Kind() Kind     { return KindPoint }
func (l *Point) ID() string     { return l.Name }
func (l *Point) Infinite() bool { return false }
func (l *Point) sealed()        {}

func (l *Spot) Kind() Kind { return KindSpot }

func (l *Environment) Kind() Kind     { return KindEnvironment }
func (l *Environment) ID() string     { return l.Name }
func (l *Environment) Infinite() bool { return true }
func (l *Environment) sealed()        {}

func (l *Cylinder) Kind() Kind     { return KindCylinder }
func (l *Cylinder) ID() string     { return l.Name }
func (l *Cylinder) Infinite() bool { return false }
func (l *Cylinder) sealed()        {}

func (l *Disk) Kind() Kind     { return KindDisk }
func (l *Disk) ID() string     { return l.Name }
func (l *Disk) Infinite() bool { return false }
func (l *Disk) sealed()        {}

func (l *Rect) Kind() Kind     { return KindRect }
func (l *Rect) ID() string     { return l.Name }
func (l *Rect) Infinite() bool { return false }
func (l *Rect) sealed()        {}

// Clone returns a deep copy of l.
//
// Parameters:
//   - l: the light to copy
//
// Returns:
//   - Light: the copy, of the same variant
func Clone(l Light) Light {
	switch v := l.(type) {
	case *Directional:
		c := *v
		return &c
	case *Point:
		c := *v
		return &c
	case *Spot:
		c := *v
		return &c
	case *Environment:
		c := *v
		return &c
	case *Cylinder:
		c := *v
		return &c
	case *Disk:
		c := *v
		return &c
	case *Rect:
		c := *v
		return &c
	}
	return nil
}

// normalize returns v scaled to unit length, or +Z for a zero vector.
func normalize(v [3]float32) [3]float32 {
	l := float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
	if l == 0 {
		return [3]float32{0, 0, 1}
	}
	return [3]float32{v[0] / l, v[1] / l, v[2] / l}
}

func cosDegrees(deg float32) float32 {
	return float32(math.Cos(float64(deg) * math.Pi / 180))
}
