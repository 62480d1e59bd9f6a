package light

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ErrUnknownKind is returned when a light file names a variant that does not exist.
var ErrUnknownKind = errors.New("unknown light kind")

// record is the on-disk form of every variant. Fields a variant does not use stay zero.
type record struct {
	Kind          string     `toml:"kind"`
	Name          string     `toml:"name"`
	Color         [3]float32 `toml:"color,omitempty"`
	Power         float32    `toml:"power,omitempty"`
	Position      [3]float32 `toml:"position,omitempty"`
	Direction     [3]float32 `toml:"direction,omitempty"`
	Radius        float32    `toml:"radius,omitempty"`
	Length        float32    `toml:"length,omitempty"`
	Width         float32    `toml:"width,omitempty"`
	Height        float32    `toml:"height,omitempty"`
	AngularSize   float32    `toml:"angular_size,omitempty"`
	InnerAngle    float32    `toml:"inner_angle,omitempty"`
	OuterAngle    float32    `toml:"outer_angle,omitempty"`
	Profile       string     `toml:"profile,omitempty"`
	Rotation      float32    `toml:"rotation,omitempty"`
	RadianceScale [3]float32 `toml:"radiance_scale,omitempty"`
}

type file struct {
	Lights []record `toml:"light"`
}

func toRecord(l Light) record {
	r := record{Kind: l.Kind().String(), Name: l.ID()}
	switch v := l.(type) {
	case *Directional:
		r.Color, r.Power, r.Direction, r.AngularSize = v.Color, v.Irradiance, v.Direction, v.AngularSize
	case *Point:
		r.Color, r.Power, r.Position, r.Radius = v.Color, v.Intensity, v.Position, v.Radius
	case *Spot:
		r.Color, r.Power, r.Position, r.Radius = v.Color, v.Intensity, v.Position, v.Radius
		r.Direction, r.InnerAngle, r.OuterAngle, r.Profile = v.Direction, v.InnerAngle, v.OuterAngle, v.Profile
	case *Environment:
		r.RadianceScale, r.Rotation = v.RadianceScale, v.Rotation
	case *Cylinder:
		r.Color, r.Power, r.Position, r.Direction, r.Length, r.Radius = v.Color, v.Flux, v.Position, v.Direction, v.Length, v.Radius
	case *Disk:
		r.Color, r.Power, r.Position, r.Direction, r.Radius = v.Color, v.Flux, v.Position, v.Direction, v.Radius
	case *Rect:
		r.Color, r.Power, r.Position, r.Direction, r.Width, r.Height = v.Color, v.Flux, v.Position, v.Direction, v.Width, v.Height
	}
	return r
}

func fromRecord(r record) (Light, error) {
	kind, err := ParseKind(r.Kind)
	if err != nil {
		return nil, fmt.Errorf("light %q: %w", r.Name, err)
	}
	switch kind {
	case KindDirectional:
		return &Directional{Name: r.Name, Color: r.Color, Irradiance: r.Power, Direction: r.Direction, AngularSize: r.AngularSize}, nil
	case KindPoint:
		return &Point{Name: r.Name, Color: r.Color, Intensity: r.Power, Position: r.Position, Radius: r.Radius}, nil
	case KindSpot:
		return &Spot{
			Point:        Point{Name: r.Name, Color: r.Color, Intensity: r.Power, Position: r.Position, Radius: r.Radius},
			Direction:    r.Direction,
			InnerAngle:   r.InnerAngle,
			OuterAngle:   r.OuterAngle,
			Profile:      r.Profile,
			ProfileIndex: -1,
		}, nil
	case KindEnvironment:
		return &Environment{Name: r.Name, RadianceScale: r.RadianceScale, Rotation: r.Rotation, TextureIndex: -1}, nil
	case KindCylinder:
		return &Cylinder{Name: r.Name, Color: r.Color, Flux: r.Power, Position: r.Position, Direction: r.Direction, Length: r.Length, Radius: r.Radius}, nil
	case KindDisk:
		return &Disk{Name: r.Name, Color: r.Color, Flux: r.Power, Position: r.Position, Direction: r.Direction, Radius: r.Radius}, nil
	default:
		return &Rect{Name: r.Name, Color: r.Color, Flux: r.Power, Position: r.Position, Direction: r.Direction, Width: r.Width, Height: r.Height}, nil
	}
}

// Decode parses a TOML light list.
//
// Parameters:
//   - data: the TOML document, one [[light]] table per light
//
// Returns:
//   - []Light: the lights in file order
//   - error: a parse error or ErrUnknownKind
func Decode(data []byte) ([]Light, error) {
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode lights: %w", err)
	}
	out := make([]Light, 0, len(f.Lights))
	for _, r := range f.Lights {
		l, err := fromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// Encode writes lights as a TOML light list.
//
// Parameters:
//   - lights: the lights to write
//
// Returns:
//   - []byte: the TOML document
//   - error: an encoding error
func Encode(lights []Light) ([]byte, error) {
	f := file{Lights: make([]record, len(lights))}
	for i, l := range lights {
		f.Lights[i] = toRecord(l)
	}
	return toml.Marshal(f)
}

// Load reads a light file.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - []Light: the lights
//   - error: a read or parse error
func Load(path string) ([]Light, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Store writes lights to a light file.
//
// Parameters:
//   - path: the file path
//   - lights: the lights to write
//
// Returns:
//   - error: an encoding or write error
func Store(path string, lights []Light) error {
	data, err := Encode(lights)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
