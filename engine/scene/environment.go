package scene

import (
	"encoding/binary"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/logger"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
)

// ProceduralExtent is the size of the procedural sky used when no environment map is loaded.
var ProceduralExtent = common.Extent2D{Width: 512, Height: 256}

// EnvironmentMap is a decoded equirectangular environment map in linear RGBA.
type EnvironmentMap struct {
	// Source is the file the map was loaded from, empty for the procedural sky.
	Source     string
	Extent     common.Extent2D
	Texels     []float32
	Procedural bool
}

// Format returns the texture format the map is uploaded in.
func (m *EnvironmentMap) Format() renderer.TextureFormat {
	return renderer.FormatRGBA32Float
}

// Bytes returns the texels packed for WriteTexture.
func (m *EnvironmentMap) Bytes() []byte {
	buf := make([]byte, len(m.Texels)*4)
	for i, v := range m.Texels {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// LoadEnvironmentMap decodes an image file. png, jpeg, bmp and tiff are supported. sRGB texels
// are converted to linear.
//
// Parameters:
//   - path: the image file
//
// Returns:
//   - *EnvironmentMap: the decoded map
//   - error: an open or decode error
func LoadEnvironmentMap(path string) (*EnvironmentMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	m := &EnvironmentMap{
		Source: path,
		Extent: common.Extent2D{Width: uint32(b.Dx()), Height: uint32(b.Dy())},
		Texels: make([]float32, 0, b.Dx()*b.Dy()*4),
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			m.Texels = append(m.Texels,
				srgbToLinear(float32(r)/0xffff),
				srgbToLinear(float32(g)/0xffff),
				srgbToLinear(float32(bl)/0xffff),
				float32(a)/0xffff,
			)
		}
	}
	return m, nil
}

// ProceduralEnvironmentMap returns a sky gradient over a dark ground.
//
// Parameters:
//   - extent: the map size
//
// Returns:
//   - *EnvironmentMap: the procedural map
func ProceduralEnvironmentMap(extent common.Extent2D) *EnvironmentMap {
	m := &EnvironmentMap{
		Extent:     extent,
		Texels:     make([]float32, 0, extent.Width*extent.Height*4),
		Procedural: true,
	}
	horizon := [3]float32{0.8, 0.85, 0.9}
	zenith := [3]float32{0.2, 0.35, 0.7}
	ground := [3]float32{0.1, 0.09, 0.08}
	for y := range extent.Height {
		// v runs from +1 at the zenith to -1 at the nadir
		v := 1 - 2*(float32(y)+0.5)/float32(extent.Height)
		var c [3]float32
		if v >= 0 {
			for i := range 3 {
				c[i] = horizon[i] + (zenith[i]-horizon[i])*v
			}
		} else {
			c = ground
		}
		for range extent.Width {
			m.Texels = append(m.Texels, c[0], c[1], c[2], 1)
		}
	}
	return m
}

// ResolveEnvironmentMap loads path, falling back to the procedural sky when path is empty or
// the file cannot be loaded. A failed load is logged as a warning and never fails the frame.
//
// Parameters:
//   - path: the image file, or "" for the procedural sky
//
// Returns:
//   - *EnvironmentMap: the map to use
//   - error: the load error that caused a fallback, nil otherwise
func ResolveEnvironmentMap(path string) (*EnvironmentMap, error) {
	if path == "" {
		return ProceduralEnvironmentMap(ProceduralExtent), nil
	}
	m, err := LoadEnvironmentMap(path)
	if err != nil {
		logger.Warn("environment map %s: %v, using the procedural sky", path, err)
		return ProceduralEnvironmentMap(ProceduralExtent), err
	}
	return m, nil
}

func srgbToLinear(c float32) float32 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return float32(math.Pow((float64(c)+0.055)/1.055, 2.4))
}
