package pass

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUPassConstantsSource is the canonical WGSL definition of the PassConstants struct.
// Matches GPUPassConstants layout exactly (64 bytes, std140 aligned).
//
//go:embed assets/pass_constants.wgsl
var GPUPassConstantsSource string

// Pass constant flags.
const (
	FlagDenoiser uint32 = 1 << iota
	FlagAccumulate
	FlagEnvironmentMap
	FlagTransparent
)

// GPUPassConstants is the per-pass uniform every kernel reads from its region of the frame's
// constant buffer. Matches the WGSL PassConstants struct layout exactly (see GPUPassConstantsSource).
// Size: 64 bytes.
type GPUPassConstants struct {
	ViewSize          [2]uint32  // offset  0: dispatch view extent in pixels
	FrameIndex        uint32     // offset  8: frame counter
	RayCountIndex     int32      // offset 12: u32 index of the ray counter in the ray count buffer, -1 untagged
	Parity            uint32     // offset 16: frame parity
	CheckerboardField uint32     // offset 20: 0 off, 1 or 2 for the active field
	InputSlice        uint32     // offset 24: reservoir slice read
	OutputSlice       uint32     // offset 28: reservoir slice written
	SecondarySlice    uint32     // offset 32: second reservoir slice read (temporal input of fused passes)
	ElementCount      uint32     // offset 36: element count of linear passes
	RandomSeed        uint32     // offset 40: per-pass random seed
	Flags             uint32     // offset 44: Flag* bits
	Params            [4]float32 // offset 48: pass-specific parameters
}

// Size returns the size of the GPUPassConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (g *GPUPassConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUPassConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload
func (g *GPUPassConstants) Marshal() []byte {
	buf := make([]byte, 64)
	binary.LittleEndian.PutUint32(buf[0:4], g.ViewSize[0])
	binary.LittleEndian.PutUint32(buf[4:8], g.ViewSize[1])
	binary.LittleEndian.PutUint32(buf[8:12], g.FrameIndex)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(g.RayCountIndex))
	binary.LittleEndian.PutUint32(buf[16:20], g.Parity)
	binary.LittleEndian.PutUint32(buf[20:24], g.CheckerboardField)
	binary.LittleEndian.PutUint32(buf[24:28], g.InputSlice)
	binary.LittleEndian.PutUint32(buf[28:32], g.OutputSlice)
	binary.LittleEndian.PutUint32(buf[32:36], g.SecondarySlice)
	binary.LittleEndian.PutUint32(buf[36:40], g.ElementCount)
	binary.LittleEndian.PutUint32(buf[40:44], g.RandomSeed)
	binary.LittleEndian.PutUint32(buf[44:48], g.Flags)
	for i := range 4 {
		binary.LittleEndian.PutUint32(buf[48+i*4:], math.Float32bits(g.Params[i]))
	}
	return buf
}
