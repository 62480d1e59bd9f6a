package shader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
)

// shader is the implementation of the Shader interface.
type shader struct {
	key           string
	source        string
	entryPoint    string
	workGroupSize [3]uint32
	epoch         uint64
}

// Shader is a pre-processed compute kernel ready for pipeline creation.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for caching and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the processed WGSL source.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// EntryPoint returns the compute entry point name.
	//
	// Returns:
	//   - string: the entry point name (e.g. "main")
	EntryPoint() string

	// WorkgroupSize returns the @workgroup_size the kernel declares.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Epoch returns the shader reload epoch the source was read in.
	Epoch() uint64
}

var _ Shader = &shader{}

// newShader processes raw WGSL and checks that every slot of layout is declared by the result.
func newShader(key, raw string, epoch uint64, pp PreProcessor, layout renderer.BindingLayout, defines Defines) (Shader, error) {
	source, err := pp.Process(raw, layout, defines)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}
	entry := parseEntryPoint(source)
	if entry == "" {
		return nil, fmt.Errorf("shader %s: no @compute entry point", key)
	}

	declared := parseBindings(source)
	for _, slot := range layout {
		if _, ok := declared[slot.Slot]; !ok {
			return nil, fmt.Errorf("shader %s: binding %d (%s) is not declared", key, slot.Slot, slot.Name)
		}
	}

	return &shader{
		key:           key,
		source:        source,
		entryPoint:    entry,
		workGroupSize: parseWorkgroupSize(source),
		epoch:         epoch,
	}, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) Epoch() uint64 {
	return s.epoch
}
