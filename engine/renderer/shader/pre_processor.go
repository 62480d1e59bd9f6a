// pre_processor.go implements the Oxy WGSL shader pre-processor. It scans shader source for
// @oxy: annotations and replaces them with registered struct sources, generated binding
// declarations, or permutation constants.
package shader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
)

// defaultUniformType is the struct a uniform slot is declared with when the slot names none.
const defaultUniformType = "PassConstants"

// Defines holds the permutation flags a pipeline is built with.
type Defines map[string]uint32

// Key returns a canonical string for the flags, part of the pipeline cache key.
func (d Defines) Key() string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%d", name, d[name])
	}
	return sb.String()
}

// Flag returns 1 for true and 0 for false.
func Flag(on bool) uint32 {
	if on {
		return 1
	}
	return 0
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// structRegistry maps include keys to WGSL struct sources.
	structRegistry map[string]string
}

// PreProcessor expands @oxy: annotations in WGSL source.
type PreProcessor interface {
	// Process expands every annotation in source. @oxy:include is replaced with the registered
	// struct source, @oxy:bindings with one declaration per layout slot, and @oxy:define with a
	// u32 constant taken from defines.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code
	//   - layout: the binding layout of the pass the shader is compiled for
	//   - defines: the permutation flags
	//
	// Returns:
	//   - string: the processed WGSL source
	//   - error: an error if an annotation is malformed or references an unknown struct
	Process(source string, layout renderer.BindingLayout, defines Defines) (string, error)

	// Register adds or replaces a struct source available to @oxy:include.
	//
	// Parameters:
	//   - key: the include key
	//   - source: the WGSL struct definition
	Register(key, source string)
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the given struct sources registered.
//
// Parameters:
//   - structs: include keys mapped to WGSL struct definitions
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(structs map[string]string) PreProcessor {
	p := &preProcessor{structRegistry: make(map[string]string, len(structs))}
	for k, v := range structs {
		p.structRegistry[k] = v
	}
	return p
}

func (p *preProcessor) Register(key, source string) {
	p.structRegistry[key] = source
}

func (p *preProcessor) Process(source string, layout renderer.BindingLayout, defines Defines) (string, error) {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	included := make(map[string]bool)

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case AnnotationTypeInclude:
			src, ok := p.structRegistry[a.Arg]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", i+1, a.Arg)
			}
			// a struct may only be declared once per module
			if !included[a.Arg] {
				out = append(out, src)
				included[a.Arg] = true
			}
		case AnnotationTypeBindings:
			decls, err := bindingDeclarations(layout)
			if err != nil {
				return "", fmt.Errorf("line %d: %w", i+1, err)
			}
			out = append(out, decls...)
		case AnnotationTypeDefine:
			out = append(out, fmt.Sprintf("const %s: u32 = %du;", a.Arg, defines[a.Arg]))
		}
	}
	return strings.Join(out, "\n"), nil
}

var storageTextureFormats = map[renderer.TextureFormat]string{
	renderer.FormatRGBA16Float: "rgba16float",
	renderer.FormatRGBA32Float: "rgba32float",
	renderer.FormatR32Float:    "r32float",
	renderer.FormatRG32Float:   "rg32float",
	renderer.FormatR32Uint:     "r32uint",
	renderer.FormatRGBA32Uint:  "rgba32uint",
	renderer.FormatRGBA8Unorm:  "rgba8unorm",
}

func bindingDeclarations(layout renderer.BindingLayout) ([]string, error) {
	slots := make([]renderer.BindingSlot, len(layout))
	copy(slots, layout)
	sort.Slice(slots, func(i, j int) bool { return slots[i].Slot < slots[j].Slot })

	out := make([]string, 0, len(slots))
	for _, s := range slots {
		if s.Name == "" {
			return nil, fmt.Errorf("binding slot %d has no name", s.Slot)
		}
		prefix := fmt.Sprintf("@group(0) @binding(%d)", s.Slot)
		var decl string
		switch s.Type {
		case renderer.BindingUniform:
			decl = fmt.Sprintf("%s var<uniform> %s: %s;", prefix, s.Name, orDefault(s.Element, defaultUniformType))
		case renderer.BindingStorageRead:
			decl = fmt.Sprintf("%s var<storage, read> %s: array<%s>;", prefix, s.Name, orDefault(s.Element, "u32"))
		case renderer.BindingStorageReadWrite:
			decl = fmt.Sprintf("%s var<storage, read_write> %s: array<%s>;", prefix, s.Name, orDefault(s.Element, "u32"))
		case renderer.BindingTexture:
			sample := "f32"
			if s.Format == renderer.FormatR32Uint || s.Format == renderer.FormatRGBA32Uint {
				sample = "u32"
			}
			decl = fmt.Sprintf("%s var %s: texture_2d<%s>;", prefix, s.Name, sample)
		case renderer.BindingStorageTexture:
			format, ok := storageTextureFormats[s.Format]
			if !ok {
				return nil, fmt.Errorf("binding slot %d: format %d cannot be a storage texture", s.Slot, s.Format)
			}
			decl = fmt.Sprintf("%s var %s: texture_storage_2d<%s, write>;", prefix, s.Name, format)
		default:
			return nil, fmt.Errorf("binding slot %d: unknown binding type %d", s.Slot, s.Type)
		}
		out = append(out, decl)
	}
	return out, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
