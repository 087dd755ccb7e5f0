package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// emit writes the full per-generator file set: kernel source and header,
// driver source and header, the host calling program, and (OpenCL only) the
// offline compiling program.
func (g *Generator) emit(outDir string, asm *Assembly, drv *Driver) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	ext, hext := g.tgt.FileExt(), g.tgt.HeaderExt()
	name := g.cfg.Name

	files := map[string]string{
		name + "." + ext:         g.kernelSource(asm),
		name + "." + hext:        g.kernelHeader(asm),
		name + "_driver." + ext:  g.driverSource(drv),
		name + "_driver." + hext: g.driverHeader(drv),
		name + "_main." + ext:    g.callingProgram(asm, drv),
		name + "_main." + hext:   g.callingHeader(asm, drv),
	}
	// only the device-side sources carry the active scalar type; the host
	// calling program keeps plain doubles
	rewritten := map[string]bool{
		name + "." + ext:         true,
		name + "." + hext:        true,
		name + "_driver." + ext:  true,
		name + "_driver." + hext: true,
	}
	if prog := g.compilingProgram(); prog != "" {
		files[name+"_compiler."+ext] = prog
	}

	for fname, content := range files {
		if g.opts.AutoDiff && rewritten[fname] {
			content = autodiffRewrite(content)
		}
		path := filepath.Join(outDir, fname)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

// KernelSourceText returns the wrapping-kernel translation unit as emitted,
// for callers that validate the source without writing files.
func (g *Generator) KernelSourceText(asm *Assembly) string {
	return g.kernelSource(asm)
}

// kernelSource assembles the wrapping-kernel translation unit: preambles,
// constant initializers, every sub-kernel body, then the wrapping kernel.
func (g *Generator) kernelSource(asm *Assembly) string {
	var sb strings.Builder
	for _, d := range g.cfg.Deps {
		fmt.Fprintf(&sb, "#include \"%s.%s\"\n", d.Name(), g.tgt.HeaderExt())
	}
	for _, p := range asm.Preambles {
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	for _, init := range asm.Inits {
		sb.WriteString(init.Code)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	for _, body := range asm.KernelBodies {
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	sb.WriteString(asm.Body)
	return sb.String()
}

// kernelHeader exposes the wrapping kernel to other generators: dependency
// headers, preamble and initializer text (inlined so including does not
// duplicate symbols in the source unit), and the forward declaration.
func (g *Generator) kernelHeader(asm *Assembly) string {
	guard := strings.ToUpper(g.cfg.Name) + "_GUARD"
	var sb strings.Builder
	fmt.Fprintf(&sb, "#ifndef %s\n#define %s\n\n", guard, guard)
	for _, d := range g.cfg.Deps {
		fmt.Fprintf(&sb, "#include \"%s.%s\"\n", d.Name(), g.tgt.HeaderExt())
	}
	for _, p := range asm.Preambles {
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(asm.WrapperSignature)
	sb.WriteString(";\n\n#endif\n")
	return sb.String()
}

func (g *Generator) driverSource(drv *Driver) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#include \"%s.%s\"\n", g.cfg.Name, g.tgt.HeaderExt())
	for _, p := range drv.Assembly.Preambles {
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	for _, body := range drv.Assembly.KernelBodies {
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	sb.WriteString(drv.Body)
	return sb.String()
}

func (g *Generator) driverHeader(drv *Driver) string {
	guard := strings.ToUpper(g.cfg.Name) + "_DRIVER_GUARD"
	var sb strings.Builder
	fmt.Fprintf(&sb, "#ifndef %s\n#define %s\n\n", guard, guard)
	fmt.Fprintf(&sb, "#include \"%s.%s\"\n\n", g.cfg.Name, g.tgt.HeaderExt())
	sb.WriteString(drv.Assembly.WrapperSignature)
	sb.WriteString(";\n\n#endif\n")
	return sb.String()
}

// autodiffRewrite converts emitted C to the operator-overloading autodiff
// variant: double becomes the active scalar type.
func autodiffRewrite(src string) string {
	src = strings.ReplaceAll(src, "double", "adouble")
	return "#include \"adept.h\"\nusing adept::adouble;\n\n" + src
}
