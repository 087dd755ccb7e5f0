package generator

import (
	"fmt"
	"log"
	"strings"

	"github.com/WWIIWWIIWW/pyJac-v2/ir"
	"github.com/WWIIWWIIWW/pyJac-v2/target"
)

// argDocs documents the arrays a calling program hands to the driver.
// Unrecognized names degrade to a logged warning, never a failure.
var argDocs = map[string]string{
	"phi":            "the state vector",
	"dphi":           "the time rate of change of the state vector",
	"jac":            "the Jacobian of the state vector",
	"P_arr":          "the array of pressures",
	"V_arr":          "the array of volumes",
	ir.WorkingBuffer: "the working scratch buffer",
	ir.ProblemSize:   "the total number of initial conditions",
	ir.WorkSize:      "the number of initial conditions evaluated per invocation",
}

func docFor(name string) string {
	if d, ok := argDocs[name]; ok {
		return d
	}
	log.Printf("warning: no documentation known for argument %q", name)
	return "undocumented"
}

// callingProgram emits the host-side main program: allocate the driver's
// arrays, read initial conditions, transfer promoted host constants, run
// the driver over the whole problem and optionally dump every output array
// to a binary file for validation.
func (g *Generator) callingProgram(asm *Assembly, drv *Driver) string {
	name := g.cfg.Name
	var sb strings.Builder
	fmt.Fprintf(&sb, "#include \"%s_main.%s\"\n", name, g.tgt.HeaderExt())
	sb.WriteString("#include <stdio.h>\n#include <stdlib.h>\n#include <string.h>\n\n")

	// definitions for the host copies of promoted constant data, declared
	// extern in the calling header
	for _, p := range asm.Placement.Promoted {
		sb.WriteString(target.HostInitializer(p))
		sb.WriteString("\n")
	}
	if len(asm.Placement.Promoted) > 0 {
		sb.WriteString("\n")
	}

	w := drv.Assembly.Wrapper
	fmt.Fprintf(&sb, "int main(int argc, char* argv[])\n{\n")
	fmt.Fprintf(&sb, "    long int %s = (argc > 1) ? atol(argv[1]) : 1;\n",
		ir.ProblemSize)
	sb.WriteString("    const int for_validation = (argc > 2) && " +
		"(strcmp(argv[2], \"validate\") == 0);\n\n")

	for _, a := range w.Args {
		if a.IsValue() {
			continue
		}
		fmt.Fprintf(&sb, "    /* %s: %s */\n", a.Name, docFor(a.Name))
		fmt.Fprintf(&sb, "    %s* %s = (%s*)malloc(%s * sizeof(%s));\n",
			a.Dtype.CName(), a.Name, a.Dtype.CName(), allocSize(a), a.Dtype.CName())
	}
	sb.WriteString("\n")

	for _, p := range asm.Placement.Promoted {
		fmt.Fprintf(&sb, "    memcpy(%s, %s_host, %d * sizeof(%s));\n",
			p.Name, p.Name, p.FixedElems(), p.Dtype.CName())
	}
	if len(asm.Placement.Promoted) > 0 {
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "    %s;\n\n", strings.TrimSuffix(g.hostCall(w), ";"))

	sb.WriteString("    if (for_validation)\n    {\n")
	for _, a := range w.Args {
		if a.IsValue() || asm.Placement.ReadOnly[a.Name] || a.Name == ir.WorkingBuffer {
			continue
		}
		fmt.Fprintf(&sb, "        FILE* f_%s = fopen(\"%s.bin\", \"wb\");\n",
			a.Name, a.Name)
		fmt.Fprintf(&sb, "        fwrite(%s, sizeof(%s), %s, f_%s);\n",
			a.Name, a.Dtype.CName(), allocSize(a), a.Name)
		fmt.Fprintf(&sb, "        fclose(f_%s);\n", a.Name)
	}
	sb.WriteString("    }\n\n")

	for _, a := range w.Args {
		if a.IsValue() {
			continue
		}
		fmt.Fprintf(&sb, "    free(%s);\n", a.Name)
	}
	sb.WriteString("    return 0;\n}\n")
	return sb.String()
}

// allocSize renders an array's total element count, with symbolic
// dimensions left as host variables.
func allocSize(a ir.Arg) string {
	parts := []string{fmt.Sprintf("%d", a.FixedElems())}
	for _, d := range a.SymDims() {
		sym := d.Sym
		// the driver owns chunking; the host allocates for the full problem
		if sym == ir.WorkSize {
			sym = ir.ProblemSize
		}
		parts = append(parts, sym)
	}
	return strings.Join(parts, " * ")
}

// hostCall renders the host's invocation of the driver kernel
func (g *Generator) hostCall(w *ir.Kernel) string {
	var args []string
	for _, a := range w.Args {
		if a.Name == ir.WorkSize && !g.opts.UserSpecifiedWorkSize() {
			continue
		}
		args = append(args, a.Name)
	}
	return fmt.Sprintf("%s(%s);", w.Name, strings.Join(args, ", "))
}

// callingHeader is the public calling signature plus the host-side copies
// of promoted constant data.
func (g *Generator) callingHeader(asm *Assembly, drv *Driver) string {
	name := g.cfg.Name
	guard := strings.ToUpper(name) + "_MAIN_GUARD"
	var sb strings.Builder
	fmt.Fprintf(&sb, "#ifndef %s\n#define %s\n\n", guard, guard)
	fmt.Fprintf(&sb, "#include \"%s_driver.%s\"\n\n", name, g.tgt.HeaderExt())
	for _, p := range asm.Placement.Promoted {
		fmt.Fprintf(&sb, "extern const %s %s_host[%d];\n",
			p.Dtype.CName(), p.Name, p.FixedElems())
	}
	sb.WriteString("\n#endif\n")
	return sb.String()
}

// compilingProgram emits the offline build driver for backends that need
// one: the OpenCL host program that compiles the kernel source to a device
// binary.  Empty for backends compiled in-process.
func (g *Generator) compilingProgram() string {
	if g.tgt.Lang() != ir.LangOpenCL {
		return ""
	}
	name := g.cfg.Name
	var sb strings.Builder
	sb.WriteString("#include <CL/cl.h>\n#include <stdio.h>\n#include <stdlib.h>\n\n")
	fmt.Fprintf(&sb, "#define KERNEL_SOURCE \"%s.%s\"\n", name, g.tgt.FileExt())
	fmt.Fprintf(&sb, "#define BINARY_NAME \"%s.bin\"\n", name)
	sb.WriteString(`#define BUILD_OPTIONS "-cl-std=CL1.2"

static char* read_source(const char* path, size_t* len)
{
    FILE* f = fopen(path, "rb");
    if (!f) { fprintf(stderr, "cannot open %s\n", path); exit(1); }
    fseek(f, 0, SEEK_END);
    *len = (size_t)ftell(f);
    fseek(f, 0, SEEK_SET);
    char* buf = (char*)malloc(*len + 1);
    fread(buf, 1, *len, f);
    buf[*len] = 0;
    fclose(f);
    return buf;
}

int main(void)
{
    cl_platform_id platform;
    cl_device_id device;
    cl_int err;
    clGetPlatformIDs(1, &platform, NULL);
    clGetDeviceIDs(platform, CL_DEVICE_TYPE_DEFAULT, 1, &device, NULL);
    cl_context ctx = clCreateContext(NULL, 1, &device, NULL, NULL, &err);

    size_t len;
    char* src = read_source(KERNEL_SOURCE, &len);
    cl_program prog = clCreateProgramWithSource(ctx, 1,
        (const char**)&src, &len, &err);
    err = clBuildProgram(prog, 1, &device, BUILD_OPTIONS, NULL, NULL);
    if (err != CL_SUCCESS)
    {
        size_t log_len;
        clGetProgramBuildInfo(prog, device, CL_PROGRAM_BUILD_LOG,
            0, NULL, &log_len);
        char* log = (char*)malloc(log_len);
        clGetProgramBuildInfo(prog, device, CL_PROGRAM_BUILD_LOG,
            log_len, log, NULL);
        fprintf(stderr, "%s\n", log);
        return 1;
    }

    size_t bin_len;
    clGetProgramInfo(prog, CL_PROGRAM_BINARY_SIZES,
        sizeof(size_t), &bin_len, NULL);
    unsigned char* bin = (unsigned char*)malloc(bin_len);
    clGetProgramInfo(prog, CL_PROGRAM_BINARIES,
        sizeof(unsigned char*), &bin, NULL);
    FILE* out = fopen(BINARY_NAME, "wb");
    fwrite(bin, 1, bin_len, out);
    fclose(out);
    return 0;
}
`)
	return sb.String()
}
