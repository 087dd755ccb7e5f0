// Command pyjac2 generates chemical-kinetics kernel source from a YAML
// descriptor set: it builds, specializes and assembles the kernels for the
// selected backend and writes the emitted file set to the output directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/WWIIWWIIWW/pyJac-v2/generator"
	"github.com/WWIIWWIIWW/pyJac-v2/ir"
	"github.com/WWIIWWIIWW/pyJac-v2/utils"
)

var (
	flagLang        string
	flagOrder       string
	flagDepth       int
	flagWidth       int
	flagUnroll      int
	flagILP         bool
	flagSIMD        bool
	flagWorkSize    int64
	flagDevice      string
	flagDeviceType  string
	flagMemLimits   string
	flagIntOverflow bool
	flagAutoDiff    bool
	flagOutDir      string
	flagCheckBuild  bool
)

func main() {
	root := &cobra.Command{
		Use:   "pyjac2 <descriptor-set.yaml>",
		Short: "Generate chemical-kinetics ODE kernels for C/OpenMP or OpenCL",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}

	f := root.Flags()
	f.StringVarP(&flagLang, "lang", "l", "c", "target language (c, opencl)")
	f.StringVar(&flagOrder, "order", "C", "data layout order (C or F)")
	f.IntVar(&flagDepth, "depth", 0, "deep (SIMD-lane) vectorization width")
	f.IntVar(&flagWidth, "width", 0, "wide (work-group) vectorization width")
	f.IntVar(&flagUnroll, "unroll", 0, "inner loop unroll factor")
	f.BoolVar(&flagILP, "ilp", false, "tag the inner loop for instruction-level parallelism")
	f.BoolVar(&flagSIMD, "simd", false, "use true vector-type accesses")
	f.Int64Var(&flagWorkSize, "work-size", 0, "pin the per-invocation work size to a literal")
	f.StringVar(&flagDevice, "device", "", "device / platform selector")
	f.StringVar(&flagDeviceType, "device-type", "CPU", "device type for memory defaults (CPU, GPU)")
	f.StringVar(&flagMemLimits, "mem-limits", "", "memory limits YAML file")
	f.BoolVar(&flagIntOverflow, "limit-int-overflow", false, "keep array indices within 32-bit signed range")
	f.BoolVar(&flagAutoDiff, "autodiff", false, "emit the auto-differentiation C variant")
	f.StringVarP(&flagOutDir, "out", "o", "out", "output directory")
	f.BoolVar(&flagCheckBuild, "check-build", false, "build the emitted source on an OCCA device")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if len(flagOrder) != 1 || (flagOrder != "C" && flagOrder != "F") {
		return fmt.Errorf("order must be C or F, got %q", flagOrder)
	}
	opts := ir.Options{
		Lang:             ir.Lang(flagLang),
		Order:            flagOrder[0],
		Depth:            flagDepth,
		Width:            flagWidth,
		Unroll:           flagUnroll,
		ILP:              flagILP,
		IsSIMD:           flagSIMD,
		WorkSize:         flagWorkSize,
		Device:           flagDevice,
		DeviceType:       ir.DeviceType(flagDeviceType),
		MemLimitsFile:    flagMemLimits,
		LimitIntOverflow: flagIntOverflow,
		AutoDiff:         flagAutoDiff,
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	set, err := LoadDescriptorSet(args[0])
	if err != nil {
		return err
	}
	g, err := set.Generator(opts)
	if err != nil {
		return err
	}
	if err := g.Generate(flagOutDir); err != nil {
		return err
	}
	fmt.Printf("generated %s into %s\n", g.Name(), flagOutDir)

	if flagCheckBuild {
		return checkBuild(g)
	}
	return nil
}

// checkBuild compiles the emitted wrapping kernel on an OCCA device to catch
// source-level breakage early.
func checkBuild(g *generator.Generator) error {
	device, err := utils.DeviceFor(g.Target().Lang())
	if err != nil {
		return err
	}
	defer device.Free()

	asm, err := g.Assemble()
	if err != nil {
		return err
	}
	src := g.KernelSourceText(asm)
	if err := utils.CheckBuild(device, src, g.Name()); err != nil {
		return err
	}
	fmt.Printf("build check passed on %s\n", device.Mode())
	return nil
}
