// Package runner executes an assembled wrapping kernel on an OCCA device.
// It allocates device memory for every wrapper argument (including the
// packed working buffer and promoted host constants), binds host slices for
// input and output arrays, and drives host<->device transfers around kernel
// invocation.
package runner

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/notargets/gocca"

	"github.com/WWIIWWIIWW/pyJac-v2/generator"
	"github.com/WWIIWWIIWW/pyJac-v2/ir"
)

// Runner holds the device state for one assembled generator: compiled
// kernels, allocated device memory keyed by argument name, and the host
// bindings to copy in and out.
type Runner struct {
	Device  *gocca.OCCADevice
	Kernels map[string]*gocca.OCCAKernel
	Memory  map[string]*gocca.OCCAMemory

	asm      *generator.Assembly
	bindings map[string]interface{}
	workSize int64
}

// New creates a runner for the given assembly.  workSize is the number of
// work-items per kernel invocation and must match the value the kernel was
// generated for when the work size was pinned.
func New(device *gocca.OCCADevice, asm *generator.Assembly, workSize int64) (*Runner, error) {
	if workSize <= 0 {
		return nil, fmt.Errorf("work size must be positive, got %d", workSize)
	}
	if asm.Wrapper == nil {
		return nil, fmt.Errorf("assembly has no wrapping kernel")
	}
	return &Runner{
		Device:   device,
		Kernels:  make(map[string]*gocca.OCCAKernel),
		Memory:   make(map[string]*gocca.OCCAMemory),
		asm:      asm,
		bindings: make(map[string]interface{}),
		workSize: workSize,
	}, nil
}

// Bind attaches a host slice to a named wrapper array.  The slice is copied
// to the device before each run and, if the array is written by the kernel
// set, copied back afterwards.
func (r *Runner) Bind(name string, host interface{}) error {
	a, ok := r.argFor(name)
	if !ok {
		return fmt.Errorf("no wrapper argument named %s", name)
	}
	if err := validateBinding(*a, host); err != nil {
		return err
	}
	r.bindings[name] = host
	return nil
}

// Allocate reserves device memory for every wrapper array argument.
// Promoted host constants are uploaded immediately from their init data;
// everything else is allocated uninitialized.
func (r *Runner) Allocate(problemSize int64) error {
	for _, a := range r.asm.Wrapper.Args {
		if a.IsValue() {
			continue
		}
		if _, exists := r.Memory[a.Name]; exists {
			continue
		}

		if a.Init != nil {
			flat := flatten(a.Init, a.Order)
			mem := r.Device.Malloc(int64(len(flat))*a.Dtype.Size(),
				unsafe.Pointer(&flat[0]), nil)
			r.Memory[a.Name] = mem
			continue
		}

		bytes, err := arrayBytes(a, problemSize, r.workSize)
		if err != nil {
			return err
		}
		r.Memory[a.Name] = r.Device.Malloc(bytes, nil, nil)
	}
	return nil
}

// BuildKernel compiles kernel source on the device and registers it under
// the given name.
func (r *Runner) BuildKernel(source, name string) (*gocca.OCCAKernel, error) {
	var kernel *gocca.OCCAKernel
	var err error
	if r.Device.Mode() == "OpenMP" {
		// OCCA's OpenMP mode misses the default -O3 flag
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = r.Device.BuildKernelFromString(source, name, props)
	} else {
		kernel, err = r.Device.BuildKernelFromString(source, name, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", name, err)
	}
	r.Kernels[name] = kernel
	return kernel, nil
}

// Run invokes a built kernel: bound inputs are copied to the device, the
// kernel executes with arguments in wrapper-signature order (scalar values
// consumed positionally), and written bindings are copied back.
func (r *Runner) Run(name string, scalars ...interface{}) error {
	kernel, ok := r.Kernels[name]
	if !ok {
		return fmt.Errorf("kernel %s not built", name)
	}

	for bound := range r.bindings {
		if err := r.CopyToDevice(bound); err != nil {
			return fmt.Errorf("pre-run copy of %s: %w", bound, err)
		}
	}

	args, err := r.kernelArguments(scalars)
	if err != nil {
		return err
	}
	if err := kernel.RunWithArgs(args...); err != nil {
		return fmt.Errorf("kernel %s execution failed: %w", name, err)
	}
	r.Device.Finish()

	for bound := range r.bindings {
		if r.asm.Placement.ReadOnly[bound] {
			continue
		}
		if err := r.CopyFromDevice(bound); err != nil {
			return fmt.Errorf("post-run copy of %s: %w", bound, err)
		}
	}
	return nil
}

// kernelArguments builds the invocation argument list in signature order.
// An implicit (macro-defined) work size never appears as a formal, so the
// dummy wrapper's work-size value argument is skipped when the emitted
// signature omits it.
func (r *Runner) kernelArguments(scalars []interface{}) ([]interface{}, error) {
	var args []interface{}
	si := 0
	hasWorkSize := strings.Contains(r.asm.WrapperSignature, ir.WorkSize)
	for _, a := range r.asm.Wrapper.Args {
		if a.IsValue() {
			if a.Name == ir.WorkSize && !hasWorkSize {
				continue
			}
			if si >= len(scalars) {
				return nil, fmt.Errorf("no value provided for scalar %s", a.Name)
			}
			args = append(args, scalars[si])
			si++
			continue
		}
		mem, ok := r.Memory[a.Name]
		if !ok {
			return nil, fmt.Errorf("device memory for %s not allocated", a.Name)
		}
		args = append(args, mem)
	}
	return args, nil
}

func (r *Runner) argFor(name string) (*ir.Arg, bool) {
	return r.asm.Wrapper.Arg(name)
}

// Free releases all compiled kernels and device memory
func (r *Runner) Free() {
	for _, kernel := range r.Kernels {
		kernel.Free()
	}
	for _, mem := range r.Memory {
		mem.Free()
	}
}
