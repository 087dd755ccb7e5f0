package generator

import (
	"fmt"
	"strings"

	"github.com/WWIIWWIIWW/pyJac-v2/ir"
)

// Driver is the batch-looping wrapper around the wrapping kernel: it chunks
// the full problem into runs sized to the memory budget and invokes the
// wrapping kernel once per chunk on staged copies of the user arrays.
type Driver struct {
	Assembly *Assembly
	// PerRun is the largest number of initial conditions the memory budget
	// allows per invocation; the chunk loop itself strides by the work size
	PerRun int64
	// Body is the final driver source: the chunk loop skeleton with the
	// merged call stream in its slot
	Body string
}

// userArrays returns the user-facing arrays of the wrapping kernel: global
// arrays dimensioned by the full problem size.
func (g *Generator) userArrays(asm *Assembly) []ir.Arg {
	var out []ir.Arg
	for _, a := range asm.Placement.Args {
		syms := a.SymDims()
		if a.Space == ir.SpaceGlobal && len(syms) == 1 && syms[0].Sym == ir.ProblemSize {
			out = append(out, a)
		}
	}
	return out
}

// buildDriver constructs the lockstep driver: descriptor set, build, merge
// with forDriver set and the one fake call resolving the wrapping-kernel
// placeholder, then skeleton rendering.
func (g *Generator) buildDriver(asm *Assembly) (*Driver, error) {
	if g.opts.DriverType == ir.QueueDriver {
		return nil, fmt.Errorf("%w: work-queue driver", ir.ErrUnimplemented)
	}

	user := g.userArrays(asm)
	perRun, err := g.limits.MaxRunSize(user, g.opts.VecWidth())
	if err != nil {
		return nil, err
	}
	if g.opts.UserSpecifiedWorkSize() && g.opts.WorkSize > perRun {
		return nil, fmt.Errorf("%w: work size %d exceeds the largest run the "+
			"memory budget allows (%d conditions)", ir.ErrCannotFit,
			g.opts.WorkSize, perRun)
	}

	descs, callDesc := g.lockstepDescriptors(user, asm.Placement)
	var kernels []*ir.Kernel
	var callKernel *ir.Kernel
	for _, d := range descs {
		k, err := g.buildKernel(d)
		if err != nil {
			return nil, fmt.Errorf("building driver kernel %s: %w", d.Name, err)
		}
		if d == callDesc {
			callKernel = k
		}
		kernels = append(kernels, k)
	}

	fc := ir.FakeCall{
		DummyCall:   g.cfg.Name + "()",
		ReplaceIn:   callKernel,
		ReplaceWith: g,
	}
	dasm, err := g.merge(kernels, true, []ir.FakeCall{fc})
	if err != nil {
		return nil, err
	}

	drv := &Driver{Assembly: dasm, PerRun: perRun}
	drv.Body = g.renderDriverSkeleton(dasm)
	return drv, nil
}

// lockstepDescriptors builds the driver descriptor set: stage user inputs
// into per-run copies, call the wrapping kernel, stage results back out.
// Returns the descriptors and the one holding the placeholder call.
func (g *Generator) lockstepDescriptors(user []ir.Arg,
	pl *Placement) ([]*ir.Descriptor, *ir.Descriptor) {
	maxElems := int64(1)
	var copyIns, copyOuts []string
	locals := make([]ir.Arg, 0, len(user))
	for _, a := range user {
		elems := a.FixedElems()
		if elems > maxElems {
			maxElems = elems
		}
		local := a
		local.Name = a.Name + "_local"
		local.Shape = append([]ir.Dim{ir.SymDim(ir.WorkSize)}, fixedDims(a)...)
		local.ReadOnly = false
		locals = append(locals, local)

		guard := fmt.Sprintf("if (i < %d && %s + %s < %s)", elems,
			ir.DriverOffset, ir.GlobalInd, ir.ProblemSize)
		copyIns = append(copyIns, fmt.Sprintf(
			"%s %s_local[%s * %d + i] = %s[(%s + %s) * %d + i]",
			guard, a.Name, ir.GlobalInd, elems, a.Name, ir.DriverOffset,
			ir.GlobalInd, elems))
		// pure inputs are staged in but never copied back, keeping the user
		// array const in the driver signature
		if a.ReadOnly || pl.ReadOnly[a.Name] {
			continue
		}
		copyOuts = append(copyOuts, fmt.Sprintf(
			"%s %s[(%s + %s) * %d + i] = %s_local[%s * %d + i]",
			guard, a.Name, ir.DriverOffset, ir.GlobalInd, elems, a.Name,
			ir.GlobalInd, elems))
	}

	valueData := []ir.Arg{
		ir.ValueArg(ir.ProblemSize, ir.Int64),
		ir.ValueArg(ir.DriverOffset, ir.Int64),
	}
	copyDomains := []ir.Domain{
		{Iname: ir.GlobalInd, Range: ir.RangeFor(ir.GlobalInd, ir.WorkSize)},
		{Iname: "i", Range: ir.RangeFor("i", fmt.Sprintf("%d", maxElems))},
	}
	stagingData := func() []ir.Arg {
		data := append([]ir.Arg(nil), valueData...)
		data = append(data, user...)
		data = append(data, locals...)
		return data
	}

	copyIn := &ir.Descriptor{
		Name:                g.cfg.Name + "_copy_in",
		VarName:             "i",
		Instructions:        copyIns,
		KernelData:          stagingData(),
		InameDomainOverride: copyDomains,
		CanVectorize:        true,
	}
	// the call stub's formals must cover everything the substituted call
	// passes through: staged arrays, promoted host constants and the
	// wrapping kernel's scalar arguments
	callData := append([]ir.Arg(nil), valueData...)
	callData = append(callData, pl.ValueArgs...)
	callData = append(callData, locals...)
	callData = append(callData, pl.Promoted...)
	call := &ir.Descriptor{
		Name:                g.cfg.Name + "_call",
		VarName:             "i",
		Instructions:        []string{g.cfg.Name + "()"},
		KernelData:          dedupData(callData),
		InameDomainOverride: []ir.Domain{{Iname: "i", Range: ir.RangeFor("i", "1")}},
		Manglers:            []ir.Mangler{{Func: g.cfg.Name}},
		CanVectorize:        true,
	}
	descs := []*ir.Descriptor{copyIn, call}
	if len(copyOuts) > 0 {
		descs = append(descs, &ir.Descriptor{
			Name:                g.cfg.Name + "_copy_out",
			VarName:             "i",
			Instructions:        copyOuts,
			KernelData:          stagingData(),
			InameDomainOverride: copyDomains,
			CanVectorize:        true,
		})
	}
	return descs, call
}

func fixedDims(a ir.Arg) []ir.Dim {
	var out []ir.Dim
	for _, d := range a.Shape {
		if d.Fixed() {
			out = append(out, d)
		}
	}
	return out
}

// renderDriverSkeleton wraps the merged driver call stream in the chunk
// loop.  The skeleton is assembled structurally, indentation by
// construction.
func (g *Generator) renderDriverSkeleton(dasm *Assembly) string {
	var sb strings.Builder
	sb.WriteString(dasm.WrapperSignature)
	sb.WriteString("\n{\n")
	for _, o := range dasm.Buffer.Offsets {
		fmt.Fprintf(&sb, "    %s\n", g.tgt.PointerUnpack(o.Name, o.Offset))
	}
	// each iteration stages and evaluates exactly work_size conditions, so
	// the chunk loop must advance by the same amount
	fmt.Fprintf(&sb, "    for (long int %s = 0; %s < %s; %s += %s)\n    {\n",
		ir.DriverOffset, ir.DriverOffset, ir.ProblemSize, ir.DriverOffset, ir.WorkSize)
	for _, insn := range dasm.Instructions {
		fmt.Fprintf(&sb, "        %s\n", insn)
	}
	sb.WriteString("    }\n}\n")
	return sb.String()
}
