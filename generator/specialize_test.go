package generator

import (
	"testing"

	"github.com/WWIIWWIIWW/pyJac-v2/ir"
	"github.com/WWIIWWIIWW/pyJac-v2/target"
)

func specKernel() *ir.Kernel {
	return kernelWith("rates",
		[]ir.Arg{ir.GlobalArg("wdot", ir.Float64, ir.SymDim(ir.ProblemSize),
			ir.FixedDim(10))},
		nil, "wdot[i] = 1.0")
}

func mustTarget(t *testing.T, opts ir.Options) target.Target {
	t.Helper()
	tgt, err := target.ForOptions(opts)
	if err != nil {
		t.Fatal(err)
	}
	return tgt
}

func TestSpecializeDeep(t *testing.T) {
	opts := ir.Options{Lang: ir.LangOpenCL, Order: 'C', Depth: 8}
	k := specKernel()
	tags, err := Specialize(k, "i", opts, mustTarget(t, opts), false)
	if err != nil {
		t.Fatalf("specialize failed: %v", err)
	}
	if tags[ir.GlobalInd] != "g.0" {
		t.Errorf("batch loop tag = %q, want g.0", tags[ir.GlobalInd])
	}
	if tags["i_inner"] != "l.0" {
		t.Errorf("inner lane tag = %q, want l.0", tags["i_inner"])
	}
	if _, ok := k.Domain("i_outer"); !ok {
		t.Error("deep vectorization did not split the inner loop")
	}
}

func TestSpecializeWide(t *testing.T) {
	opts := ir.Options{Lang: ir.LangOpenCL, Order: 'C', Width: 4}
	k := specKernel()
	tags, err := Specialize(k, "i", opts, mustTarget(t, opts), false)
	if err != nil {
		t.Fatalf("specialize failed: %v", err)
	}
	if tags[ir.GlobalInd+"_inner"] != "l.0" {
		t.Errorf("wide split inner tag = %q, want l.0", tags[ir.GlobalInd+"_inner"])
	}
	if _, ok := k.Domain(ir.GlobalInd + "_outer"); !ok {
		t.Error("wide vectorization did not split the batch loop")
	}
	// the per-item loop stays serial
	if tags["i"] != "" {
		t.Errorf("inner loop unexpectedly tagged %q", tags["i"])
	}
}

func TestSpecializeSIMDTag(t *testing.T) {
	opts := ir.Options{Lang: ir.LangC, Order: 'C', Depth: 4, IsSIMD: true}
	k := specKernel()
	tags, err := Specialize(k, "i", opts, mustTarget(t, opts), false)
	if err != nil {
		t.Fatalf("specialize failed: %v", err)
	}
	if tags["i_inner"] != "vec" {
		t.Errorf("SIMD lane tag = %q, want vec", tags["i_inner"])
	}
}

func TestSpecializeSIMDDegradesForUnvectorizableArrays(t *testing.T) {
	opts := ir.Options{Lang: ir.LangC, Order: 'C', Depth: 4, IsSIMD: true}
	k := specKernel()
	k.NoVectorLayout = []string{"wdot"}
	tags, err := Specialize(k, "i", opts, mustTarget(t, opts), false)
	if err != nil {
		t.Fatalf("specialize failed: %v", err)
	}
	if tags["i_inner"] != "l.0" {
		t.Errorf("lane tag = %q, want l.0 when an array cannot take vector accesses",
			tags["i_inner"])
	}
}

func TestSpecializeDryMatchesApplied(t *testing.T) {
	for _, opts := range []ir.Options{
		{Lang: ir.LangOpenCL, Order: 'C', Depth: 8},
		{Lang: ir.LangOpenCL, Order: 'C', Width: 4},
		{Lang: ir.LangC, Order: 'C', Depth: 4, IsSIMD: true},
		{Lang: ir.LangC, Order: 'C', ILP: true},
		{Lang: ir.LangOpenCL, Order: 'C', Depth: 4, Unroll: 2},
	} {
		tgt := mustTarget(t, opts)
		dry, err := Specialize(specKernel(), "i", opts, tgt, true)
		if err != nil {
			t.Fatalf("dry specialize failed: %v", err)
		}
		applied := specKernel()
		got, err := Specialize(applied, "i", opts, tgt, false)
		if err != nil {
			t.Fatalf("applied specialize failed: %v", err)
		}
		if len(dry) != len(got) {
			t.Fatalf("dry/applied tag count mismatch: %v vs %v", dry, got)
		}
		for iname, tag := range dry {
			if got[iname] != tag {
				t.Errorf("dry tag %s=%s, applied %s", iname, tag, got[iname])
			}
		}
		for iname, tag := range got {
			if applied.AppliedTags()[iname] != tag {
				t.Errorf("returned tag %s=%s not actually applied", iname, tag)
			}
		}
	}
}

func TestSpecializeDryLeavesKernelUntouched(t *testing.T) {
	opts := ir.Options{Lang: ir.LangOpenCL, Order: 'C', Depth: 8}
	k := specKernel()
	before := len(k.Domains)
	if _, err := Specialize(k, "i", opts, mustTarget(t, opts), true); err != nil {
		t.Fatalf("dry specialize failed: %v", err)
	}
	if len(k.Domains) != before {
		t.Error("dry run mutated the kernel's domains")
	}
	if len(k.AppliedTags()) != 0 {
		t.Error("dry run applied tags to the kernel")
	}
}
