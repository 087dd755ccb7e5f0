package generator

import (
	"errors"
	"reflect"
	"testing"

	"github.com/WWIIWWIIWW/pyJac-v2/ir"
)

func kernelWith(name string, args []ir.Arg, temps []ir.Arg, insns ...string) *ir.Kernel {
	return &ir.Kernel{
		Name:    name,
		VarName: "i",
		Domains: []ir.Domain{
			{Iname: ir.GlobalInd, Range: ir.RangeFor(ir.GlobalInd, ir.WorkSize)},
			{Iname: "i", Range: ir.RangeFor("i", "10")},
		},
		Instructions: insns,
		Args:         args,
		Temps:        temps,
	}
}

func TestResolveAtomicPreference(t *testing.T) {
	k := ir.GlobalArg("k", ir.Float64, ir.SymDim(ir.ProblemSize), ir.FixedDim(10))
	k1 := kernelWith("a", []ir.Arg{k}, nil, "k[i] = 1.0")
	k2 := kernelWith("b", []ir.Arg{k.WithAtomic()}, nil, "k[i] = k[i] + 1.0")

	res, err := resolveArgs([]*ir.Kernel{k1, k2}, nil, false)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(res.Args) != 1 {
		t.Fatalf("expected 1 canonical arg, got %d", len(res.Args))
	}
	if !res.Args[0].Atomic {
		t.Error("canonical arg must be the atomic variant")
	}
	// round-trip: no kernel still references the non-atomic object
	for _, kn := range []*ir.Kernel{k1, k2} {
		a, ok := kn.Arg("k")
		if !ok || !a.Atomic {
			t.Errorf("kernel %s still holds the non-atomic variant", kn.Name)
		}
	}
}

func TestResolveIdempotent(t *testing.T) {
	k := ir.GlobalArg("k", ir.Float64, ir.SymDim(ir.ProblemSize), ir.FixedDim(10))
	k1 := kernelWith("a", []ir.Arg{k}, nil, "k[i] = 1.0")
	k2 := kernelWith("b", []ir.Arg{k.WithAtomic()}, nil, "k[i] = k[i] + 1.0")
	kernels := []*ir.Kernel{k1, k2}

	first, err := resolveArgs(kernels, nil, false)
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	second, err := resolveArgs(kernels, nil, false)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("resolution not idempotent:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestResolveShapeConflictFatal(t *testing.T) {
	a1 := ir.GlobalArg("k", ir.Float64, ir.SymDim(ir.ProblemSize), ir.FixedDim(10))
	a2 := ir.GlobalArg("k", ir.Float64, ir.SymDim(ir.ProblemSize), ir.FixedDim(12))
	k1 := kernelWith("a", []ir.Arg{a1}, nil, "k[i] = 1.0")
	k2 := kernelWith("b", []ir.Arg{a2}, nil, "k[i] = 2.0")

	_, err := resolveArgs([]*ir.Kernel{k1, k2}, nil, false)
	if !errors.Is(err, ir.ErrArgConflict) {
		t.Fatalf("expected ErrArgConflict, got %v", err)
	}
}

func TestResolveDtypeConflictFatal(t *testing.T) {
	a1 := ir.GlobalArg("k", ir.Float64, ir.SymDim(ir.ProblemSize), ir.FixedDim(10))
	a2 := ir.GlobalArg("k", ir.Int32, ir.SymDim(ir.ProblemSize), ir.FixedDim(10))
	k1 := kernelWith("a", []ir.Arg{a1}, nil, "k[i] = 1.0")
	k2 := kernelWith("b", []ir.Arg{a2}, nil, "k[i] = 2")

	_, err := resolveArgs([]*ir.Kernel{k1, k2}, nil, false)
	if !errors.Is(err, ir.ErrArgConflict) {
		t.Fatalf("expected ErrArgConflict, got %v", err)
	}
}

func TestResolveTempConflictFatal(t *testing.T) {
	t1 := ir.ConstantTemp("c", ir.Float64, ir.FixedDim(4))
	t2 := ir.ConstantTemp("c", ir.Float64, ir.FixedDim(8))
	k1 := kernelWith("a", nil, []ir.Arg{t1}, "x = c[0]")
	k1.Args = append(k1.Args, ir.GlobalArg("x", ir.Float64, ir.SymDim(ir.ProblemSize)))
	k2 := kernelWith("b", nil, []ir.Arg{t2}, "y = c[0]")
	k2.Args = append(k2.Args, ir.GlobalArg("y", ir.Float64, ir.SymDim(ir.ProblemSize)))

	_, err := resolveArgs([]*ir.Kernel{k1, k2}, nil, false)
	if !errors.Is(err, ir.ErrTempConflict) {
		t.Fatalf("expected ErrTempConflict, got %v", err)
	}
}

func TestResolveReadOnlyPartition(t *testing.T) {
	phi := ir.GlobalArg("phi", ir.Float64, ir.SymDim(ir.ProblemSize), ir.FixedDim(10))
	wdot := ir.GlobalArg("wdot", ir.Float64, ir.SymDim(ir.ProblemSize), ir.FixedDim(10))
	n := ir.ValueArg("n_steps", ir.Int32)
	k1 := kernelWith("a", []ir.Arg{phi, wdot, n}, nil, "wdot[i] = phi[i]")

	res, err := resolveArgs([]*ir.Kernel{k1}, nil, false)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !res.ReadOnly["phi"] {
		t.Error("phi is never written and must be read-only")
	}
	if res.ReadOnly["wdot"] {
		t.Error("wdot is written and must not be read-only")
	}
	if len(res.ValueArgs) != 1 || res.ValueArgs[0].Name != "n_steps" {
		t.Errorf("value args = %v", res.ValueArgs)
	}
}

func TestResolveHoistLocals(t *testing.T) {
	red := ir.LocalTemp("red", ir.Float64, ir.FixedDim(64))
	k1 := kernelWith("a", nil, []ir.Arg{red}, "red[0] = 1.0")

	res, err := resolveArgs([]*ir.Kernel{k1}, nil, true)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(res.LocalTemps) != 1 {
		t.Fatalf("expected 1 hoisted local, got %d", len(res.LocalTemps))
	}
	if _, ok := k1.Temp("red"); ok {
		t.Error("hoisted local still declared as a temporary")
	}
	if _, ok := k1.Arg("red"); !ok {
		t.Error("hoisted local not converted to a kernel argument")
	}
}
