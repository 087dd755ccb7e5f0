package ir

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestArgConstructors(t *testing.T) {
	cases := []struct {
		arg      Arg
		space    MemSpace
		readOnly bool
	}{
		{ValueArg("problem_size", Int64), SpaceValue, false},
		{GlobalArg("phi", Float64, SymDim(ProblemSize), FixedDim(10)), SpaceGlobal, false},
		{LocalTemp("scratch", Float64, FixedDim(8)), SpaceLocal, false},
		{ConstantTemp("coef", Float64, FixedDim(4)), SpaceConstant, true},
		{PrivateTemp("acc", Float64, FixedDim(2)), SpacePrivate, false},
	}
	for _, c := range cases {
		if c.arg.Space != c.space {
			t.Errorf("%s: space %s, want %s", c.arg.Name, c.arg.Space, c.space)
		}
		if c.arg.ReadOnly != c.readOnly {
			t.Errorf("%s: readonly %v", c.arg.Name, c.arg.ReadOnly)
		}
	}
	if !ValueArg("n", Int64).IsValue() {
		t.Error("value arg not reported as value")
	}
}

func TestArgSizing(t *testing.T) {
	a := GlobalArg("conc", Float64, SymDim(WorkSize), FixedDim(53))
	if got := a.FixedElems(); got != 53 {
		t.Errorf("FixedElems = %d", got)
	}
	if got := a.PerItemBytes(); got != 53*8 {
		t.Errorf("PerItemBytes = %d", got)
	}
	if a.Static() {
		t.Error("work-sized array reported static")
	}
	syms := a.SymDims()
	if len(syms) != 1 || syms[0].Sym != WorkSize {
		t.Errorf("SymDims = %v", syms)
	}

	c := ConstantTemp("coef", Float64, FixedDim(4), FixedDim(6))
	if !c.Static() {
		t.Error("fixed-shape constant reported non-static")
	}
	if got := c.FixedElems(); got != 24 {
		t.Errorf("FixedElems = %d", got)
	}
}

func TestArgEquality(t *testing.T) {
	base := GlobalArg("k", Float64, SymDim(ProblemSize), FixedDim(10))

	t.Run("atomic divergence tolerated", func(t *testing.T) {
		atomic := base.WithAtomic()
		if base.Atomic {
			t.Fatal("WithAtomic mutated the receiver")
		}
		if base.Equal(atomic) {
			t.Error("Equal must see the atomic flag")
		}
		if !base.EqualExceptAtomic(atomic) {
			t.Error("EqualExceptAtomic must ignore the atomic flag")
		}
	})

	t.Run("structural divergence rejected", func(t *testing.T) {
		variants := []Arg{
			GlobalArg("k", Float32, SymDim(ProblemSize), FixedDim(10)),
			GlobalArg("k", Float64, SymDim(ProblemSize), FixedDim(11)),
			GlobalArg("k", Float64, FixedDim(10)),
			LocalTemp("k", Float64, FixedDim(10)),
		}
		for _, v := range variants {
			if base.EqualExceptAtomic(v) {
				t.Errorf("%s wrongly equal to base", v)
			}
		}
	})

	t.Run("init data compared", func(t *testing.T) {
		a := ConstantTemp("coef", Float64, FixedDim(2), FixedDim(2))
		a.Init = mat.NewDense(2, 2, []float64{1, 2, 3, 4})
		b := a
		b.Init = mat.NewDense(2, 2, []float64{1, 2, 3, 5})
		if a.EqualExceptAtomic(b) {
			t.Error("differing init data wrongly equal")
		}
		b.Init = mat.NewDense(2, 2, []float64{1, 2, 3, 4})
		if !a.EqualExceptAtomic(b) {
			t.Error("identical init data wrongly unequal")
		}
		b.Init = nil
		if a.EqualExceptAtomic(b) {
			t.Error("nil vs non-nil init wrongly equal")
		}
	})
}
