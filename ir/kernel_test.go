package ir

import "testing"

func testKernel() *Kernel {
	return &Kernel{
		Name:    "rates",
		VarName: "i",
		Domains: []Domain{
			{Iname: GlobalInd, Range: RangeFor(GlobalInd, WorkSize)},
			{Iname: "i", Range: RangeFor("i", "10")},
		},
		Instructions: []string{"wdot[i] = phi[i] * 2.0"},
		Args: []Arg{
			GlobalArg("phi", Float64, SymDim(ProblemSize), FixedDim(10)),
			GlobalArg("wdot", Float64, SymDim(ProblemSize), FixedDim(10)),
		},
	}
}

func TestSplitIname(t *testing.T) {
	k := testKernel()
	if err := k.SplitIname("i", 4, "l.0"); err != nil {
		t.Fatal(err)
	}

	// the inner domain sits directly after its outer half
	names := make([]string, len(k.Domains))
	for idx, d := range k.Domains {
		names[idx] = d.Iname
	}
	want := []string{"j", "i_outer", "i_inner"}
	for idx := range want {
		if names[idx] != want[idx] {
			t.Fatalf("domain order %v, want %v", names, want)
		}
	}

	outer, _ := k.Domain("i_outer")
	if outer.Range != "0 <= i_outer < 10" {
		t.Errorf("outer range %q", outer.Range)
	}
	inner, _ := k.Domain("i_inner")
	if inner.Range != "0 <= i_inner < 4" || inner.Tag != "l.0" {
		t.Errorf("inner domain %+v", *inner)
	}

	if len(k.Splits) != 1 || k.Splits[0] != (Split{Iname: "i", Factor: 4, InnerTag: "l.0"}) {
		t.Errorf("split record %+v", k.Splits)
	}

	if err := k.SplitIname("nope", 4, ""); err == nil {
		t.Error("splitting an unknown iname must fail")
	}
}

func TestSplitInameSymbolicRange(t *testing.T) {
	// bound text containing the iname as a substring must survive the rename
	k := &Kernel{
		Name:    "rates",
		VarName: "i",
		Domains: []Domain{{Iname: "i", Range: RangeFor("i", "n_species")}},
	}
	if err := k.SplitIname("i", 4, "l.0"); err != nil {
		t.Fatal(err)
	}
	outer, _ := k.Domain("i_outer")
	if outer.Range != "0 <= i_outer < n_species" {
		t.Errorf("outer range %q, symbolic bound corrupted", outer.Range)
	}
}

func TestTagAndAppliedTags(t *testing.T) {
	k := testKernel()
	if err := k.Tag(GlobalInd, "g.0"); err != nil {
		t.Fatal(err)
	}
	if err := k.Tag("missing", "g.0"); err == nil {
		t.Error("tagging an unknown iname must fail")
	}
	tags := k.AppliedTags()
	if len(tags) != 1 || tags[GlobalInd] != "g.0" {
		t.Errorf("AppliedTags = %v", tags)
	}
}

func TestKernelLookups(t *testing.T) {
	k := testKernel()
	k.Temps = append(k.Temps, PrivateTemp("acc", Float64, FixedDim(1)))

	if a, ok := k.Arg("phi"); !ok || a.Name != "phi" {
		t.Error("Arg lookup failed")
	}
	if _, ok := k.Arg("acc"); ok {
		t.Error("Arg must not find temps")
	}
	if tmp, ok := k.Temp("acc"); !ok || tmp.Space != SpacePrivate {
		t.Error("Temp lookup failed")
	}
}

func TestAllInstructionsOrder(t *testing.T) {
	k := testKernel()
	k.PreInstructions = []string{"T = phi[j]"}
	k.PostInstructions = []string{"wdot[0] += T"}
	all := k.AllInstructions()
	if len(all) != 3 || all[0] != "T = phi[j]" || all[2] != "wdot[0] += T" {
		t.Errorf("AllInstructions = %v", all)
	}

	written := k.WrittenVars()
	if !written["T"] || !written["wdot"] || written["phi"] {
		t.Errorf("WrittenVars = %v", written)
	}
}

func TestFakeCallMatch(t *testing.T) {
	wrapper := &Kernel{Name: "species"}
	callStub := &Kernel{Name: "species_call"}
	fc := FakeCall{
		DummyCall:   "species()",
		ReplaceIn:   callStub,
		ReplaceWith: wrapper,
	}

	t.Run("plain merge matches by name containment", func(t *testing.T) {
		if !fc.Match(&Kernel{Name: "species"}, "", false) {
			t.Error("expected match on name containment")
		}
		if fc.Match(&Kernel{Name: "jacobian"}, "", false) {
			t.Error("unrelated kernel matched")
		}
	})

	t.Run("driver requires both names in the call text", func(t *testing.T) {
		call := "species_call(rwk, phi_local)"
		if !fc.Match(&Kernel{Name: "species_call"}, call, true) {
			t.Error("expected driver match")
		}
		if fc.Match(&Kernel{Name: "copy_in"}, "copy_in(phi, phi_local)", true) {
			t.Error("copy kernel wrongly matched")
		}
	})
}
