package ir

import "testing"

func TestIdentifiers(t *testing.T) {
	ids := Identifiers([]string{
		"wdot[i] = 2.0 * phi[i] + 1e-3",
		"conc[i] = P_arr[j] / (R_u * T)",
	})

	for _, want := range []string{"wdot", "i", "phi", "conc", "P_arr", "j", "R_u", "T"} {
		if !ids[want] {
			t.Errorf("missing identifier %q", want)
		}
	}
	// numeric literals are not identifiers, even with exponent letters
	for _, bad := range []string{"2", "0", "1e", "e", "3"} {
		if ids[bad] {
			t.Errorf("numeric literal fragment %q treated as identifier", bad)
		}
	}
}

func TestIdentifiersUnderscore(t *testing.T) {
	ids := Identifiers([]string{"_tmp = work_size"})
	if !ids["_tmp"] || !ids["work_size"] {
		t.Errorf("underscore identifiers not recognized: %v", ids)
	}
}

func TestAssignTargets(t *testing.T) {
	cases := []struct {
		insn   string
		target string
	}{
		{"wdot[i] = phi[i]", "wdot"},
		{"wdot[i] += phi[i]", "wdot"},
		{"double acc = 0.0", "acc"},
		{"if (i < E && driver_offset + j < problem_size) phi_local[j * E + i] = phi[i]", "phi_local"},
		{"x == y", ""},
		{"a <= b", ""},
		{"species()", ""},
	}
	for _, c := range cases {
		t.Run(c.insn, func(t *testing.T) {
			got := AssignTargets([]string{c.insn})
			if c.target == "" {
				if len(got) != 0 {
					t.Fatalf("expected no assignment, got %v", got)
				}
				return
			}
			if !got[c.target] {
				t.Fatalf("expected target %q, got %v", c.target, got)
			}
		})
	}
}

func TestRangeFor(t *testing.T) {
	if got := RangeFor("i", "10"); got != "0 <= i < 10" {
		t.Errorf("RangeFor = %q", got)
	}
}

func TestDataType(t *testing.T) {
	cases := []struct {
		dt       DataType
		size     int64
		cname    string
		integral bool
	}{
		{Float64, 8, "double", false},
		{Float32, 4, "float", false},
		{Int32, 4, "int", true},
		{Int64, 8, "long int", true},
	}
	for _, c := range cases {
		if c.dt.Size() != c.size {
			t.Errorf("%s: size %d, want %d", c.cname, c.dt.Size(), c.size)
		}
		if c.dt.CName() != c.cname {
			t.Errorf("CName %q, want %q", c.dt.CName(), c.cname)
		}
		if c.dt.IsIntegral() != c.integral {
			t.Errorf("%s: IsIntegral %v", c.cname, c.dt.IsIntegral())
		}
	}
}

func TestDim(t *testing.T) {
	f := FixedDim(10)
	if !f.Fixed() || f.String() != "10" {
		t.Errorf("fixed dim: %v %q", f.Fixed(), f.String())
	}
	s := SymDim(WorkSize)
	if s.Fixed() || s.String() != "work_size" {
		t.Errorf("sym dim: %v %q", s.Fixed(), s.String())
	}
}
