package generator

import (
	"fmt"

	"github.com/WWIIWWIIWW/pyJac-v2/ir"
)

// Resolved is the partitioned output of argument resolution across a kernel
// set: canonical array arguments, hoisted local temporaries, names never
// written, constant temporaries and scalar value arguments.
type Resolved struct {
	Args          []ir.Arg
	LocalTemps    []ir.Arg
	ReadOnly      map[string]bool
	ConstantTemps []ir.Arg
	ValueArgs     []ir.Arg
}

// resolveArgs gathers every argument across the given kernels plus the
// injected extras, deduplicates by name and resolves conflicts.  The only
// tolerated divergence between same-named arguments is atomicity, resolved
// in favor of the atomic variant with every referencing kernel rewritten to
// match.  Temporaries require exact equality.  Resolution is idempotent:
// resolving an already-resolved set returns it unchanged.
func resolveArgs(kernels []*ir.Kernel, extra []ir.Arg, hoistLocals bool) (*Resolved, error) {
	canonical, err := canonicalArgs(kernels, extra)
	if err != nil {
		return nil, err
	}

	res := &Resolved{ReadOnly: make(map[string]bool)}
	written := make(map[string]bool)
	for _, k := range kernels {
		for name := range k.WrittenVars() {
			written[name] = true
		}
	}
	for _, a := range canonical {
		if a.IsValue() {
			res.ValueArgs = append(res.ValueArgs, a)
			continue
		}
		res.Args = append(res.Args, a)
		if !written[a.Name] {
			res.ReadOnly[a.Name] = true
		}
	}

	temps, err := canonicalTemps(kernels)
	if err != nil {
		return nil, err
	}
	for _, t := range temps {
		switch {
		case t.Space == ir.SpaceLocal && hoistLocals:
			// pass work-group locals down as arguments instead of
			// declaring them inline
			hoistLocal(kernels, t)
			res.LocalTemps = append(res.LocalTemps, t)
		case t.Space == ir.SpaceConstant && t.ReadOnly && !written[t.Name]:
			res.ConstantTemps = append(res.ConstantTemps, t)
		}
	}
	return res, nil
}

// canonicalArgs deduplicates kernel arguments by name.  Exactly two variants
// differing only in atomicity resolve to the atomic one; anything else is a
// fatal conflict naming the variants.
func canonicalArgs(kernels []*ir.Kernel, extra []ir.Arg) ([]ir.Arg, error) {
	var order []string
	variants := make(map[string][]ir.Arg)
	add := func(a ir.Arg) {
		for _, v := range variants[a.Name] {
			if v.Equal(a) {
				return
			}
		}
		if len(variants[a.Name]) == 0 {
			order = append(order, a.Name)
		}
		variants[a.Name] = append(variants[a.Name], a)
	}
	for _, k := range kernels {
		for _, a := range k.Args {
			add(a)
		}
	}
	for _, a := range extra {
		add(a)
	}

	out := make([]ir.Arg, 0, len(order))
	for _, name := range order {
		vs := variants[name]
		switch {
		case len(vs) == 1:
			out = append(out, vs[0])
		case len(vs) == 2 && vs[0].EqualExceptAtomic(vs[1]):
			atomic := vs[0]
			if vs[1].Atomic {
				atomic = vs[1]
			}
			rewriteArg(kernels, atomic)
			out = append(out, atomic)
		default:
			return nil, fmt.Errorf("%w: argument %s has %d incompatible definitions: %s",
				ir.ErrArgConflict, name, len(vs), describeVariants(vs))
		}
	}
	return out, nil
}

// canonicalTemps deduplicates temporaries by name with exact equality.
// Private temporaries stay kernel-scoped and are skipped.
func canonicalTemps(kernels []*ir.Kernel) ([]ir.Arg, error) {
	var order []string
	variants := make(map[string][]ir.Arg)
	for _, k := range kernels {
		for _, t := range k.Temps {
			if t.Space == ir.SpacePrivate {
				continue
			}
			dup := false
			for _, v := range variants[t.Name] {
				if v.Equal(t) {
					dup = true
					break
				}
			}
			if dup {
				continue
			}
			if len(variants[t.Name]) == 0 {
				order = append(order, t.Name)
			}
			variants[t.Name] = append(variants[t.Name], t)
		}
	}
	out := make([]ir.Arg, 0, len(order))
	for _, name := range order {
		vs := variants[name]
		if len(vs) > 1 {
			return nil, fmt.Errorf("%w: temporary %s has %d incompatible definitions: %s",
				ir.ErrTempConflict, name, len(vs), describeVariants(vs))
		}
		out = append(out, vs[0])
	}
	return out, nil
}

// rewriteArg replaces every kernel's definition of the named argument with
// the canonical one.
func rewriteArg(kernels []*ir.Kernel, canonical ir.Arg) {
	for _, k := range kernels {
		if a, ok := k.Arg(canonical.Name); ok {
			*a = canonical
		}
	}
}

// hoistLocal converts the local temporary into an explicit argument of
// every kernel that declared it.
func hoistLocal(kernels []*ir.Kernel, t ir.Arg) {
	for _, k := range kernels {
		if _, ok := k.Temp(t.Name); !ok {
			continue
		}
		kept := k.Temps[:0]
		for _, kt := range k.Temps {
			if kt.Name != t.Name {
				kept = append(kept, kt)
			}
		}
		k.Temps = kept
		if _, ok := k.Arg(t.Name); !ok {
			k.Args = append(k.Args, t)
		}
	}
}

func describeVariants(vs []ir.Arg) string {
	s := ""
	for i, v := range vs {
		if i > 0 {
			s += " vs "
		}
		s += v.String()
	}
	return s
}
