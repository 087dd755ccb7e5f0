package generator

import (
	"fmt"
	"sort"

	"github.com/WWIIWWIIWW/pyJac-v2/ir"
	"github.com/WWIIWWIIWW/pyJac-v2/memory"
)

// Placement is the result of memory placement: the possibly-extended global
// argument set, the constant temporaries that survived, the updated
// read-only name set, and the promoted host constants requiring a one-time
// host-to-device transfer.
type Placement struct {
	Args          []ir.Arg
	ConstantTemps []ir.Arg
	ReadOnly      map[string]bool
	ValueArgs     []ir.Arg
	LocalTemps    []ir.Arg
	Promoted      []ir.Arg
	Limits        *memory.Limits
}

// place checks the resolved argument sets against the memory budget and, if
// constant memory is over budget, greedily promotes the largest eligible
// constant arrays to read-only global arguments until the budget is met.
// Every kernel that declared a promoted array as a constant temporary is
// rewritten to take it as an argument instead.
func place(name string, res *Resolved, limits *memory.Limits,
	kernels []*ir.Kernel) (*Placement, error) {

	p := &Placement{
		Args:          append([]ir.Arg(nil), res.Args...),
		ConstantTemps: append([]ir.Arg(nil), res.ConstantTemps...),
		ReadOnly:      res.ReadOnly,
		ValueArgs:     res.ValueArgs,
		LocalTemps:    res.LocalTemps,
		Limits:        limits,
	}

	for !limits.ConstantFits(p.ConstantTemps) {
		idx := largestPromotable(p.ConstantTemps)
		if idx < 0 {
			return nil, fmt.Errorf("%w: kernel %s: constant memory over budget "+
				"(%d bytes against %d) with no promotion candidates remaining",
				ir.ErrCannotFit, name,
				memory.StaticBytes(p.ConstantTemps, ir.SpaceConstant),
				limits.Limit(memory.ClassConstant))
		}
		promoted := promoteToGlobal(p.ConstantTemps[idx])
		p.ConstantTemps = append(p.ConstantTemps[:idx], p.ConstantTemps[idx+1:]...)
		p.Args = append(p.Args, promoted)
		p.ReadOnly[promoted.Name] = true
		p.Promoted = append(p.Promoted, promoted)
		rewritePromoted(kernels, promoted)
	}

	all := append(append([]ir.Arg(nil), p.Args...), p.ConstantTemps...)
	all = append(all, p.LocalTemps...)
	if err := limits.FitsStatic(all); err != nil {
		return nil, fmt.Errorf("kernel %s: %w", name, err)
	}
	return p, nil
}

// largestPromotable returns the index of the eligible constant array with
// the most elements, or -1.  Arrays flagged NoPromote (index structures
// consuming code cannot take as plain pointers) are never eligible.
func largestPromotable(constants []ir.Arg) int {
	type cand struct {
		idx   int
		elems int64
	}
	var cands []cand
	for i, c := range constants {
		if c.NoPromote {
			continue
		}
		cands = append(cands, cand{i, c.FixedElems()})
	}
	if len(cands) == 0 {
		return -1
	}
	sort.SliceStable(cands, func(a, b int) bool {
		return cands[a].elems > cands[b].elems
	})
	return cands[0].idx
}

// promoteToGlobal converts a constant temporary into the equivalent
// read-only global argument, keeping the host data for the one-time
// transfer.
func promoteToGlobal(c ir.Arg) ir.Arg {
	c.Space = ir.SpaceGlobal
	c.ReadOnly = true
	return c
}

// rewritePromoted moves the promoted array from temporaries to arguments in
// every kernel that declared it.
func rewritePromoted(kernels []*ir.Kernel, promoted ir.Arg) {
	for _, k := range kernels {
		if _, ok := k.Temp(promoted.Name); !ok {
			continue
		}
		kept := k.Temps[:0]
		for _, t := range k.Temps {
			if t.Name != promoted.Name {
				kept = append(kept, t)
			}
		}
		k.Temps = kept
		if _, ok := k.Arg(promoted.Name); !ok {
			k.Args = append(k.Args, promoted)
		}
	}
}
