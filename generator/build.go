package generator

import (
	"fmt"
	"log"

	"github.com/WWIIWWIIWW/pyJac-v2/ir"
)

// batchDomains returns the outer batch loop domain(s).  With an explicit
// vector width outside of testing mode, a pre-built double-nested loop
// (j_outer / j_inner) stands in for the split the specializer would apply,
// keeping the loop-splitting transform from mangling it again.
func (g *Generator) batchDomains() ([]ir.Domain, bool) {
	if g.opts.Width != 0 && !g.forTesting() {
		return []ir.Domain{
			{Iname: ir.GlobalInd + "_outer",
				Range: ir.RangeFor(ir.GlobalInd+"_outer", ir.WorkSize)},
			{Iname: ir.GlobalInd + "_inner",
				Range: ir.RangeFor(ir.GlobalInd+"_inner", fmt.Sprintf("%d", g.opts.Width))},
		}, true
	}
	extent := ir.WorkSize
	if g.forTesting() {
		extent = g.problemSizeExpr()
	}
	return []ir.Domain{{Iname: ir.GlobalInd, Range: ir.RangeFor(ir.GlobalInd, extent)}}, false
}

// buildKernel turns one descriptor into a concrete kernel: loop skeleton,
// instruction blocks, deduplicated data, assumptions, specialization and
// temporary pruning.
func (g *Generator) buildKernel(d *ir.Descriptor) (*ir.Kernel, error) {
	k := &ir.Kernel{Name: d.Name, VarName: d.VarName}

	if len(d.InameDomainOverride) > 0 {
		k.Domains = append(k.Domains, d.InameDomainOverride...)
	} else {
		batch, fake := g.batchDomains()
		k.FakeSplit = fake
		k.Domains = append(k.Domains, batch...)
		if d.MapStore != nil {
			iname, domain := d.MapStore.InameDomain()
			k.Domains = append(k.Domains, ir.Domain{Iname: iname, Range: domain})
		}
		k.Domains = append(k.Domains, d.ExtraInames...)
	}

	k.PreInstructions = append(k.PreInstructions, d.PreInstructions...)
	if d.MapStore != nil {
		k.Instructions = append(k.Instructions, d.MapStore.TransformInsns()...)
	}
	k.Instructions = append(k.Instructions, d.Instructions...)
	k.PostInstructions = append(k.PostInstructions, d.PostInstructions...)

	data := d.KernelData
	if d.MapStore != nil {
		data = append(append([]ir.Arg(nil), data...), d.MapStore.DomainArgs()...)
	}
	for _, a := range dedupData(data) {
		switch a.Space {
		case ir.SpaceValue, ir.SpaceGlobal:
			k.Args = append(k.Args, a)
		default:
			k.Temps = append(k.Temps, a)
		}
	}

	k.Assumptions = append(k.Assumptions, fmt.Sprintf("%s > 0", ir.ProblemSize))
	if vw := g.opts.VecWidth(); vw != 0 {
		k.Assumptions = append(k.Assumptions,
			fmt.Sprintf("%s %% %d == 0", ir.ProblemSize, vw))
	}
	k.Assumptions = append(k.Assumptions, d.Assumptions...)

	k.Parameters = make(map[string]int64, len(d.Parameters)+1)
	for name, v := range d.Parameters {
		k.Parameters[name] = v
	}
	if g.opts.UserSpecifiedWorkSize() {
		k.Parameters[ir.WorkSize] = g.opts.WorkSize
	}

	if g.opts.IsSIMD && d.MapStore != nil {
		markUnvectorizable(k, d.MapStore)
	}

	if d.CanVectorize {
		if _, err := Specialize(k, d.VarName, g.opts, g.tgt, false); err != nil {
			return nil, err
		}
		if d.VecFix != nil {
			if err := d.VecFix(k); err != nil {
				return nil, err
			}
		}
	} else {
		if d.VecFix == nil {
			return nil, fmt.Errorf("%w: kernel %s cannot be vectorized in the "+
				"standard way and no fix-up was supplied", ir.ErrConfig, d.Name)
		}
		if err := d.VecFix(k); err != nil {
			return nil, err
		}
	}

	for _, dom := range k.Domains {
		k.Priorities = append(k.Priorities, dom.Iname)
	}
	k.Preambles = append(k.Preambles, d.Preambles...)
	k.Manglers = append(k.Manglers, d.Manglers...)

	pruneTemps(k)
	return k, nil
}

// markUnvectorizable records arrays the map store cannot reach through
// affine transforms: true vector-type accesses would gather, so they are
// excluded from the SIMD layout conversion with a warning.
func markUnvectorizable(k *ir.Kernel, ms ir.MapStore) {
	for _, a := range k.Args {
		if a.IsValue() || ms.Affine(a.Name) {
			continue
		}
		log.Printf("warning: kernel %s: array %s is not affinely accessible "+
			"and will not use vector-type accesses", k.Name, a.Name)
		k.NoVectorLayout = append(k.NoVectorLayout, a.Name)
	}
}

// dedupData keeps the first occurrence of each name, preserving order.
// Conflicting redefinitions are deferred to merge-time resolution.
func dedupData(data []ir.Arg) []ir.Arg {
	seen := make(map[string]bool, len(data))
	out := make([]ir.Arg, 0, len(data))
	for _, a := range data {
		if seen[a.Name] {
			continue
		}
		seen[a.Name] = true
		out = append(out, a)
	}
	return out
}

// pruneTemps removes temporaries never referenced by the kernel's
// instructions or by another live array's shape symbols.
func pruneTemps(k *ir.Kernel) {
	live := ir.Identifiers(k.AllInstructions())
	for _, a := range k.Args {
		for _, d := range a.SymDims() {
			live[d.Sym] = true
		}
	}
	kept := k.Temps[:0]
	for _, t := range k.Temps {
		if live[t.Name] {
			kept = append(kept, t)
			for _, d := range t.SymDims() {
				live[d.Sym] = true
			}
		}
	}
	k.Temps = kept
}
