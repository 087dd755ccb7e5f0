// Package generator implements the kernel generation pipeline: building
// concrete kernels from descriptors, vectorization specialization, argument
// resolution, memory placement, working-buffer packing, kernel merging and
// driver construction, and emission of the final source files.
package generator

import (
	"github.com/WWIIWWIIWW/pyJac-v2/ir"
	"github.com/WWIIWWIIWW/pyJac-v2/target"
)

// Specialization is the iname -> tag mapping a specialization run applies
// (or, in dry mode, would apply).
type Specialization map[string]string

// innerVecTag returns the tag for the split-off vector lanes: a true SIMD
// tag when vector-type accesses were requested and every array supports
// them, a local-id lane loop otherwise.
func innerVecTag(k *ir.Kernel, opts ir.Options) string {
	if opts.IsSIMD && len(k.NoVectorLayout) == 0 {
		return "vec"
	}
	return "l.0"
}

// batchIname returns the outer batch iname carrying coarse parallelism,
// accounting for an already fake-split batch loop.
func batchIname(k *ir.Kernel) string {
	if k.FakeSplit {
		return ir.GlobalInd + "_outer"
	}
	return ir.GlobalInd
}

// Specialize applies the vectorization / unrolling / ILP transform to a
// kernel: deep vectorization splits the inner loop, wide vectorization
// splits the batch loop, and the batch loop is tagged for coarse parallelism
// whenever the target supports a parallel iname hierarchy.  In dry mode the
// kernel is left untouched and only the tag mapping that would be applied is
// returned; both modes produce identical mappings for identical input.
func Specialize(k *ir.Kernel, varName string, opts ir.Options,
	tgt target.Target, dry bool) (Specialization, error) {

	if dry {
		k = cloneKernel(k)
	}

	// kernels without a batch loop (e.g. a driver's call stub) skip the
	// batch-dimension transforms entirely
	_, hasBatch := k.Domain(batchIname(k))

	if hasBatch && tgt.SupportsParallelTags() {
		if err := k.Tag(batchIname(k), "g.0"); err != nil {
			return nil, err
		}
	}

	if opts.Depth != 0 {
		if _, ok := k.Domain(varName); ok {
			if err := k.SplitIname(varName, opts.Depth, innerVecTag(k, opts)); err != nil {
				return nil, err
			}
		}
	} else if opts.Width != 0 && hasBatch {
		if !k.FakeSplit {
			if err := k.SplitIname(batchIname(k), opts.Width, innerVecTag(k, opts)); err != nil {
				return nil, err
			}
		} else {
			// fake-split kernels already carry the double-nested batch loop;
			// tag the pre-built inner half instead of re-splitting
			if err := k.Tag(ir.GlobalInd+"_inner", innerVecTag(k, opts)); err != nil {
				return nil, err
			}
		}
	}

	inner := innermostSerial(k)
	if inner != "" {
		if opts.Unroll != 0 {
			if err := k.SplitIname(inner, opts.Unroll, "unr"); err != nil {
				return nil, err
			}
		} else if opts.ILP {
			if err := k.Tag(inner, "ilp"); err != nil {
				return nil, err
			}
		}
	}

	return k.AppliedTags(), nil
}

// innermostSerial returns the last untagged loop domain, the one unroll and
// ILP tags attach to.
func innermostSerial(k *ir.Kernel) string {
	for i := len(k.Domains) - 1; i >= 0; i-- {
		if k.Domains[i].Tag == "" {
			return k.Domains[i].Iname
		}
	}
	return ""
}

// cloneKernel deep-copies the pieces a specialization run mutates.
func cloneKernel(k *ir.Kernel) *ir.Kernel {
	c := *k
	c.Domains = append([]ir.Domain(nil), k.Domains...)
	c.Splits = append([]ir.Split(nil), k.Splits...)
	c.Args = append([]ir.Arg(nil), k.Args...)
	c.Temps = append([]ir.Arg(nil), k.Temps...)
	c.Priorities = append([]string(nil), k.Priorities...)
	if k.Parameters != nil {
		c.Parameters = make(map[string]int64, len(k.Parameters))
		for name, v := range k.Parameters {
			c.Parameters[name] = v
		}
	}
	return &c
}
