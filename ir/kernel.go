package ir

import (
	"fmt"
	"regexp"
	"strings"
)

// Split records an iname split applied by the vectorization specializer:
// the original loop is divided into iname_outer / iname_inner with the
// inner trip count equal to Factor.
type Split struct {
	Iname    string
	Factor   int
	InnerTag string
}

// Kernel is a concrete kernel built from a Descriptor: a fixed loop skeleton
// (outer batch loop wrapping pre instructions, per-item inner loop wrapping
// main instructions, then post instructions) plus its argument list.
type Kernel struct {
	Name    string
	VarName string

	// Domains hold the loop nest in outer-to-inner order
	Domains []Domain
	Splits  []Split

	PreInstructions  []string
	Instructions     []string
	PostInstructions []string

	// Args are the kernel arguments (value and array); Temps the
	// temporary variables (local / constant / private scope)
	Args  []Arg
	Temps []Arg

	Assumptions []string
	Parameters  map[string]int64
	Priorities  []string

	Preambles []PreambleGen
	Manglers  []Mangler

	// FakeSplit marks a kernel built with the double-nested outer loop used
	// to keep wide vectorization from re-splitting already-split loops
	FakeSplit bool

	// VectorLanes is the per-array layout split width applied by the array
	// splitter; NoVectorLayout lists arrays excluded from SIMD conversion
	VectorLanes    int
	NoVectorLayout []string
}

// Arg returns the named kernel argument, if present
func (k *Kernel) Arg(name string) (*Arg, bool) {
	for i := range k.Args {
		if k.Args[i].Name == name {
			return &k.Args[i], true
		}
	}
	return nil, false
}

// Temp returns the named temporary, if present
func (k *Kernel) Temp(name string) (*Arg, bool) {
	for i := range k.Temps {
		if k.Temps[i].Name == name {
			return &k.Temps[i], true
		}
	}
	return nil, false
}

// AllInstructions returns pre, main and post instructions in order
func (k *Kernel) AllInstructions() []string {
	out := make([]string, 0,
		len(k.PreInstructions)+len(k.Instructions)+len(k.PostInstructions))
	out = append(out, k.PreInstructions...)
	out = append(out, k.Instructions...)
	out = append(out, k.PostInstructions...)
	return out
}

// WrittenVars returns the names written to by any instruction
func (k *Kernel) WrittenVars() map[string]bool {
	return AssignTargets(k.AllInstructions())
}

// Domain returns the named loop domain, if present
func (k *Kernel) Domain(iname string) (*Domain, bool) {
	for i := range k.Domains {
		if k.Domains[i].Iname == iname {
			return &k.Domains[i], true
		}
	}
	return nil, false
}

// Tag assigns a parallelization tag to a loop domain
func (k *Kernel) Tag(iname, tag string) error {
	d, ok := k.Domain(iname)
	if !ok {
		return fmt.Errorf("cannot tag unknown iname %s in kernel %s", iname, k.Name)
	}
	d.Tag = tag
	return nil
}

// SplitIname divides the named loop by factor: the domain is renamed to
// iname_outer and a new iname_inner domain of trip count factor is appended,
// tagged with innerTag.
func (k *Kernel) SplitIname(iname string, factor int, innerTag string) error {
	d, ok := k.Domain(iname)
	if !ok {
		return fmt.Errorf("cannot split unknown iname %s in kernel %s", iname, k.Name)
	}
	d.Iname = iname + "_outer"
	d.Range = replaceIdent(d.Range, iname, d.Iname)
	inner := Domain{
		Iname: iname + "_inner",
		Range: RangeFor(iname+"_inner", fmt.Sprintf("%d", factor)),
		Tag:   innerTag,
	}
	// keep the inner domain directly after its outer half so the rendered
	// loop nest pairs them
	for i := range k.Domains {
		if k.Domains[i].Iname == iname+"_outer" {
			k.Domains = append(k.Domains[:i+1],
				append([]Domain{inner}, k.Domains[i+1:]...)...)
			break
		}
	}
	k.Splits = append(k.Splits, Split{Iname: iname, Factor: factor, InnerTag: innerTag})
	return nil
}

// replaceIdent rewrites whole-identifier occurrences of old within expr;
// identifiers merely containing old as a substring are left alone.
func replaceIdent(expr, old, new string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(old) + `\b`)
	return re.ReplaceAllString(expr, new)
}

// AppliedTags returns the iname -> tag mapping currently applied to the
// kernel's loop domains.  Used to verify dry-run specialization consistency.
func (k *Kernel) AppliedTags() map[string]string {
	tags := make(map[string]string)
	for _, d := range k.Domains {
		if d.Tag != "" {
			tags[d.Iname] = d.Tag
		}
	}
	return tags
}

// PreambleGen is an opaque device-level preamble fragment registered by a
// descriptor; fragments are deduplicated by name at assembly.
type PreambleGen struct {
	Name string
	Code string
}

// Mangler describes a callable function signature the kernel-core compiler
// must accept inside instruction text (e.g. a dependency kernel call).
type Mangler struct {
	Func      string
	ArgDtypes []DataType
	RetDtypes []DataType
}

// KernelSource yields a concrete kernel at assembly time.  A *Kernel is its
// own source; a Generator resolves to its wrapping kernel, which may not
// exist until that generator has been assembled.
type KernelSource interface {
	ConcreteKernel() *Kernel
	SourceName() string
}

// ConcreteKernel returns the kernel itself
func (k *Kernel) ConcreteKernel() *Kernel { return k }

// SourceName returns the kernel name
func (k *Kernel) SourceName() string { return k.Name }

// FakeCall is a placeholder call smuggled into a descriptor's instructions
// because the kernel-core compiler cannot express cross-kernel calls
// directly; at assembly the literal DummyCall text inside ReplaceIn's
// emitted body is substituted with a real call to ReplaceWith.
type FakeCall struct {
	DummyCall   string
	ReplaceIn   KernelSource
	ReplaceWith KernelSource
}

// Match reports whether the fake call applies to the kernel just processed.
// For plain merges the dummy kernel is matched by name containment; for
// driver assembly both the dummy kernel and the target must be named in the
// call instruction text.
func (fc FakeCall) Match(k *Kernel, callInsn string, forDriver bool) bool {
	repl := fc.ReplaceIn.ConcreteKernel()
	if repl == nil {
		return false
	}
	if forDriver {
		return strings.Contains(callInsn, k.Name) && strings.Contains(callInsn, repl.Name)
	}
	return strings.Contains(repl.Name, k.Name)
}
