package ir

import "fmt"

// MapStore provides the index-transform view of a kernel descriptor: the
// primary iname/domain pair, index-map transform instructions injected ahead
// of the main instruction block, the index arrays backing non-trivial map
// domains, and an affinity query used to decide SIMD-safety of array
// accesses.  Implementations live with the chemistry-side kernel
// descriptions; the generator treats them as opaque.
type MapStore interface {
	// InameDomain returns the primary loop variable and its domain
	InameDomain() (iname, domain string)
	// TransformInsns returns index-transform instructions to prepend
	TransformInsns() []string
	// DomainArgs returns index arrays required by non-leaf map domains
	DomainArgs() []Arg
	// Affine reports whether the named array is reachable from the base
	// iname through affine transforms only; non-affine accesses cannot be
	// converted to true vector accesses
	Affine(array string) bool
}

// IdentityMapStore is the trivial MapStore: the loop variable indexes every
// array directly with no transform applied.
type IdentityMapStore struct {
	Iname  string
	Domain string
}

func (m IdentityMapStore) InameDomain() (string, string) { return m.Iname, m.Domain }
func (m IdentityMapStore) TransformInsns() []string      { return nil }
func (m IdentityMapStore) DomainArgs() []Arg             { return nil }
func (m IdentityMapStore) Affine(string) bool            { return true }

// Descriptor is the opaque specification of one kernel fed to the builder:
// loop structure, instruction blocks and declared data.  Constructed once by
// the owning generator, consumed once by the builder, immutable thereafter
// except for in-place pruning of unused temporaries.
type Descriptor struct {
	Name    string
	VarName string

	PreInstructions  []string
	Instructions     []string
	PostInstructions []string

	MapStore   MapStore
	KernelData []Arg

	// ExtraInames are additional (iname, domain) loop dimensions
	ExtraInames []Domain
	// InameDomainOverride, when set, replaces the generator's default
	// inames/domains wholesale
	InameDomainOverride []Domain

	Assumptions []string
	Parameters  map[string]int64

	// CanVectorize is false for kernels that cannot be vectorized in the
	// standard way; such kernels require a VecFix function
	CanVectorize bool
	// VecFix is a caller-supplied fix-up run in place of (or after) the
	// standard vectorization transform
	VecFix func(*Kernel) error

	Preambles []PreambleGen
	Manglers  []Mangler
}

// NewDescriptor builds a descriptor with the conventional defaults: inner
// loop variable "i" over [0, extent), identity map store, and standard
// vectorizability.
func NewDescriptor(name string, extent int64, insns []string, data []Arg) *Descriptor {
	return &Descriptor{
		Name:         name,
		VarName:      "i",
		Instructions: insns,
		KernelData:   data,
		MapStore: IdentityMapStore{
			Iname:  "i",
			Domain: RangeFor("i", fmt.Sprintf("%d", extent)),
		},
		CanVectorize: true,
	}
}
