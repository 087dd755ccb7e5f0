package ir

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Arg is a kernel argument or temporary variable.  Two args sharing a name
// across kernels must be structurally identical except possibly for
// atomicity; any other divergence is a hard error at merge time.
type Arg struct {
	Name  string
	Dtype DataType
	Shape []Dim
	Space MemSpace
	// Atomic marks the atomic-typed variant of a numeric argument
	Atomic bool
	// ReadOnly marks constant data and promoted host constants
	ReadOnly bool
	// NoPromote excludes structurally-special constant arrays (e.g. sparse
	// Jacobian index structures) from constant->global promotion: consuming
	// code cannot accept them as plain pointers.
	NoPromote bool
	// Order is the data layout, 'C' (row major) or 'F' (column major)
	Order byte
	// Init optionally carries host data for constant arrays, rendered into
	// a target-language initializer at emission
	Init mat.Matrix
}

// ValueArg builds a scalar value argument
func ValueArg(name string, dt DataType) Arg {
	return Arg{Name: name, Dtype: dt, Space: SpaceValue}
}

// GlobalArg builds a global array argument
func GlobalArg(name string, dt DataType, shape ...Dim) Arg {
	return Arg{Name: name, Dtype: dt, Shape: shape, Space: SpaceGlobal, Order: 'C'}
}

// LocalTemp builds a work-group local temporary
func LocalTemp(name string, dt DataType, shape ...Dim) Arg {
	return Arg{Name: name, Dtype: dt, Shape: shape, Space: SpaceLocal, Order: 'C'}
}

// ConstantTemp builds a read-only constant temporary
func ConstantTemp(name string, dt DataType, shape ...Dim) Arg {
	return Arg{Name: name, Dtype: dt, Shape: shape, Space: SpaceConstant,
		ReadOnly: true, Order: 'C'}
}

// PrivateTemp builds a per-work-item temporary
func PrivateTemp(name string, dt DataType, shape ...Dim) Arg {
	return Arg{Name: name, Dtype: dt, Shape: shape, Space: SpacePrivate, Order: 'C'}
}

// IsValue reports whether this is a scalar value argument
func (a Arg) IsValue() bool { return a.Space == SpaceValue }

// FixedElems returns the product of the fixed (integer) dimensions, i.e. the
// per-work-item element count for work-sized arrays and the total element
// count for static arrays.
func (a Arg) FixedElems() int64 {
	n := int64(1)
	for _, d := range a.Shape {
		if d.Fixed() {
			n *= d.Size
		}
	}
	return n
}

// SymDims returns the symbolic dimensions of the shape
func (a Arg) SymDims() []Dim {
	var out []Dim
	for _, d := range a.Shape {
		if !d.Fixed() {
			out = append(out, d)
		}
	}
	return out
}

// PerItemBytes returns the per-work-item footprint in bytes
func (a Arg) PerItemBytes() int64 {
	return a.FixedElems() * a.Dtype.Size()
}

// Static reports whether the array's footprint is independent of the number
// of work items processed
func (a Arg) Static() bool {
	return len(a.SymDims()) == 0
}

// WithAtomic returns a copy of the argument with the atomic flag set
func (a Arg) WithAtomic() Arg {
	a.Atomic = true
	return a
}

// Equal reports full structural equality, including atomicity.
func (a Arg) Equal(o Arg) bool {
	if !a.EqualExceptAtomic(o) {
		return false
	}
	return a.Atomic == o.Atomic
}

// EqualExceptAtomic reports structural equality ignoring the atomic flag,
// the only divergence tolerated between same-named arguments.
func (a Arg) EqualExceptAtomic(o Arg) bool {
	if a.Name != o.Name || a.Dtype != o.Dtype || a.Space != o.Space ||
		a.ReadOnly != o.ReadOnly || a.NoPromote != o.NoPromote || a.Order != o.Order {
		return false
	}
	if len(a.Shape) != len(o.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != o.Shape[i] {
			return false
		}
	}
	if (a.Init == nil) != (o.Init == nil) {
		return false
	}
	if a.Init != nil && !mat.Equal(a.Init, o.Init) {
		return false
	}
	return true
}

func (a Arg) String() string {
	dims := make([]string, len(a.Shape))
	for i, d := range a.Shape {
		dims[i] = d.String()
	}
	atomic := ""
	if a.Atomic {
		atomic = " atomic"
	}
	return fmt.Sprintf("%s %s%s %s(%s)", a.Space, a.Dtype.CName(), atomic,
		a.Name, strings.Join(dims, ", "))
}
