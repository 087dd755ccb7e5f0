package generator

import (
	"fmt"
	"strings"

	"github.com/WWIIWWIIWW/pyJac-v2/ir"
)

// BufferOffset is one packed array's slot in the working buffer
type BufferOffset struct {
	Name string
	// Offset is the linear element offset expression into the buffer
	Offset string
	// Elems is the array's per-work-item element count
	Elems int64
}

// BufferLayout is the packed working buffer: one flat per-work-item float64
// scratch array replacing the individual allocations.
type BufferLayout struct {
	ElemsPerItem int64
	Offsets      []BufferOffset
}

// Arg returns the working-buffer argument to thread through signatures
func (b *BufferLayout) Arg() ir.Arg {
	return ir.GlobalArg(ir.WorkingBuffer, ir.Float64,
		ir.SymDim(ir.WorkSize), ir.FixedDim(b.ElemsPerItem))
}

// Offset returns the named array's offset expression, if packed
func (b *BufferLayout) Offset(name string) (string, bool) {
	for _, o := range b.Offsets {
		if o.Name == name {
			return o.Offset, true
		}
	}
	return "", false
}

// packWorkingBuffer lays the given scratch arrays out in one flat buffer,
// in order, tightly packed: each array's offset is the running per-item
// element total scaled by the work size.  Every input must be floating
// point, and its parallel dimension must be the work-size symbol unless the
// user pinned a literal work size.
func packWorkingBuffer(args []ir.Arg, userWorkSize bool) (*BufferLayout, error) {
	layout := &BufferLayout{}
	for _, a := range args {
		if a.Dtype.IsIntegral() {
			return nil, fmt.Errorf("%w: integral array %s cannot be packed",
				ir.ErrWorkingBuffer, a.Name)
		}
		if !userWorkSize {
			syms := a.SymDims()
			if len(syms) != 1 || syms[0].Sym != ir.WorkSize {
				return nil, fmt.Errorf("%w: array %s parallel dimension is %s, "+
					"expected the %s symbol", ir.ErrWorkingBuffer, a.Name,
					describeSyms(syms), ir.WorkSize)
			}
		}
		layout.Offsets = append(layout.Offsets, BufferOffset{
			Name:   a.Name,
			Offset: fmt.Sprintf("%d * %s", layout.ElemsPerItem, ir.WorkSize),
			Elems:  a.FixedElems(),
		})
		layout.ElemsPerItem += a.FixedElems()
	}
	return layout, nil
}

func describeSyms(syms []ir.Dim) string {
	if len(syms) == 0 {
		return "(fixed)"
	}
	parts := make([]string, len(syms))
	for i, s := range syms {
		parts[i] = s.Sym
	}
	return strings.Join(parts, ",")
}
