package runner

import (
	"fmt"
	"unsafe"

	"github.com/notargets/gocca"
	"gonum.org/v1/gonum/mat"

	"github.com/WWIIWWIIWW/pyJac-v2/ir"
)

// arrayBytes resolves an array's device footprint: the fixed element count
// times each symbolic dimension, times the element size.
func arrayBytes(a ir.Arg, problemSize, workSize int64) (int64, error) {
	elems := a.FixedElems()
	for _, d := range a.SymDims() {
		switch d.Sym {
		case ir.ProblemSize:
			elems *= problemSize
		case ir.WorkSize:
			elems *= workSize
		default:
			return 0, fmt.Errorf("array %s: cannot size symbolic dimension %s",
				a.Name, d.Sym)
		}
	}
	return elems * a.Dtype.Size(), nil
}

// flatten linearizes a host constant matrix for device upload, matching the
// layout the emitted initializers use: column major for 'F' order, row
// major otherwise.
func flatten(m mat.Matrix, order byte) []float64 {
	rows, cols := m.Dims()
	flat := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if order == 'F' {
				flat[j*rows+i] = m.At(i, j)
			} else {
				flat[i*cols+j] = m.At(i, j)
			}
		}
	}
	return flat
}

// validateBinding rejects host slices whose element type cannot serve the
// argument's device type.
func validateBinding(a ir.Arg, host interface{}) error {
	if a.IsValue() {
		return fmt.Errorf("cannot bind a slice to scalar argument %s", a.Name)
	}
	switch host.(type) {
	case []float64, []float32:
		if a.Dtype.IsIntegral() {
			return fmt.Errorf("array %s: float host data for integral device type %s",
				a.Name, a.Dtype.CName())
		}
	case []int32, []int64:
		if !a.Dtype.IsIntegral() {
			return fmt.Errorf("array %s: integer host data for %s device type",
				a.Name, a.Dtype.CName())
		}
	default:
		return fmt.Errorf("array %s: unsupported host type %T", a.Name, host)
	}
	return nil
}

// CopyToDevice copies a bound host slice to its device allocation,
// converting between float precisions when the host and device types differ.
func (r *Runner) CopyToDevice(name string) error {
	a, mem, host, err := r.transferState(name)
	if err != nil {
		return err
	}

	switch h := host.(type) {
	case []float64:
		if a.Dtype == ir.Float32 {
			converted := make([]float32, len(h))
			for i, v := range h {
				converted[i] = float32(v)
			}
			mem.CopyFrom(unsafe.Pointer(&converted[0]), int64(len(converted)*4))
			return nil
		}
		mem.CopyFrom(unsafe.Pointer(&h[0]), int64(len(h)*8))
	case []float32:
		if a.Dtype == ir.Float64 {
			converted := make([]float64, len(h))
			for i, v := range h {
				converted[i] = float64(v)
			}
			mem.CopyFrom(unsafe.Pointer(&converted[0]), int64(len(converted)*8))
			return nil
		}
		mem.CopyFrom(unsafe.Pointer(&h[0]), int64(len(h)*4))
	case []int32:
		mem.CopyFrom(unsafe.Pointer(&h[0]), int64(len(h)*4))
	case []int64:
		mem.CopyFrom(unsafe.Pointer(&h[0]), int64(len(h)*8))
	default:
		return fmt.Errorf("array %s: unsupported host type %T", name, host)
	}
	return nil
}

// CopyFromDevice copies a device allocation back into its bound host slice,
// converting between float precisions when the types differ.
func (r *Runner) CopyFromDevice(name string) error {
	a, mem, host, err := r.transferState(name)
	if err != nil {
		return err
	}

	switch h := host.(type) {
	case []float64:
		if a.Dtype == ir.Float32 {
			device := make([]float32, len(h))
			mem.CopyTo(unsafe.Pointer(&device[0]), int64(len(device)*4))
			for i, v := range device {
				h[i] = float64(v)
			}
			return nil
		}
		mem.CopyTo(unsafe.Pointer(&h[0]), int64(len(h)*8))
	case []float32:
		if a.Dtype == ir.Float64 {
			device := make([]float64, len(h))
			mem.CopyTo(unsafe.Pointer(&device[0]), int64(len(device)*8))
			for i, v := range device {
				h[i] = float32(v)
			}
			return nil
		}
		mem.CopyTo(unsafe.Pointer(&h[0]), int64(len(h)*4))
	case []int32:
		mem.CopyTo(unsafe.Pointer(&h[0]), int64(len(h)*4))
	case []int64:
		mem.CopyTo(unsafe.Pointer(&h[0]), int64(len(h)*8))
	default:
		return fmt.Errorf("array %s: unsupported host type %T", name, host)
	}
	return nil
}

func (r *Runner) transferState(name string) (*ir.Arg, *gocca.OCCAMemory, interface{}, error) {
	a, ok := r.argFor(name)
	if !ok {
		return nil, nil, nil, fmt.Errorf("no wrapper argument named %s", name)
	}
	mem, ok := r.Memory[name]
	if !ok {
		return nil, nil, nil, fmt.Errorf("device memory for %s not allocated", name)
	}
	host, ok := r.bindings[name]
	if !ok {
		return nil, nil, nil, fmt.Errorf("no host binding for %s", name)
	}
	return a, mem, host, nil
}
