package ir

import "fmt"

// DeviceType classifies the execution device for memory-limit defaults
type DeviceType string

const (
	DeviceCPU DeviceType = "CPU"
	DeviceGPU DeviceType = "GPU"
)

// DriverType selects the batch-looping strategy of the generated driver
type DriverType int

const (
	// LockstepDriver evaluates chunks of initial conditions in lockstep,
	// one wrapping-kernel invocation per chunk
	LockstepDriver DriverType = iota
	// QueueDriver is reserved for a work-queue driver
	QueueDriver
)

// Options holds the user-facing generation options shared by every stage of
// the pipeline.
type Options struct {
	Lang  Lang
	Order byte // 'C' or 'F'

	// Depth is the deep (SIMD-lane) vectorization width; Width the wide
	// (work-group) vectorization width.  At most one may be set.
	Depth int
	Width int

	// Unroll unrolls the innermost loop by the given factor; ILP tags it
	// for instruction-level parallelism instead
	Unroll int
	ILP    bool

	// IsSIMD requests true vector-type accesses rather than lane loops
	IsSIMD bool

	// WorkSize pins the per-invocation work size to a literal; zero leaves
	// it a runtime symbol
	WorkSize int64

	Device     string
	DeviceType DeviceType

	MemLimitsFile    string
	LimitIntOverflow bool

	AutoDiff bool

	DriverType DriverType
}

// Validate rejects incompatible option combinations before generation
func (o Options) Validate() error {
	if o.Lang != LangC && o.Lang != LangOpenCL {
		return fmt.Errorf("%w: unknown target language %q", ErrConfig, o.Lang)
	}
	if o.Depth != 0 && o.Width != 0 {
		return fmt.Errorf("%w: cannot use both deep (%d) and wide (%d) vectorization",
			ErrConfig, o.Depth, o.Width)
	}
	if o.Unroll != 0 && o.ILP {
		return fmt.Errorf("%w: unrolling and ILP are mutually exclusive", ErrConfig)
	}
	if o.AutoDiff && o.Lang != LangC {
		return fmt.Errorf("%w: auto-differentiation requires the C target", ErrConfig)
	}
	if o.Order == 0 {
		return fmt.Errorf("%w: data order not set", ErrConfig)
	}
	return nil
}

// VecWidth returns the effective vector width (depth wins over width)
func (o Options) VecWidth() int {
	if o.Depth != 0 {
		return o.Depth
	}
	return o.Width
}

// UserSpecifiedWorkSize reports whether the work size was pinned
func (o Options) UserSpecifiedWorkSize() bool { return o.WorkSize != 0 }
