package ir

import "errors"

// Fatal error categories.  All abort the current Generate call; none are
// downgraded to warnings.
var (
	// ErrConfig marks an incompatible option combination detected before
	// generation
	ErrConfig = errors.New("configuration error")
	// ErrArgConflict marks same-named kernel arguments differing in
	// anything other than atomicity
	ErrArgConflict = errors.New("unresolvable argument conflict")
	// ErrTempConflict marks same-named temporaries that differ at all
	ErrTempConflict = errors.New("unresolvable temporary conflict")
	// ErrCannotFit marks memory-budget exhaustion with no promotion
	// candidates remaining
	ErrCannotFit = errors.New("cannot fit kernel in memory")
	// ErrWorkingBuffer marks a working-buffer shape violation: a packed
	// array is non-floating-point or its parallel dimension is not the
	// work-size symbol
	ErrWorkingBuffer = errors.New("working buffer shape error")
	// ErrBarrierOrder marks a barrier whose predecessor instruction is not
	// where expected
	ErrBarrierOrder = errors.New("barrier ordering error")
	// ErrUnimplemented marks explicitly unimplemented generation paths
	ErrUnimplemented = errors.New("not implemented")
)
