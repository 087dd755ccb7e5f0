// Package ir holds the intermediate representation consumed by the kernel
// generation pipeline: data types, kernel arguments, loop domains, abstract
// kernel descriptors and the concrete kernels built from them.
package ir

import (
	"fmt"
	"strings"
)

// DataType represents the precision of numerical data
type DataType int

const (
	Float64 DataType = iota + 1
	Float32
	Int32
	Int64
)

// Size returns the size in bytes of a data type
func (dt DataType) Size() int64 {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	default:
		return 8
	}
}

// CName returns the C type name for a data type
func (dt DataType) CName() string {
	switch dt {
	case Float64:
		return "double"
	case Float32:
		return "float"
	case Int32:
		return "int"
	case Int64:
		return "long int"
	default:
		return "double"
	}
}

// IsIntegral reports whether the data type is an integer type
func (dt DataType) IsIntegral() bool {
	return dt == Int32 || dt == Int64
}

// MemSpace classifies where an argument or temporary lives.  This replaces
// the attribute-presence duck typing of the original arrays with an explicit
// kind discriminant.
type MemSpace int

const (
	// SpaceValue is a scalar value argument passed by value
	SpaceValue MemSpace = iota + 1
	// SpaceGlobal is device global memory
	SpaceGlobal
	// SpaceLocal is work-group local (shared) memory
	SpaceLocal
	// SpaceConstant is read-only constant memory
	SpaceConstant
	// SpacePrivate is per-work-item automatic storage
	SpacePrivate
)

func (s MemSpace) String() string {
	switch s {
	case SpaceValue:
		return "value"
	case SpaceGlobal:
		return "global"
	case SpaceLocal:
		return "local"
	case SpaceConstant:
		return "constant"
	case SpacePrivate:
		return "private"
	default:
		return "unknown"
	}
}

// Lang identifies a target language
type Lang string

const (
	LangC      Lang = "c"
	LangOpenCL Lang = "opencl"
)

// Well-known symbol names threaded through the generated code.
const (
	// GlobalInd is the outer (batch) loop index
	GlobalInd = "j"
	// ProblemSize is the total number of initial conditions
	ProblemSize = "problem_size"
	// WorkSize is the number of work-items per kernel invocation; a runtime
	// symbol unless the user pins it to a literal
	WorkSize = "work_size"
	// WorkingBuffer is the packed per-work-item scratch array
	WorkingBuffer = "rwk"
	// PerRun is the memory-budget cap on conditions per driver invocation
	PerRun = "per_run"
	// DriverOffset is the driver's chunk loop variable
	DriverOffset = "driver_offset"
)

// Dim is one array dimension: either a fixed integer size or a symbolic size
// (e.g. the work-size symbol).
type Dim struct {
	Size int64
	Sym  string
}

// FixedDim returns a fixed integer dimension
func FixedDim(n int64) Dim { return Dim{Size: n} }

// SymDim returns a symbolic dimension
func SymDim(name string) Dim { return Dim{Sym: name} }

// Fixed reports whether the dimension has a literal size
func (d Dim) Fixed() bool { return d.Sym == "" }

func (d Dim) String() string {
	if d.Fixed() {
		return fmt.Sprintf("%d", d.Size)
	}
	return d.Sym
}

// Domain is a named loop dimension with its (textual) half-open range and an
// optional parallelization tag ("g.0", "l.0", "vec", "unr", "ilp").
type Domain struct {
	Iname string
	Range string
	Tag   string
}

// RangeFor builds the canonical "0 <= iname < size" domain string
func RangeFor(iname, size string) string {
	return fmt.Sprintf("0 <= %s < %s", iname, size)
}

// BarrierKind selects the synchronization scope of an inserted barrier
type BarrierKind int

const (
	GlobalBarrier BarrierKind = iota + 1
	LocalBarrier
)

// Barrier requests a synchronization statement between two kernel calls:
// the barrier is inserted immediately before After's call, which must
// directly follow Before's call.
type Barrier struct {
	Before string
	After  string
	Kind   BarrierKind
}

// Identifiers returns the set of C identifiers appearing in the given
// instruction strings.
func Identifiers(insns []string) map[string]bool {
	ids := make(map[string]bool)
	isAlnum := func(c byte) bool {
		return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9')
	}
	for _, insn := range insns {
		start := -1
		for i := 0; i <= len(insn); i++ {
			var c byte
			if i < len(insn) {
				c = insn[i]
			}
			isIdent := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
				(start >= 0 && c >= '0' && c <= '9')
			if isIdent && start < 0 {
				// a letter directly after a digit is part of a numeric
				// literal (1e-3), not an identifier
				if i > 0 && isAlnum(insn[i-1]) {
					continue
				}
				start = i
			} else if !isIdent && start >= 0 {
				ids[insn[start:i]] = true
				start = -1
			}
		}
	}
	return ids
}

// AssignTargets returns the names assigned to (plain or compound assignment)
// in the given instructions.  Comparison operators are not assignments.
func AssignTargets(insns []string) map[string]bool {
	out := make(map[string]bool)
	for _, insn := range insns {
		name, ok := assignTarget(insn)
		if ok {
			out[name] = true
		}
	}
	return out
}

func assignTarget(insn string) (string, bool) {
	eq := -1
	depth := 0
	for i := 0; i < len(insn); i++ {
		switch insn[i] {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case '=':
			if depth != 0 {
				continue
			}
			// skip ==, <=, >=, !=
			if i+1 < len(insn) && insn[i+1] == '=' {
				i++
				continue
			}
			if i > 0 && strings.ContainsRune("<>!=", rune(insn[i-1])) {
				continue
			}
			eq = i
		}
		if eq >= 0 {
			break
		}
	}
	if eq < 0 {
		return "", false
	}
	lhs := strings.TrimSpace(insn[:eq])
	lhs = strings.TrimRight(lhs, "+-*/%&|^ \t")
	if idx := strings.IndexByte(lhs, '['); idx >= 0 {
		lhs = lhs[:idx]
	}
	lhs = strings.TrimSpace(lhs)
	if i := strings.LastIndexAny(lhs, " \t*"); i >= 0 {
		lhs = lhs[i+1:]
	}
	if lhs == "" {
		return "", false
	}
	return lhs, true
}
