// Package memory tracks device memory budgets for the kernel generation
// pipeline: per-class byte ceilings (global, constant, local, per-allocation)
// sourced from device-type defaults or a user-supplied limits file, the
// constant-memory fit checks driving promotion, and the derived maximum
// number of initial conditions evaluable per driver invocation.
package memory

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/WWIIWWIIWW/pyJac-v2/ir"
)

// Class is a memory budget class
type Class int

const (
	// ClassGlobal caps total device global memory
	ClassGlobal Class = iota + 1
	// ClassConstant caps total constant (`__constant`) memory
	ClassConstant
	// ClassLocal caps total work-group local memory
	ClassLocal
	// ClassAlloc caps any single allocation
	ClassAlloc
)

func (c Class) String() string {
	switch c {
	case ClassGlobal:
		return "global"
	case ClassConstant:
		return "constant"
	case ClassLocal:
		return "local"
	case ClassAlloc:
		return "alloc"
	default:
		return "unknown"
	}
}

// Limits holds the per-class byte ceilings in effect for one generation run.
type Limits struct {
	opts ir.Options
	caps map[Class]int64
}

// Conservative device defaults, overridable by a limits file.  The GPU
// numbers follow the common OpenCL minimums (64 KiB constant, 48 KiB local);
// CPUs get host-memory-scale ceilings.
func defaultCaps(dev ir.DeviceType) map[Class]int64 {
	const (
		kib = int64(1) << 10
		mib = int64(1) << 20
		gib = int64(1) << 30
	)
	if dev == ir.DeviceGPU {
		return map[Class]int64{
			ClassGlobal:   4 * gib,
			ClassAlloc:    1 * gib,
			ClassConstant: 64 * kib,
			ClassLocal:    48 * kib,
		}
	}
	return map[Class]int64{
		ClassGlobal:   64 * gib,
		ClassAlloc:    16 * gib,
		ClassConstant: 1 * gib,
		ClassLocal:    1 * gib,
	}
}

// NewLimits builds the budget for the given options, loading the YAML
// limits file when one is configured.
func NewLimits(opts ir.Options) (*Limits, error) {
	l := &Limits{opts: opts, caps: defaultCaps(opts.DeviceType)}
	if opts.MemLimitsFile == "" {
		return l, nil
	}
	if err := l.loadFile(opts.MemLimitsFile); err != nil {
		return nil, err
	}
	return l, nil
}

// limitsFile is the on-disk schema:
//
//	memory-limits:
//	    global: 4 GB
//	    constant: 64 KB
//	    local: 48 KB
//	    alloc: 1 GB
//	    platforms: [intel]
type limitsFile struct {
	MemoryLimits struct {
		Global    string   `yaml:"global"`
		Constant  string   `yaml:"constant"`
		Local     string   `yaml:"local"`
		Alloc     string   `yaml:"alloc"`
		Platforms []string `yaml:"platforms"`
	} `yaml:"memory-limits"`
}

func (l *Limits) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading memory limits %s: %v", ir.ErrConfig, path, err)
	}
	var lf limitsFile
	if err := yaml.Unmarshal(raw, &lf); err != nil {
		return fmt.Errorf("%w: parsing memory limits %s: %v", ir.ErrConfig, path, err)
	}
	if len(lf.MemoryLimits.Platforms) > 0 && l.opts.Device != "" {
		found := false
		for _, p := range lf.MemoryLimits.Platforms {
			if strings.EqualFold(p, l.opts.Device) {
				found = true
				break
			}
		}
		// limits scoped to other platforms do not apply
		if !found {
			return nil
		}
	}
	for c, s := range map[Class]string{
		ClassGlobal:   lf.MemoryLimits.Global,
		ClassConstant: lf.MemoryLimits.Constant,
		ClassLocal:    lf.MemoryLimits.Local,
		ClassAlloc:    lf.MemoryLimits.Alloc,
	} {
		if s == "" {
			continue
		}
		n, err := ParseSize(s)
		if err != nil {
			return fmt.Errorf("%w: limit %s in %s: %v", ir.ErrConfig, c, path, err)
		}
		l.caps[c] = n
	}
	return nil
}

var sizeRe = regexp.MustCompile(`^\s*([0-9]*\.?[0-9]+)\s*([KkMmGgTt]?)[Ii]?[Bb]?\s*$`)

// ParseSize converts a human size string ("64 KB", "4gb", "1024") to bytes.
func ParseSize(s string) (int64, error) {
	m := sizeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("cannot parse size %q", s)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse size %q: %v", s, err)
	}
	shift := map[string]uint{"": 0, "k": 10, "m": 20, "g": 30, "t": 40}
	v *= float64(int64(1) << shift[strings.ToLower(m[2])])
	return int64(v), nil
}

// Limit returns the byte ceiling for a class
func (l *Limits) Limit(c Class) int64 { return l.caps[c] }

// classOf maps an array's memory space onto its budget class; private
// storage is register-allocated and untracked.
func classOf(space ir.MemSpace) (Class, bool) {
	switch space {
	case ir.SpaceGlobal:
		return ClassGlobal, true
	case ir.SpaceConstant:
		return ClassConstant, true
	case ir.SpaceLocal:
		return ClassLocal, true
	}
	return 0, false
}

// StaticBytes sums the footprint of the statically-sized arrays in the
// given space.
func StaticBytes(args []ir.Arg, space ir.MemSpace) int64 {
	var n int64
	for _, a := range args {
		if a.Space == space && a.Static() && !a.IsValue() {
			n += a.PerItemBytes()
		}
	}
	return n
}

// FitsStatic checks every statically-sized allocation against its class
// ceiling and the per-allocation ceiling.  Work-sized global arrays are
// sized by MaxRunSize instead.
func (l *Limits) FitsStatic(args []ir.Arg) error {
	totals := make(map[Class]int64)
	for _, a := range args {
		c, ok := classOf(a.Space)
		if !ok || !a.Static() || a.IsValue() {
			continue
		}
		sz := a.PerItemBytes()
		if sz > l.caps[ClassAlloc] {
			return fmt.Errorf("%w: array %s (%d bytes) exceeds the per-allocation "+
				"limit (%d bytes)", ir.ErrCannotFit, a.Name, sz, l.caps[ClassAlloc])
		}
		totals[c] += sz
	}
	for c, total := range totals {
		if total > l.caps[c] {
			return fmt.Errorf("%w: %s memory requires %d bytes, limit is %d",
				ir.ErrCannotFit, c, total, l.caps[c])
		}
	}
	return nil
}

// ConstantFits reports whether the statically-sized constant arrays fit the
// constant-memory ceiling.  Used by the placement engine between promotion
// steps.
func (l *Limits) ConstantFits(args []ir.Arg) bool {
	return StaticBytes(args, ir.SpaceConstant) <= l.caps[ClassConstant]
}

// MaxRunSize returns the largest number of initial conditions evaluable in
// one driver invocation under the global and per-allocation ceilings.  The
// result is floored to a multiple of vecWidth (when nonzero) and, under the
// integer-overflow policy, capped so that no array index exceeds a 32-bit
// signed integer.
func (l *Limits) MaxRunSize(args []ir.Arg, vecWidth int) (int64, error) {
	staticGlobal := StaticBytes(args, ir.SpaceGlobal)
	var perItem int64
	maxPerItemElems := int64(0)
	maxIC := int64(math.MaxInt64)

	for _, a := range args {
		if a.Space != ir.SpaceGlobal || a.Static() || a.IsValue() {
			continue
		}
		perItem += a.PerItemBytes()
		if a.FixedElems() > maxPerItemElems {
			maxPerItemElems = a.FixedElems()
		}
		// per-allocation ceiling on this array alone
		if fit := l.caps[ClassAlloc] / a.PerItemBytes(); fit < maxIC {
			maxIC = fit
		}
	}
	if perItem == 0 {
		return 0, fmt.Errorf("%w: no per-condition global arrays to size the run",
			ir.ErrCannotFit)
	}
	if fit := (l.caps[ClassGlobal] - staticGlobal) / perItem; fit < maxIC {
		maxIC = fit
	}
	if l.opts.LimitIntOverflow && maxPerItemElems > 0 {
		if fit := int64(math.MaxInt32) / maxPerItemElems; fit < maxIC {
			maxIC = fit
		}
	}
	if vecWidth > 1 {
		maxIC = (maxIC / int64(vecWidth)) * int64(vecWidth)
	}
	if maxIC <= 0 {
		return 0, fmt.Errorf("%w: global memory limit %d cannot hold a single "+
			"initial condition (%d bytes each, %d static)", ir.ErrCannotFit,
			l.caps[ClassGlobal], perItem, staticGlobal)
	}
	return maxIC, nil
}
