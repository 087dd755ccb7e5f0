package memory

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/WWIIWWIIWW/pyJac-v2/ir"
)

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1024", 1024},
		{"64 KB", 64 << 10},
		{"64kb", 64 << 10},
		{"4 GB", 4 << 30},
		{"1.5 MB", 3 << 19},
		{"48 KiB", 48 << 10},
	}
	for _, c := range cases {
		got, err := ParseSize(c.in)
		if err != nil {
			t.Errorf("ParseSize(%q) failed: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	if _, err := ParseSize("lots"); err == nil {
		t.Error("expected parse error for junk input")
	}
}

func TestLimitsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.yaml")
	content := `memory-limits:
    constant: 1 KB
    global: 2 GB
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	l, err := NewLimits(ir.Options{Lang: ir.LangOpenCL, Order: 'C',
		DeviceType: ir.DeviceGPU, MemLimitsFile: path})
	if err != nil {
		t.Fatalf("NewLimits failed: %v", err)
	}
	if got := l.Limit(ClassConstant); got != 1<<10 {
		t.Errorf("constant limit = %d, want %d", got, 1<<10)
	}
	if got := l.Limit(ClassGlobal); got != 2<<30 {
		t.Errorf("global limit = %d, want %d", got, 2<<30)
	}
	// unspecified classes keep the device default
	if got := l.Limit(ClassLocal); got != 48<<10 {
		t.Errorf("local limit = %d, want GPU default %d", got, 48<<10)
	}
}

func TestLimitsFilePlatformScope(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.yaml")
	content := `memory-limits:
    constant: 1 KB
    platforms: [nvidia]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	l, err := NewLimits(ir.Options{Lang: ir.LangOpenCL, Order: 'C',
		DeviceType: ir.DeviceGPU, Device: "intel", MemLimitsFile: path})
	if err != nil {
		t.Fatalf("NewLimits failed: %v", err)
	}
	if got := l.Limit(ClassConstant); got != 64<<10 {
		t.Errorf("limits scoped to another platform applied: constant = %d", got)
	}
}

func TestConstantFits(t *testing.T) {
	l, err := NewLimits(ir.Options{Lang: ir.LangOpenCL, Order: 'C',
		DeviceType: ir.DeviceGPU})
	if err != nil {
		t.Fatal(err)
	}
	small := []ir.Arg{ir.ConstantTemp("A", ir.Float64, ir.FixedDim(16))}
	if !l.ConstantFits(small) {
		t.Error("16 doubles should fit 64 KiB of constant memory")
	}
	big := []ir.Arg{ir.ConstantTemp("B", ir.Float64, ir.FixedDim(1<<20))}
	if l.ConstantFits(big) {
		t.Error("8 MiB constant array cannot fit 64 KiB")
	}
}

func TestMaxRunSize(t *testing.T) {
	opts := ir.Options{Lang: ir.LangOpenCL, Order: 'C', DeviceType: ir.DeviceGPU}
	l, err := NewLimits(opts)
	if err != nil {
		t.Fatal(err)
	}
	args := []ir.Arg{
		ir.GlobalArg("phi", ir.Float64, ir.SymDim(ir.ProblemSize), ir.FixedDim(16)),
		ir.GlobalArg("jac", ir.Float64, ir.SymDim(ir.ProblemSize),
			ir.FixedDim(16), ir.FixedDim(16)),
	}

	t.Run("per-alloc bound dominates", func(t *testing.T) {
		got, err := l.MaxRunSize(args, 0)
		if err != nil {
			t.Fatalf("MaxRunSize failed: %v", err)
		}
		// jac: 256 doubles = 2048 B per condition against a 1 GiB allocation
		want := int64(1<<30) / 2048
		if got != want {
			t.Errorf("MaxRunSize = %d, want %d", got, want)
		}
	})

	t.Run("vector width floor", func(t *testing.T) {
		got, err := l.MaxRunSize(args, 7)
		if err != nil {
			t.Fatalf("MaxRunSize failed: %v", err)
		}
		if got%7 != 0 {
			t.Errorf("MaxRunSize = %d, not a multiple of 7", got)
		}
	})

	t.Run("int overflow cap", func(t *testing.T) {
		opts.LimitIntOverflow = true
		lo, err := NewLimits(opts)
		if err != nil {
			t.Fatal(err)
		}
		got, err := lo.MaxRunSize(args, 0)
		if err != nil {
			t.Fatalf("MaxRunSize failed: %v", err)
		}
		if got*256 > int64(1)<<31-1 {
			t.Errorf("MaxRunSize = %d allows 32-bit index overflow", got)
		}
	})

	t.Run("no per-condition arrays", func(t *testing.T) {
		_, err := l.MaxRunSize([]ir.Arg{
			ir.ConstantTemp("A", ir.Float64, ir.FixedDim(4)),
		}, 0)
		if !errors.Is(err, ir.ErrCannotFit) {
			t.Errorf("expected ErrCannotFit, got %v", err)
		}
	})
}

func TestFitsStatic(t *testing.T) {
	l, err := NewLimits(ir.Options{Lang: ir.LangOpenCL, Order: 'C',
		DeviceType: ir.DeviceGPU})
	if err != nil {
		t.Fatal(err)
	}
	ok := []ir.Arg{
		ir.ConstantTemp("A", ir.Float64, ir.FixedDim(128)),
		ir.LocalTemp("red", ir.Float64, ir.FixedDim(64)),
	}
	if err := l.FitsStatic(ok); err != nil {
		t.Errorf("expected fit, got %v", err)
	}
	over := []ir.Arg{ir.LocalTemp("red", ir.Float64, ir.FixedDim(1<<20))}
	if err := l.FitsStatic(over); !errors.Is(err, ir.ErrCannotFit) {
		t.Errorf("expected ErrCannotFit, got %v", err)
	}
}
