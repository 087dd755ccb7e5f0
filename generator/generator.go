package generator

import (
	"fmt"

	"github.com/WWIIWWIIWW/pyJac-v2/ir"
	"github.com/WWIIWWIIWW/pyJac-v2/memory"
	"github.com/WWIIWWIIWW/pyJac-v2/target"
)

// Config collects everything needed to construct a Generator.
type Config struct {
	Name        string
	Options     ir.Options
	Descriptors []*ir.Descriptor

	// Deps are generators whose compiled kernels this one calls into; the
	// dependency graph must be acyclic and is built depth-first
	Deps []*Generator

	// ExtraArgs are injected into the resolved argument set without
	// appearing in any descriptor
	ExtraArgs []ir.Arg

	// Barriers order synchronization between named sub-kernels
	Barriers []ir.Barrier

	// FakeCalls register placeholder call texts to substitute at assembly
	FakeCalls []ir.FakeCall

	// TestSize pins the batch extent to a literal for testing builds; zero
	// selects the production work-size symbol
	TestSize int64
}

// Generator drives one kernel set through build, assembly, driver wrapping
// and emission for a single backend.  Generate runs exactly once; a
// generator is not reusable for a second target.
type Generator struct {
	cfg    Config
	opts   ir.Options
	tgt    target.Target
	limits *memory.Limits

	// owner records which generator adopted this one as a dependency;
	// informational only
	owner *Generator

	kernels   []*ir.Kernel
	wrapper   *ir.Kernel
	assembly  *Assembly
	built     bool
	assembled bool
	generated bool
}

// New validates the configuration and constructs a generator.  Construction
// with an invalid option set panics: options are programmer input, validated
// long before descriptors arrive.
func New(cfg Config) *Generator {
	if cfg.Name == "" {
		panic("generator: empty name")
	}
	if err := cfg.Options.Validate(); err != nil {
		panic(fmt.Sprintf("generator %s: %v", cfg.Name, err))
	}
	tgt, err := target.ForOptions(cfg.Options)
	if err != nil {
		panic(fmt.Sprintf("generator %s: %v", cfg.Name, err))
	}
	limits, err := memory.NewLimits(cfg.Options)
	if err != nil {
		panic(fmt.Sprintf("generator %s: %v", cfg.Name, err))
	}
	g := &Generator{cfg: cfg, opts: cfg.Options, tgt: tgt, limits: limits}
	for _, d := range cfg.Deps {
		d.owner = g
	}
	return g
}

// Name returns the generator (and wrapping kernel) name
func (g *Generator) Name() string { return g.cfg.Name }

// Target returns the backend in use
func (g *Generator) Target() target.Target { return g.tgt }

// Kernels returns the concrete kernels once built
func (g *Generator) Kernels() []*ir.Kernel { return g.kernels }

// ConcreteKernel resolves to the wrapping kernel; nil until assembled.
// Generators are KernelSources so FakeCalls can reference a wrapper that
// does not exist until assembly.
func (g *Generator) ConcreteKernel() *ir.Kernel { return g.wrapper }

// SourceName returns the wrapping kernel name
func (g *Generator) SourceName() string { return g.cfg.Name }

// forTesting reports whether the batch extent is a pinned test literal
func (g *Generator) forTesting() bool { return g.cfg.TestSize != 0 }

// problemSizeExpr is the batch extent: a literal under testing, the
// problem-size symbol in production.
func (g *Generator) problemSizeExpr() string {
	if g.forTesting() {
		return fmt.Sprintf("%d", g.cfg.TestSize)
	}
	return ir.ProblemSize
}

// BuildAll builds the concrete kernels for this generator and, first, all
// of its dependencies.  Each generator builds exactly once; rebuilding is a
// programmer error.
func (g *Generator) BuildAll() error {
	if g.built {
		return nil
	}
	for _, d := range g.cfg.Deps {
		if err := d.BuildAll(); err != nil {
			return err
		}
	}
	for _, desc := range g.cfg.Descriptors {
		k, err := g.buildKernel(desc)
		if err != nil {
			return fmt.Errorf("building kernel %s: %w", desc.Name, err)
		}
		g.kernels = append(g.kernels, k)
	}
	g.built = true
	return nil
}

// depKernels returns the compiled kernels of all dependencies, depth-first
func (g *Generator) depKernels() []*ir.Kernel {
	var out []*ir.Kernel
	for _, d := range g.cfg.Deps {
		out = append(out, d.depKernels()...)
		out = append(out, d.kernels...)
	}
	return out
}

// Assemble merges the built kernels into the wrapping kernel.  Build must
// have completed for this generator and every dependency.
func (g *Generator) Assemble() (*Assembly, error) {
	if g.assembled {
		return g.assembly, nil
	}
	if err := g.BuildAll(); err != nil {
		return nil, err
	}
	asm, err := g.merge(g.kernels, false, g.cfg.FakeCalls)
	if err != nil {
		return nil, fmt.Errorf("assembling %s: %w", g.cfg.Name, err)
	}
	g.wrapper = asm.Wrapper
	g.assembly = asm
	g.assembled = true
	return asm, nil
}

// Generate drives the full pipeline and writes the emitted file set into
// outDir.  A generator generates exactly once.
func (g *Generator) Generate(outDir string) error {
	if g.generated {
		return fmt.Errorf("%w: generator %s already generated", ir.ErrConfig, g.cfg.Name)
	}
	asm, err := g.Assemble()
	if err != nil {
		return err
	}
	drv, err := g.buildDriver(asm)
	if err != nil {
		return fmt.Errorf("building driver for %s: %w", g.cfg.Name, err)
	}
	if err := g.emit(outDir, asm, drv); err != nil {
		return err
	}
	g.generated = true
	return nil
}

// GenerateAll would emit drivers and wrappers for every dependency
// transitively.  Explicitly unimplemented.
func (g *Generator) GenerateAll(outDir string) error {
	return fmt.Errorf("%w: generating all dependency drivers", ir.ErrUnimplemented)
}
