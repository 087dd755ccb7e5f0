package main

import (
	"fmt"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/WWIIWWIIWW/pyJac-v2/generator"
	"github.com/WWIIWWIIWW/pyJac-v2/ir"
)

// DescriptorSet is the on-disk form of one generator's kernel set.
type DescriptorSet struct {
	Name    string        `yaml:"name"`
	Kernels []kernelSpec  `yaml:"kernels"`
	Barrier []barrierSpec `yaml:"barriers"`
	Extra   []arraySpec   `yaml:"extra_args"`
	Test    int64         `yaml:"test_size"`
}

type kernelSpec struct {
	Name         string      `yaml:"name"`
	Extent       int64       `yaml:"extent"`
	Pre          []string    `yaml:"pre"`
	Instructions []string    `yaml:"instructions"`
	Post         []string    `yaml:"post"`
	Data         []arraySpec `yaml:"data"`
	Vectorize    *bool       `yaml:"vectorize"`
}

type arraySpec struct {
	Name      string      `yaml:"name"`
	Dtype     string      `yaml:"dtype"`
	Space     string      `yaml:"space"`
	Shape     []string    `yaml:"shape"`
	NoPromote bool        `yaml:"no_promote"`
	Order     string      `yaml:"order"`
	Init      [][]float64 `yaml:"init"`
}

type barrierSpec struct {
	Before string `yaml:"before"`
	After  string `yaml:"after"`
	Kind   string `yaml:"kind"`
}

// LoadDescriptorSet parses a descriptor-set YAML file.
func LoadDescriptorSet(path string) (*DescriptorSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor set: %w", err)
	}
	var set DescriptorSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parsing descriptor set %s: %w", path, err)
	}
	if set.Name == "" {
		return nil, fmt.Errorf("descriptor set %s: missing name", path)
	}
	if len(set.Kernels) == 0 {
		return nil, fmt.Errorf("descriptor set %s: no kernels", path)
	}
	return &set, nil
}

// Generator converts the descriptor set into a configured Generator.
func (s *DescriptorSet) Generator(opts ir.Options) (*generator.Generator, error) {
	var descs []*ir.Descriptor
	for _, ks := range s.Kernels {
		data, err := convertArrays(ks.Data)
		if err != nil {
			return nil, fmt.Errorf("kernel %s: %w", ks.Name, err)
		}
		d := ir.NewDescriptor(ks.Name, ks.Extent, ks.Instructions, data)
		d.PreInstructions = ks.Pre
		d.PostInstructions = ks.Post
		if ks.Vectorize != nil {
			d.CanVectorize = *ks.Vectorize
		}
		descs = append(descs, d)
	}

	var barriers []ir.Barrier
	for _, bs := range s.Barrier {
		kind := ir.GlobalBarrier
		if bs.Kind == "local" {
			kind = ir.LocalBarrier
		}
		barriers = append(barriers, ir.Barrier{
			Before: bs.Before, After: bs.After, Kind: kind,
		})
	}

	extra, err := convertArrays(s.Extra)
	if err != nil {
		return nil, fmt.Errorf("extra args: %w", err)
	}

	return generator.New(generator.Config{
		Name:        s.Name,
		Options:     opts,
		Descriptors: descs,
		ExtraArgs:   extra,
		Barriers:    barriers,
		TestSize:    s.Test,
	}), nil
}

func convertArrays(specs []arraySpec) ([]ir.Arg, error) {
	var out []ir.Arg
	for _, as := range specs {
		a, err := convertArray(as)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func convertArray(as arraySpec) (ir.Arg, error) {
	dt, err := parseDtype(as.Dtype)
	if err != nil {
		return ir.Arg{}, fmt.Errorf("array %s: %w", as.Name, err)
	}

	var dims []ir.Dim
	for _, s := range as.Shape {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			dims = append(dims, ir.FixedDim(n))
		} else {
			dims = append(dims, ir.SymDim(s))
		}
	}

	var a ir.Arg
	switch as.Space {
	case "", "global":
		if len(dims) == 0 {
			a = ir.ValueArg(as.Name, dt)
		} else {
			a = ir.GlobalArg(as.Name, dt, dims...)
		}
	case "value":
		a = ir.ValueArg(as.Name, dt)
	case "local":
		a = ir.LocalTemp(as.Name, dt, dims...)
	case "constant":
		a = ir.ConstantTemp(as.Name, dt, dims...)
	case "private":
		a = ir.PrivateTemp(as.Name, dt, dims...)
	default:
		return ir.Arg{}, fmt.Errorf("array %s: unknown space %q", as.Name, as.Space)
	}

	a.NoPromote = as.NoPromote
	if as.Order != "" {
		a.Order = as.Order[0]
	}
	if len(as.Init) > 0 {
		rows := len(as.Init)
		cols := len(as.Init[0])
		flat := make([]float64, 0, rows*cols)
		for _, row := range as.Init {
			if len(row) != cols {
				return ir.Arg{}, fmt.Errorf("array %s: ragged init data", as.Name)
			}
			flat = append(flat, row...)
		}
		a.Init = mat.NewDense(rows, cols, flat)
	}
	return a, nil
}

func parseDtype(s string) (ir.DataType, error) {
	switch s {
	case "", "float64", "double":
		return ir.Float64, nil
	case "float32", "float":
		return ir.Float32, nil
	case "int32", "int":
		return ir.Int32, nil
	case "int64", "long":
		return ir.Int64, nil
	}
	return 0, fmt.Errorf("unknown dtype %q", s)
}
