// Package problem loads placement instances from YAML files.
//
// An instance file looks like:
//
//	name: branches20
//	bordered: true
//	distances:
//	  - [0, 1, 2, ...]
//	costs:
//	  - [0, 1, 2, ...]
//
// When bordered is set, row and column 0 of both tables are labels and are
// dropped; otherwise the tables are N×N with site i at offset i-1.
package problem

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/branchopt/internal/errors"
	"github.com/copyleftdev/branchopt/internal/optimization"
)

// Instance is the file representation of a placement problem.
type Instance struct {
	Name      string      `yaml:"name" json:"name,omitempty"`
	Bordered  bool        `yaml:"bordered" json:"bordered,omitempty"`
	Distances [][]float64 `yaml:"distances" json:"distances"`
	Costs     [][]float64 `yaml:"costs" json:"costs"`
}

// Problem validates the tables and builds the solver-facing problem.
func (in *Instance) Problem() (*optimization.Problem, error) {
	if len(in.Distances) == 0 || len(in.Costs) == 0 {
		return nil, optimization.NewConfigError("problem", "instance %q needs both distances and costs", in.Name)
	}
	if in.Bordered {
		return optimization.NewBorderedProblem(in.Distances, in.Costs)
	}
	return optimization.NewProblemFromRows(in.Distances, in.Costs)
}

// Parse decodes a YAML instance. Unknown keys are rejected.
func Parse(data []byte) (*Instance, error) {
	var in Instance
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil {
		return nil, errors.Wrap(err, "decode instance").WithOperation("parse").WithComponent("problem")
	}
	return &in, nil
}

// Load reads and parses the instance at path and builds its problem.
func Load(path string) (*Instance, *optimization.Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read instance %s", path).WithOperation("load").WithComponent("problem")
	}

	in, err := Parse(data)
	if err != nil {
		return nil, nil, err
	}
	if in.Name == "" {
		in.Name = path
	}

	p, err := in.Problem()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "instance %s", in.Name)
	}
	return in, p, nil
}
