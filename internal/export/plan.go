package export

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sadopc/tempo/internal/store"
)

// Plan is a session described in YAML:
//
//	name: Morning Focus
//	tasks:
//	  - name: Write report
//	    priority: high
//	    minutes: 25
type Plan struct {
	Name  string     `yaml:"name"`
	Tasks []PlanTask `yaml:"tasks"`
}

type PlanTask struct {
	Name     string `yaml:"name"`
	Priority string `yaml:"priority,omitempty"`
	Minutes  int    `yaml:"minutes"`
}

func (p Plan) Specs() []store.TaskSpec {
	specs := make([]store.TaskSpec, len(p.Tasks))
	for i, t := range p.Tasks {
		specs[i] = store.TaskSpec{
			Name:           t.Name,
			Priority:       store.Priority(t.Priority),
			PlannedMinutes: t.Minutes,
		}
	}
	return specs
}

// ParsePlan decodes a plan. Unknown keys are rejected so typos surface.
// Field validation is left to the engine.
func ParsePlan(r io.Reader) (Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var p Plan
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return Plan{}, errors.New("parse plan: empty document")
		}
		return Plan{}, fmt.Errorf("parse plan: %w", err)
	}
	return p, nil
}

func LoadPlan(path string) (Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return Plan{}, fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()
	return ParsePlan(f)
}
