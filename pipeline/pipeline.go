// Package pipeline assembles the steps a Processor runs for each image.
package pipeline

import (
	"github.com/Skryldev/image-optimizer/core"
)

// Pipeline is an ordered, reusable list of Steps.  A built Pipeline is
// read-only and may be shared across goroutines.
type Pipeline struct {
	steps []core.Step
}

// New returns an empty Pipeline.
func New() *Pipeline { return &Pipeline{} }

// Use appends steps to the pipeline.  Returns the same Pipeline for chaining.
func (p *Pipeline) Use(s ...core.Step) *Pipeline {
	p.steps = append(p.steps, s...)
	return p
}

// Steps returns a copy of the step list.
func (p *Pipeline) Steps() []core.Step {
	out := make([]core.Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Names lists the step names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Clone returns a shallow copy of the pipeline so templates can be extended
// without touching the original.
func (p *Pipeline) Clone() *Pipeline {
	return &Pipeline{steps: p.Steps()}
}

// RecodePlan returns the decode → WebP encode plan used by core.Processor.
// method is the WebP effort (0-6) applied to every encode.
func RecodePlan(reg core.Registry, method int) core.PlanFunc {
	decode := &DecodeStep{Registry: reg}
	return func(quality int) []core.Step {
		return New().Use(
			decode,
			&EncodeStep{
				Registry: reg,
				Format:   core.FormatWebP,
				Options:  core.EncodeOptions{Quality: quality, Method: method},
			},
		).Steps()
	}
}
