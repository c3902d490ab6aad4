package pipeline

import (
	"sort"

	"github.com/dpup/passage/errors"
	"google.golang.org/grpc/codes"
)

// AssembleOption customizes catalog validation.
type AssembleOption func(*assembleOptions)

type assembleOptions struct {
	required []Stage
}

// WithRequiredStages declares stages that the selected operating mode
// depends on. Assembly fails if any of them has no registered descriptor,
// so a missing handler surfaces at startup rather than mid-request.
func WithRequiredStages(stages ...Stage) AssembleOption {
	return func(o *assembleOptions) {
		o.required = append(o.required, stages...)
	}
}

// Assemble validates, sorts, and deduplicates a flat descriptor collection
// into an executable Plan. It runs once at configuration-finalization time;
// the resulting Plan is immutable and cached for the lifetime of the
// process. All assembly failures are fatal configuration errors.
func Assemble(descriptors []Descriptor, opts ...AssembleOption) (*Plan, error) {
	options := assembleOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	plan := &Plan{}
	for _, d := range descriptors {
		if !d.Stage.Valid() {
			return nil, errors.NewC(
				"pipeline: descriptor "+d.Name+" is bound to an unknown stage",
				codes.FailedPrecondition)
		}
		if d.Handle == nil {
			return nil, errors.NewC(
				"pipeline: descriptor "+d.Name+" has no handler",
				codes.FailedPrecondition)
		}
		plan.stages[d.Stage] = append(plan.stages[d.Stage], d)
	}

	for stage := Stage(1); stage < stageCount; stage++ {
		seq := plan.stages[stage]

		// A stable sort preserves registration order among equal Order
		// values, so re-assembling the same input always yields the same
		// sequence. The input collection is allowed to contain duplicate
		// (stage, order) pairs.
		sort.SliceStable(seq, func(i, j int) bool {
			return seq[i].Order < seq[j].Order
		})

		var terminal string
		for _, d := range seq {
			if !d.Terminal {
				continue
			}
			if terminal != "" {
				return nil, errors.NewC(
					"pipeline: conflicting terminal handlers "+terminal+" and "+
						d.Name+" registered for stage "+stage.String(),
					codes.FailedPrecondition)
			}
			terminal = d.Name
		}
	}

	for _, stage := range options.required {
		if len(plan.stages[stage]) == 0 {
			return nil, errors.NewC(
				"pipeline: no handlers registered for required stage "+stage.String(),
				codes.FailedPrecondition)
		}
	}

	return plan, nil
}

// Plan is an assembled, immutable pipeline: one deterministically ordered
// descriptor sequence per stage. A single Plan serves all concurrent
// operations.
type Plan struct {
	stages [stageCount][]Descriptor
}

// Sequence returns the assembled descriptor sequence for a stage. The
// returned slice must not be mutated.
func (p *Plan) Sequence(stage Stage) []Descriptor {
	if !stage.Valid() {
		return nil
	}
	return p.stages[stage]
}
