package pipeline

import (
	"errors"
	"fmt"
	"sort"
)

// Factory builds the first instance of a stage from its chain parameters.
type Factory func(p Params) (Stage, error)

var (
	// ErrUnknownStage is returned for chain entries without a factory.
	ErrUnknownStage = errors.New("pipeline: unknown stage type")

	errDuplicateStage = errors.New("pipeline: duplicate stage type")
)

// Registry maps stage type names to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for the given stage type.
func (r *Registry) Register(stageType string, factory Factory) error {
	if stageType == "" {
		return errors.New("pipeline: empty stage type")
	}

	if factory == nil {
		return errors.New("pipeline: nil factory")
	}

	if _, exists := r.factories[stageType]; exists {
		return fmt.Errorf("%w: %s", errDuplicateStage, stageType)
	}

	r.factories[stageType] = factory

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(stageType string, factory Factory) {
	err := r.Register(stageType, factory)
	if err != nil {
		panic("pipeline registry: " + err.Error())
	}
}

// Lookup returns the factory for the given stage type, or nil.
func (r *Registry) Lookup(stageType string) Factory {
	return r.factories[stageType]
}

// Types returns the registered stage types in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Build instantiates one stage.
func (r *Registry) Build(p Params) (Stage, error) {
	factory := r.Lookup(p.Type)
	if factory == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, p.Type)
	}

	stage, err := factory(p)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build %s (%s): %w", p.ID, p.Type, err)
	}

	return stage, nil
}
