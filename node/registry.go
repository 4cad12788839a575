package node

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
)

// Constructor creates an unconfigured node.
type Constructor func(id int, deps Deps) (Node, error)

// Registry maps node types to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[Type]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[Type]Constructor)}
}

// DefaultRegistry returns a registry holding every built-in node type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(TypeStreamIn, NewStreamIn)
	_ = r.Register(TypeStreamOut, NewStreamOut)
	_ = r.Register(TypeElectricalBroadband, NewElectricalBroadband)
	_ = r.Register(TypeOpticalStimulation, NewOpticalStimulation)
	return r
}

// Register adds a constructor. Registering a type twice is an error.
func (r *Registry) Register(t Type, ctor Constructor) error {
	if t == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "node type validation")
	}
	if ctor == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "constructor validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[t]; exists {
		return errors.WrapInvalid(fmt.Errorf("node type %q is already registered", t),
			"Registry", "Register", "duplicate type check")
	}
	r.ctors[t] = ctor
	return nil
}

// Types returns the registered types in sorted order.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.ctors))
	for t := range r.ctors {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func (r *Registry) lookup(t Type) (Constructor, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[t]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Invalidf("unknown node type %q: must be one of %v", t, r.Types())
	}
	return ctor, nil
}

// Validate checks spec against its type without creating resources that
// outlive the call.
func (r *Registry) Validate(spec Spec, deps Deps) error {
	ctor, err := r.lookup(spec.Type)
	if err != nil {
		return err
	}
	// The throwaway node must not touch the live node's metric series.
	deps.Metrics = nil
	n, err := ctor(spec.ID, deps)
	if err != nil {
		return err
	}
	return n.Validate(spec)
}

// Create constructs and configures a node for spec.
func (r *Registry) Create(ctx context.Context, spec Spec, deps Deps) (Node, error) {
	ctor, err := r.lookup(spec.Type)
	if err != nil {
		return nil, err
	}
	n, err := ctor(spec.ID, deps)
	if err != nil {
		return nil, err
	}
	if err := n.Configure(ctx, spec); err != nil {
		return nil, err
	}
	return n, nil
}
