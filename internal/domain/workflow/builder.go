package workflow

import (
	"context"
	"fmt"
)

// Guard evaluates whether a transition should be allowed
type Guard func(ctx context.Context) bool

// Builder assembles a configured state machine
type Builder interface {
	// Configure returns the transition configuration for the given state
	Configure(state State) StateConfig

	// Build creates a state machine instance starting at the given state
	Build(initialState State) StateMachine
}

// StateConfig configures outgoing transitions for one state
type StateConfig interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState State) StateConfig

	// PermitIf allows a trigger to transition to the target state when the guard passes
	PermitIf(trigger Trigger, toState State, guard Guard) StateConfig
}

type transition struct {
	toState State
	guard   Guard
}

type stateConfig struct {
	transitions map[Trigger][]transition
}

type builder struct {
	states map[State]*stateConfig
}

type machine struct {
	current State
	states  map[State]*stateConfig
}

// NewBuilder creates a new state machine builder
func NewBuilder() Builder {
	return &builder{states: make(map[State]*stateConfig)}
}

func (b *builder) Configure(state State) StateConfig {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	cfg, ok := b.states[state]
	if !ok {
		cfg = &stateConfig{transitions: make(map[Trigger][]transition)}
		b.states[state] = cfg
	}
	return cfg
}

func (b *builder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	// Copy configurations so later builder mutations cannot leak into built machines
	states := make(map[State]*stateConfig, len(b.states))
	for state, cfg := range b.states {
		tc := make(map[Trigger][]transition, len(cfg.transitions))
		for trigger, ts := range cfg.transitions {
			tc[trigger] = append([]transition{}, ts...)
		}
		states[state] = &stateConfig{transitions: tc}
	}

	return &machine{current: initialState, states: states}
}

func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfig {
	return c.PermitIf(trigger, toState, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard Guard) StateConfig {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	c.transitions[trigger] = append(c.transitions[trigger], transition{toState: toState, guard: guard})
	return c
}

func (m *machine) State() State {
	return m.current
}

func (m *machine) CanFire(trigger Trigger) bool {
	cfg, ok := m.states[m.current]
	if !ok {
		return false
	}
	// Guards need a context to evaluate, so any configured transition counts
	return len(cfg.transitions[trigger]) > 0
}

func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	cfg, ok := m.states[m.current]
	if !ok {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}

	ts := cfg.transitions[trigger]
	if len(ts) == 0 {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, t := range ts {
		if t.guard == nil || t.guard(ctx) {
			m.current = t.toState
			return nil
		}
	}

	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.current)
}

func (m *machine) PermittedTriggers() []Trigger {
	cfg, ok := m.states[m.current]
	if !ok {
		return []Trigger{}
	}
	triggers := make([]Trigger, 0, len(cfg.transitions))
	for trigger := range cfg.transitions {
		triggers = append(triggers, trigger)
	}
	return triggers
}
