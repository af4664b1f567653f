package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, false},
		{StateInReview, false},
		{StateEscalated, false},
		{StateApproved, true},
		{StateRejected, true},
		{StateCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"pending", StatePending, true},
		{"cancelled", StateCancelled, true},
		{"unknown", State("UNKNOWN"), false},
		{"empty", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	b := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()

	b.Configure(State("BOGUS"))
}

func TestMachine_Fire(t *testing.T) {
	m := BuildApprovalStateMachine(StatePending)

	if err := m.Fire(context.Background(), TriggerBeginReview); err != nil {
		t.Fatalf("Fire(BEGIN_REVIEW) error = %v", err)
	}
	if m.State() != StateInReview {
		t.Errorf("State() = %v, want %v", m.State(), StateInReview)
	}

	if err := m.Fire(context.Background(), TriggerApprove); err != nil {
		t.Fatalf("Fire(APPROVE) error = %v", err)
	}
	if m.State() != StateApproved {
		t.Errorf("State() = %v, want %v", m.State(), StateApproved)
	}
}

func TestMachine_FireInvalidTransition(t *testing.T) {
	m := BuildApprovalStateMachine(StateApproved)

	err := m.Fire(context.Background(), TriggerReject)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() from terminal state error = %v, want ErrInvalidTransition", err)
	}
	if m.State() != StateApproved {
		t.Errorf("State() changed on failed fire: %v", m.State())
	}
}

func TestMachine_EscalationRoundTrip(t *testing.T) {
	m := BuildApprovalStateMachine(StateInReview)

	if err := m.Fire(context.Background(), TriggerEscalate); err != nil {
		t.Fatalf("Fire(ESCALATE) error = %v", err)
	}
	if m.State() != StateEscalated {
		t.Fatalf("State() = %v, want %v", m.State(), StateEscalated)
	}

	// Escalated requests re-enter pending at an elevated authority assignment
	if err := m.Fire(context.Background(), TriggerResume); err != nil {
		t.Fatalf("Fire(RESUME) error = %v", err)
	}
	if m.State() != StatePending {
		t.Errorf("State() = %v, want %v", m.State(), StatePending)
	}
}

func TestMachine_GuardedTransition(t *testing.T) {
	b := NewBuilder()
	allow := false
	b.Configure(StatePending).
		PermitIf(TriggerApprove, StateApproved, func(ctx context.Context) bool { return allow })

	m := b.Build(StatePending)

	err := m.Fire(context.Background(), TriggerApprove)
	if !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire() with failing guard error = %v, want ErrGuardFailed", err)
	}

	allow = true
	if err := m.Fire(context.Background(), TriggerApprove); err != nil {
		t.Errorf("Fire() with passing guard error = %v", err)
	}
	if m.State() != StateApproved {
		t.Errorf("State() = %v, want %v", m.State(), StateApproved)
	}
}

func TestMachine_PermittedTriggers(t *testing.T) {
	m := BuildApprovalStateMachine(StateEscalated)

	triggers := m.PermittedTriggers()
	if len(triggers) != 2 {
		t.Fatalf("PermittedTriggers() returned %d triggers, want 2", len(triggers))
	}

	seen := map[Trigger]bool{}
	for _, tr := range triggers {
		seen[tr] = true
	}
	if !seen[TriggerResume] || !seen[TriggerReject] {
		t.Errorf("PermittedTriggers() = %v, want RESUME and REJECT", triggers)
	}
}

func TestMachine_CancelOnlyBeforeTerminal(t *testing.T) {
	tests := []struct {
		name    string
		initial State
		wantOK  bool
	}{
		{"from pending", StatePending, true},
		{"from in_review", StateInReview, true},
		{"from escalated", StateEscalated, false},
		{"from approved", StateApproved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := BuildApprovalStateMachine(tt.initial)
			if got := m.CanFire(TriggerCancel); got != tt.wantOK {
				t.Errorf("CanFire(CANCEL) = %v, want %v", got, tt.wantOK)
			}
		})
	}
}
