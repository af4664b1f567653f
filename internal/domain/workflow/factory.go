package workflow

// BuildApprovalStateMachine creates a state machine configured for the
// invoice approval lifecycle. Escalated requests re-enter pending at the
// same level via RESUME; approved, rejected and cancelled are terminal.
func BuildApprovalStateMachine(initialState State) StateMachine {
	b := NewBuilder()

	b.Configure(StatePending).
		Permit(TriggerBeginReview, StateInReview).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerEscalate, StateEscalated).
		Permit(TriggerCancel, StateCancelled)

	b.Configure(StateInReview).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerEscalate, StateEscalated).
		Permit(TriggerCancel, StateCancelled)

	b.Configure(StateEscalated).
		Permit(TriggerResume, StatePending).
		Permit(TriggerReject, StateRejected)

	// APPROVED, REJECTED and CANCELLED have no outgoing transitions

	return b.Build(initialState)
}
