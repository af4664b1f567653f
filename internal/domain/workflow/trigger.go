package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerBeginReview Trigger = "BEGIN_REVIEW"
	TriggerApprove     Trigger = "APPROVE"
	TriggerReject      Trigger = "REJECT"
	TriggerEscalate    Trigger = "ESCALATE"
	TriggerResume      Trigger = "RESUME"
	TriggerCancel      Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
