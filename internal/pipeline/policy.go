package pipeline

// Step names one stage of a pipeline run.
type Step string

const (
	StepRelayStarted   Step = "relay_started"
	StepGenerate       Step = "generate"
	StepRelayCompleted Step = "relay_completed"
	StepCRMNote        Step = "crm_note"
	StepRelayError     Step = "relay_error"

	StepSaveConversation Step = "save_conversation"
	StepCreateDocument   Step = "create_document"
	StepSaveDocument     Step = "save_document"
	StepSendDocument     Step = "send_document"
	StepMarkConversation Step = "mark_conversation"
)

// Policy decides what a step failure does to the run.
type Policy int

const (
	// Abort fails the run and triggers the error notification.
	Abort Policy = iota
	// Downgrade records the failure as a false flag in the result.
	Downgrade
	// Swallow logs the failure and carries on.
	Swallow
	// Optional skips the step when its collaborator is not configured;
	// failures are swallowed.
	Optional
)

func (p Policy) String() string {
	switch p {
	case Abort:
		return "abort"
	case Downgrade:
		return "downgrade"
	case Swallow:
		return "swallow"
	case Optional:
		return "optional"
	default:
		return "unknown"
	}
}

var policyTable = map[Step]Policy{
	StepRelayStarted:   Optional,
	StepGenerate:       Abort,
	StepRelayCompleted: Downgrade,
	StepCRMNote:        Swallow,
	StepRelayError:     Swallow,

	StepSaveConversation: Abort,
	StepCreateDocument:   Abort,
	StepSaveDocument:     Abort,
	StepSendDocument:     Abort,
	StepMarkConversation: Swallow,
}

// PolicyFor returns the failure policy of step. Unknown steps abort.
func PolicyFor(step Step) Policy {
	if p, ok := policyTable[step]; ok {
		return p
	}
	return Abort
}
