package domain

import "fmt"

// EngineError is the unified error type for the engine.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Is reports whether target is an EngineError with the same code, so that
// errors.Is matches sentinels through Wrap/NewEngineError copies.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	return ok && t.Code == e.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Message / validation errors (-32200 to -32219) ----

var (
	ErrValidation   = &EngineError{Code: -32200, Message: "message validation failed"}
	ErrUnknownKind  = &EngineError{Code: -32201, Message: "unknown message kind"}
	ErrMissingField = &EngineError{Code: -32202, Message: "required content field missing"}
)

// ---- Bus errors (-32220 to -32239) ----

var (
	ErrUnknownRecipient = &EngineError{Code: -32220, Message: "recipient is not registered on the bus"}
	ErrQueueFull        = &EngineError{Code: -32221, Message: "recipient queue is full"}
	ErrBusClosed        = &EngineError{Code: -32222, Message: "bus is closed"}
)

// ---- Workflow / orchestrator errors (-32240 to -32269) ----

var (
	ErrInvalidTransition = &EngineError{Code: -32240, Message: "invalid state transition"}
	ErrTransitionTable   = &EngineError{Code: -32241, Message: "transition table misconfigured"}
	ErrAlreadyStarted    = &EngineError{Code: -32242, Message: "project already started"}
	ErrNotStarted        = &EngineError{Code: -32243, Message: "project has not been started"}
	ErrProjectDone       = &EngineError{Code: -32244, Message: "project is in a terminal state"}
	ErrAgentTimeout      = &EngineError{Code: -32245, Message: "worker did not respond before its deadline"}
	ErrStateBlocked      = &EngineError{Code: -32246, Message: "state is blocked pending resolution"}
	ErrWrongState        = &EngineError{Code: -32247, Message: "message is not valid in the current state"}
)

// ---- Decision store errors (-32270 to -32289) ----

var (
	ErrUnauthorized     = &EngineError{Code: -32270, Message: "actor is not the designated authority"}
	ErrInvalidState     = &EngineError{Code: -32271, Message: "decision is not in a valid status for this operation"}
	ErrImmutableRecord  = &EngineError{Code: -32272, Message: "accepted decision records are immutable"}
	ErrDecisionNotFound = &EngineError{Code: -32273, Message: "decision record not found"}
)

// ---- Artifact store errors (-32290 to -32309) ----

var (
	ErrNotFound    = &EngineError{Code: -32290, Message: "artifact not found"}
	ErrInvalidName = &EngineError{Code: -32291, Message: "invalid artifact category or name"}
)

// ---- Generation errors (-32310 to -32329) ----

var (
	ErrGeneration        = &EngineError{Code: -32310, Message: "content generation failed"}
	ErrGenerationTimeout = &EngineError{Code: -32311, Message: "content generation timed out"}
	ErrProviderUnknown   = &EngineError{Code: -32312, Message: "generation provider not registered"}
)

// ---- Store / config errors (-32330 to -32349) ----

var (
	ErrStoreInit     = &EngineError{Code: -32330, Message: "failed to initialize store"}
	ErrStoreQuery    = &EngineError{Code: -32331, Message: "store query failed"}
	ErrStoreWrite    = &EngineError{Code: -32332, Message: "store write failed"}
	ErrConfigInvalid = &EngineError{Code: -32333, Message: "invalid configuration"}
	ErrRoleInvalid   = &EngineError{Code: -32334, Message: "invalid role definition"}
)
