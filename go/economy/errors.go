package economy

import (
	"fmt"
	"time"
)

// ValidationError reports an input that fails a precondition. Its
// message is shown to the user verbatim.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ResourceNotFoundError is a 404 from the API mapped to a domain entity.
type ResourceNotFoundError struct {
	Type string
	ID   string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Type, e.ID)
}

// InsufficientBalanceError reports a mutation the giver can't afford.
type InsufficientBalanceError struct {
	Required  int
	Available int
	Operation string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: need %d, have %d",
		e.Operation, e.Required, e.Available)
}

// AlreadyClaimedError means the user's daily reward was already
// claimed on the current civil day.
type AlreadyClaimedError struct {
	NextClaimAt time.Time
}

func (e *AlreadyClaimedError) Error() string {
	return "daily bytes have already been claimed today"
}
