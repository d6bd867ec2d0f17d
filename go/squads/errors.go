package squads

import "fmt"

// NotInSquadError means the user has no squad to act on.
type NotInSquadError struct {
	UserID string
}

func (e *NotInSquadError) Error() string { return "you are not in a squad" }

// AlreadyInSquadError means a join hit an existing membership; the
// join path handles it by leaving and retrying once.
type AlreadyInSquadError struct {
	Current string
}

func (e *AlreadyInSquadError) Error() string {
	return fmt.Sprintf("already in squad %s", e.Current)
}

// SquadFullError means the target squad is at capacity.
type SquadFullError struct {
	Squad    string
	Capacity int
}

func (e *SquadFullError) Error() string {
	return fmt.Sprintf("squad %s is full (%d members)", e.Squad, e.Capacity)
}
