package store

import "clinic/execution-service/internal/models"

const (
	ActionClaim    = "claim"
	ActionStart    = "start"
	ActionComplete = "complete"
)

var transitionMap = map[string][]string{
	ActionClaim:    {models.StatusPaid},
	ActionStart:    {models.StatusPaid, models.StatusExecuting},
	ActionComplete: {models.StatusExecuting},
}

var targetStatus = map[string]string{
	ActionClaim:    models.StatusExecuting,
	ActionStart:    models.StatusExecuting,
	ActionComplete: models.StatusCompleted,
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// AllowedFrom returns the statuses an action may start from.
func AllowedFrom(action string) []string {
	return append([]string(nil), transitionMap[action]...)
}

// TargetStatus returns the status an item ends in after action succeeds.
func TargetStatus(action string) string {
	return targetStatus[action]
}

// Rejection explains why a conditional transition matched no row, given the
// item's current status and executor ("" when unclaimed). A nil result means
// the call is a repeat of a claim the executor already holds.
//
// Another executor's ownership is reported before the status, so a stranger
// completing a finished item sees ErrNotOwner.
func Rejection(action, status, currentExecutor, executorID string) error {
	if action == ActionClaim {
		switch {
		case currentExecutor == "":
			return ErrInvalidTransition
		case currentExecutor != executorID:
			return ErrAlreadyClaimed
		case status == models.StatusExecuting:
			return nil
		default:
			return ErrInvalidTransition
		}
	}

	if currentExecutor != "" && currentExecutor != executorID {
		return ErrNotOwner
	}
	if !ValidTransition(action, status) {
		return ErrInvalidTransition
	}
	if currentExecutor == "" {
		return ErrNotOwner
	}
	return ErrInvalidTransition
}
