package execution

import (
	"sort"

	"clinic/execution-service/internal/models"
)

// Queue is an executor's worklist: items they already own and items nobody has claimed.
type Queue struct {
	Mine      []models.ProcedureItem `json:"mine"`
	Available []models.ProcedureItem `json:"available"`
}

// Partition orders items with the executor's own items first and newest first
// inside each group, then splits them. Items that are neither owned by the
// executor nor unclaimed, or whose status is outside the workflow, are dropped.
func Partition(items []models.ProcedureItem, executorID string) Queue {
	sorted := make([]models.ProcedureItem, 0, len(items))
	for _, item := range items {
		if !Visible(item) {
			continue
		}
		if item.ExecutorID == nil || item.OwnedBy(executorID) {
			sorted = append(sorted, item)
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := ownerRank(sorted[i], executorID), ownerRank(sorted[j], executorID)
		if ri != rj {
			return ri < rj
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	queue := Queue{
		Mine:      []models.ProcedureItem{},
		Available: []models.ProcedureItem{},
	}
	for _, item := range sorted {
		if item.OwnedBy(executorID) {
			queue.Mine = append(queue.Mine, item)
			continue
		}
		queue.Available = append(queue.Available, item)
	}
	return queue
}

func ownerRank(item models.ProcedureItem, executorID string) int {
	if item.OwnedBy(executorID) {
		return 0
	}
	return 1
}

// Visible reports whether an item participates in the execution workflow.
// The record status is checked by the store query.
func Visible(item models.ProcedureItem) bool {
	for _, status := range models.VisibleItemStatuses {
		if item.Status == status {
			return true
		}
	}
	return false
}
