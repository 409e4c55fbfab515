package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProcedureItem struct {
	ItemID          string          `json:"item_id"`
	ServiceRecordID string          `json:"service_record_id"`
	ProcedureTypeID string          `json:"procedure_type_id"`
	ProcedureName   string          `json:"procedure_name"`
	ExecutorID      *string         `json:"executor_id"`
	ExecutorName    *string         `json:"executor_name"`
	CreatedBy       *string         `json:"created_by,omitempty"`
	ClientID        string          `json:"client_id"`
	ClientName      string          `json:"client_name"`
	Value           decimal.Decimal `json:"value"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// OwnedBy reports whether the item is currently claimed by userID.
func (i ProcedureItem) OwnedBy(userID string) bool {
	return i.ExecutorID != nil && *i.ExecutorID == userID
}

const (
	StatusPaid      = "pago"
	StatusExecuting = "executando"
	StatusCompleted = "concluido"
)

// RecordStatusExecuting is the service record status that exposes its items to executors.
const RecordStatusExecuting = "em_execucao"

// VisibleItemStatuses lists the item statuses the execution workflow operates on.
var VisibleItemStatuses = []string{StatusPaid, StatusExecuting, StatusCompleted}
