// Package moderation — state-машина модерации отчётов и журнал решений.
package moderation

import (
	"time"

	"serotonyl.ru/geohealth/internal/features/ledger"
	"serotonyl.ru/geohealth/internal/features/reports"
)

// Action — решение модератора.
type Action string

const (
	ActionApproved     Action = "approved"
	ActionSoftRejected Action = "soft_rejected"
	ActionSpamBlocked  Action = "spam_blocked"
)

// Log — запись журнала модерации. Пишется на каждое решение, включая повторные.
type Log struct {
	ID                    int64     `db:"id"`
	ModeratorID           *int64    `db:"moderator_id"` // nil — автоматическое решение
	ReportID              int64     `db:"report_id"`
	Action                Action    `db:"action"`
	Comment               string    `db:"comment"`
	ProcessingTimeSeconds float64   `db:"processing_time_seconds"`
	CreatedAt             time.Time `db:"created_at"`
}

// Decision — итог вызова модерации.
type Decision struct {
	Report *reports.Report
	Log    *Log
	// Transaction — начисление за одобрение (nil, если награды не было).
	Transaction *ledger.Transaction
	// Account — состояние счёта автора после штрафа за спам.
	Account *ledger.Account
}
