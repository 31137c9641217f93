// Package domain holds the local fiche archive records.
package domain

import (
	"time"

	fichedomain "koursa/client/internal/fiche/domain"
)

// Run is one archive synchronization.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	FicheCount int
}

// UnitHours is the validated teaching time of one unit over a month.
type UnitHours struct {
	UnitID    int64
	UnitLabel string
	Sessions  int
	Hours     float64
}

// Record is an archived fiche snapshot.
type Record struct {
	Fiche    fichedomain.Fiche
	RunID    string
	SyncedAt time.Time
}

// MonthRange returns [first day of month, first day of next month) in UTC.
func MonthRange(year int, month time.Month) (from, to time.Time) {
	from = time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}
