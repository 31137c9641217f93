package devserver

import (
	"net/http"
	"sort"
	"time"

	fichedomain "koursa/client/internal/fiche/domain"
	teachingdomain "koursa/client/internal/teaching/domain"
)

// handleStats summarizes the current month over the fiches the user can see. Hours count fiches
// validated this month; overdue fiches are submitted ones waiting longer than overdueAfter.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	me := &s.current(r).user
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var stats teachingdomain.Stats
	byUnit := map[int64]float64{}
	for _, f := range s.data.fiches {
		if !visible(me, f) {
			continue
		}
		switch f.Status {
		case fichedomain.StatusValidated:
			if f.ValidatedAt != nil && !f.ValidatedAt.Before(monthStart) {
				h := f.Hours()
				stats.ValidatedHoursThisMonth += h
				byUnit[f.UnitID] += h
			}
		case fichedomain.StatusSubmitted:
			if now.Sub(f.SubmittedAt) > overdueAfter {
				stats.OverdueValidations++
			}
		}
	}
	stats.HoursByUnitThisMonth = []teachingdomain.UnitHours{}
	for id, h := range byUnit {
		u, _ := s.data.unit(id)
		stats.HoursByUnitThisMonth = append(stats.HoursByUnitThisMonth, teachingdomain.UnitHours{Code: u.Code, Label: u.Label, Hours: h})
	}
	sort.Slice(stats.HoursByUnitThisMonth, func(i, j int) bool {
		return stats.HoursByUnitThisMonth[i].Code < stats.HoursByUnitThisMonth[j].Code
	})
	writeJSON(w, http.StatusOK, stats)
}
