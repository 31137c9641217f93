package devserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	fichedomain "koursa/client/internal/fiche/domain"
	userdomain "koursa/client/internal/user/domain"
	"koursa/client/internal/validation"
)

// overdueAfter is how long a fiche may wait for its instructor before it counts as overdue.
const overdueAfter = 48 * time.Hour

func (s *Server) handleListFiches(w http.ResponseWriter, r *http.Request) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	me := &s.current(r).user
	list := s.data.fichesFor(func(f *fichedomain.Fiche) bool { return visible(me, f) })
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(list),
		"next":     nil,
		"previous": nil,
		"results":  list,
	})
}

func (s *Server) handlePendingFiches(w http.ResponseWriter, r *http.Request) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	me := &s.current(r).user
	list := s.data.fichesFor(func(f *fichedomain.Fiche) bool {
		return f.Status == fichedomain.StatusSubmitted && f.IsInstructor(me.ID)
	})
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetFiche(w http.ResponseWriter, r *http.Request) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	f, ok := s.lookupFiche(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// lookupFiche resolves {ficheID} among the fiches the current user may read. It writes the 404
// itself. The caller must hold data.mu.
func (s *Server) lookupFiche(w http.ResponseWriter, r *http.Request) (*fichedomain.Fiche, bool) {
	id, ok := pathID(r, "ficheID")
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return nil, false
	}
	f, ok := s.data.fiches[id]
	if !ok || !visible(&s.current(r).user, f) {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return nil, false
	}
	return f, true
}

func (s *Server) handleCreateFiche(w http.ResponseWriter, r *http.Request) {
	var req fichedomain.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	me := &s.current(r).user
	if !me.IsActive() || !me.HasRole(userdomain.RoleRepresentative) {
		writeDetail(w, http.StatusForbidden, "Only an active class representative can submit a fiche.")
		return
	}
	unit, ok := s.data.unit(req.UnitID)
	if !ok {
		writeFieldError(w, "ue", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", req.UnitID))
		return
	}
	if len(unit.Instructors) == 0 {
		writeFieldError(w, "ue", "This teaching unit has no instructor.")
		return
	}
	field, msg, duration := checkFicheInput(req.Input)
	if field != "" {
		writeFieldError(w, field, msg)
		return
	}
	if req.SupersedesID != nil {
		prev, ok := s.data.fiches[*req.SupersedesID]
		if !ok || prev.Status != fichedomain.StatusRefused || !prev.IsRepresentative(me.ID) {
			writeFieldError(w, "fiche_precedente", "Only your own refused fiches can be resubmitted.")
			return
		}
	}

	rep, instructor := me.ID, unit.Instructors[0]
	f := &fichedomain.Fiche{
		ID:               s.data.nextFiche,
		UnitID:           unit.ID,
		UnitName:         unit.Label,
		RepresentativeID: &rep,
		Representative:   me.FullName(),
		InstructorID:     &instructor,
		Date:             req.Date,
		StartTime:        fichedomain.ClockTime(req.StartTime) + ":00",
		EndTime:          fichedomain.ClockTime(req.EndTime) + ":00",
		Duration:         duration,
		Room:             strings.TrimSpace(req.Room),
		SessionType:      req.SessionType,
		ChapterTitle:     strings.TrimSpace(req.ChapterTitle),
		Content:          strings.TrimSpace(req.Content),
		Status:           fichedomain.StatusSubmitted,
		SubmittedAt:      s.now(),
		SupersedesID:     req.SupersedesID,
	}
	if acct, ok := s.data.accounts[instructor]; ok {
		f.Instructor = acct.user.FullName()
	}
	s.data.nextFiche++
	s.data.fiches[f.ID] = f
	writeJSON(w, http.StatusCreated, f)
}

// checkFicheInput returns the first offending field and its message, and the session length as
// HH:MM:SS when the input is valid.
func checkFicheInput(in fichedomain.Input) (field, msg, duration string) {
	if _, err := time.Parse("2006-01-02", in.Date); err != nil || !validation.IsISODate(in.Date) {
		return "date_cours", "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.", ""
	}
	start, err := time.Parse("15:04", fichedomain.ClockTime(in.StartTime))
	if err != nil || !validation.IsHHMM(fichedomain.ClockTime(in.StartTime)) {
		return "heure_debut", "Time has wrong format. Use one of these formats instead: hh:mm.", ""
	}
	end, err := time.Parse("15:04", fichedomain.ClockTime(in.EndTime))
	if err != nil || !validation.IsHHMM(fichedomain.ClockTime(in.EndTime)) {
		return "heure_fin", "Time has wrong format. Use one of these formats instead: hh:mm.", ""
	}
	if !end.After(start) {
		return "heure_fin", "End time must be after start time.", ""
	}
	switch {
	case strings.TrimSpace(in.Room) == "":
		return "salle", "This field may not be blank.", ""
	case !in.SessionType.Valid():
		return "type_seance", fmt.Sprintf("\"%s\" is not a valid choice.", in.SessionType), ""
	case strings.TrimSpace(in.ChapterTitle) == "":
		return "titre_chapitre", "This field may not be blank.", ""
	case strings.TrimSpace(in.Content) == "":
		return "contenu_aborde", "This field may not be blank.", ""
	}
	d := end.Sub(start)
	return "", "", fmt.Sprintf("%02d:%02d:00", int(d.Hours()), int(d.Minutes())%60)
}

func (s *Server) handleValidateFiche(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"validation_token"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		writeFieldError(w, "validation_token", "This field is required.")
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	f, ok := s.lookupFiche(w, r)
	if !ok {
		return
	}
	me := &s.current(r).user
	if !f.IsInstructor(me.ID) || !me.IsActive() {
		writeDetail(w, http.StatusForbidden, "Only the instructor concerned can validate this fiche.")
		return
	}
	if f.Status != fichedomain.StatusSubmitted {
		writeDetail(w, http.StatusBadRequest, "This fiche has already been processed.")
		return
	}
	if !s.grants.Take(r.Context(), req.Token, me.ID) {
		writeFieldError(w, "validation_token", "Invalid or expired validation token.")
		return
	}
	now := s.now()
	f.Status = fichedomain.StatusValidated
	f.ValidatedAt = &now
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleRefuseFiche(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"motif_refus"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Reason) == "" {
		writeFieldError(w, "motif_refus", "A refusal reason is required.")
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	f, ok := s.lookupFiche(w, r)
	if !ok {
		return
	}
	me := &s.current(r).user
	if !f.IsInstructor(me.ID) || !me.IsActive() {
		writeDetail(w, http.StatusForbidden, "Only the instructor concerned can refuse this fiche.")
		return
	}
	if f.Status != fichedomain.StatusSubmitted {
		writeDetail(w, http.StatusBadRequest, "This fiche has already been processed.")
		return
	}
	f.Status = fichedomain.StatusRefused
	f.RefusalReason = strings.TrimSpace(req.Reason)
	writeJSON(w, http.StatusOK, f)
}
