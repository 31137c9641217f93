package domain

// Input holds the user-editable fields of a fiche, used for create and resubmit.
type Input struct {
	UnitID       int64       `json:"ue" validate:"gt=0"`
	Date         string      `json:"date_cours" validate:"required,isodate"`
	StartTime    string      `json:"heure_debut" validate:"required,hhmm"`
	EndTime      string      `json:"heure_fin" validate:"required,hhmm"`
	Room         string      `json:"salle" validate:"notblank"`
	SessionType  SessionType `json:"type_seance" validate:"required,oneof=CM TD TP"`
	ChapterTitle string      `json:"titre_chapitre" validate:"notblank"`
	Content      string      `json:"contenu_aborde" validate:"notblank"`
}

// CreateRequest is the body of POST /teaching/fiches-suivi/.
type CreateRequest struct {
	Input
	RepresentativeID int64  `json:"delegue"`
	SupersedesID     *int64 `json:"fiche_precedente,omitempty"`
}

// FromFiche copies the editable fields of f, the starting point for a resubmission.
func FromFiche(f *Fiche) Input {
	return Input{
		UnitID:       f.UnitID,
		Date:         f.Date,
		StartTime:    ClockTime(f.StartTime),
		EndTime:      ClockTime(f.EndTime),
		Room:         f.Room,
		SessionType:  f.SessionType,
		ChapterTitle: f.ChapterTitle,
		Content:      f.Content,
	}
}
