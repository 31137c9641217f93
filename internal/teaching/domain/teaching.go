// Package domain holds the academic reference data shown around the fiche workflow.
package domain

// Unit is a teaching unit (UE).
type Unit struct {
	ID          int64   `json:"id"`
	Code        string  `json:"code_ue"`
	Label       string  `json:"libelle_ue"`
	Semester    int     `json:"semestre"`
	Instructors []int64 `json:"enseignants"`
	Levels      []int64 `json:"niveaux"`
}

// Faculty is the top of the academic structure.
type Faculty struct {
	ID   int64  `json:"id"`
	Name string `json:"nom_faculte"`
}

// Department belongs to a faculty and may have a head.
type Department struct {
	ID          int64  `json:"id"`
	Name        string `json:"nom_departement"`
	FacultyID   int64  `json:"faculte"`
	FacultyName string `json:"nom_faculte"`
	HeadID      *int64 `json:"chef_departement"`
	HeadName    string `json:"nom_chef,omitempty"`
}

// Track (filière) is a study programme of a department.
type Track struct {
	ID             int64  `json:"id"`
	Name           string `json:"nom_filiere"`
	DepartmentID   int64  `json:"departement"`
	DepartmentName string `json:"nom_departement"`
}

// Level is a class level that a representative may represent.
type Level struct {
	ID        int64  `json:"id"`
	Name      string `json:"nom_niveau"`
	TrackName string `json:"nom_filiere,omitempty"`
}

// UnitHours is one row of the monthly hours breakdown.
type UnitHours struct {
	Code  string  `json:"code_ue"`
	Label string  `json:"libelle_ue"`
	Hours float64 `json:"heures_effectuees"`
}

// Stats is the dashboard summary for the current month.
type Stats struct {
	ValidatedHoursThisMonth float64     `json:"heures_validees_ce_mois"`
	OverdueValidations      int         `json:"fiches_en_retard_de_validation"`
	HoursByUnitThisMonth    []UnitHours `json:"repartition_heures_par_ue_ce_mois"`
}
