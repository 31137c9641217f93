package devserver

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	fichedomain "koursa/client/internal/fiche/domain"
	"koursa/client/internal/security"
	teachingdomain "koursa/client/internal/teaching/domain"
	userdomain "koursa/client/internal/user/domain"
)

// SeedPassword is the password of every seeded account.
const SeedPassword = "koursa2024"

// Seeded account emails.
const (
	SeedRepresentative = "delegue@koursa.cm"
	SeedInstructor     = "enseignant@koursa.cm"
	SeedHead           = "chef@koursa.cm"
	SeedPending        = "attente@koursa.cm"
	SeedAdmin          = "admin@koursa.cm"
)

type account struct {
	user         userdomain.User
	passwordHash string
	pushToken    string
}

type refreshSession struct {
	userID    int64
	expiresAt time.Time
	revoked   bool
}

// data is the backend state. Every method expects mu to be held by the caller.
type data struct {
	mu sync.Mutex

	accounts map[int64]*account
	byEmail  map[string]int64
	roles    []userdomain.Role
	levels   []teachingdomain.Level
	units    []teachingdomain.Unit

	faculties   []teachingdomain.Faculty
	departments []teachingdomain.Department
	tracks      []teachingdomain.Track

	fiches  map[int64]*fichedomain.Fiche
	refresh map[string]refreshSession // by token hash

	nextUser  int64
	nextFiche int64
}

func newData() *data {
	return &data{
		accounts:  make(map[int64]*account),
		byEmail:   make(map[string]int64),
		fiches:    make(map[int64]*fichedomain.Fiche),
		refresh:   make(map[string]refreshSession),
		nextUser:  1,
		nextFiche: 1,
	}
}

// seed loads the reference data, one account per role and a pending representative.
func (d *data) seed(hasher *security.Hasher) error {
	d.roles = []userdomain.Role{
		{ID: 1, Name: userdomain.RoleRepresentative},
		{ID: 2, Name: userdomain.RoleInstructor},
		{ID: 3, Name: userdomain.RoleDepartmentHead},
		{ID: 4, Name: userdomain.RoleAdministrator},
	}
	d.levels = []teachingdomain.Level{
		{ID: 1, Name: "Licence 1", TrackName: "Informatique"},
		{ID: 2, Name: "Licence 2", TrackName: "Informatique"},
		{ID: 3, Name: "Licence 3", TrackName: "Informatique"},
	}
	hash, err := hasher.HashPassword(SeedPassword)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}
	level := int64(3)
	for _, u := range []userdomain.User{
		{Email: SeedRepresentative, FirstName: "Awa", LastName: "Mbarga", Status: userdomain.AccountStatusActive, Roles: d.rolesByID(1), RepresentedLevel: &level},
		{Email: SeedInstructor, FirstName: "Paul", LastName: "Etoa", Status: userdomain.AccountStatusActive, Roles: d.rolesByID(2)},
		{Email: SeedHead, FirstName: "Marie", LastName: "Ngo", Status: userdomain.AccountStatusActive, Roles: d.rolesByID(3)},
		{Email: SeedPending, FirstName: "Jean", LastName: "Fotso", Status: userdomain.AccountStatusPending, Roles: d.rolesByID(1), RepresentedLevel: &level},
		{Email: SeedAdmin, FirstName: "Chantal", LastName: "Biya", Status: userdomain.AccountStatusActive, Roles: d.rolesByID(4)},
	} {
		d.addAccount(u, hash)
	}
	head := d.byEmail[SeedHead]
	d.faculties = []teachingdomain.Faculty{{ID: 1, Name: "Faculté des Sciences"}}
	d.departments = []teachingdomain.Department{
		{ID: 1, Name: "Informatique", FacultyID: 1, FacultyName: "Faculté des Sciences", HeadID: &head, HeadName: "Marie Ngo"},
		{ID: 2, Name: "Mathématiques", FacultyID: 1, FacultyName: "Faculté des Sciences"},
	}
	d.tracks = []teachingdomain.Track{
		{ID: 1, Name: "Informatique", DepartmentID: 1, DepartmentName: "Informatique"},
		{ID: 2, Name: "Mathématiques appliquées", DepartmentID: 2, DepartmentName: "Mathématiques"},
	}
	instructor := d.byEmail[SeedInstructor]
	d.units = []teachingdomain.Unit{
		{ID: 1, Code: "INF301", Label: "Génie logiciel", Semester: 5, Instructors: []int64{instructor}, Levels: []int64{3}},
		{ID: 2, Code: "INF302", Label: "Réseaux", Semester: 5, Instructors: []int64{instructor}, Levels: []int64{3}},
		{ID: 3, Code: "INF303", Label: "Bases de données", Semester: 5, Levels: []int64{3}},
	}
	return nil
}

func (d *data) addAccount(u userdomain.User, passwordHash string) *userdomain.User {
	u.ID = d.nextUser
	d.nextUser++
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	d.accounts[u.ID] = &account{user: u, passwordHash: passwordHash}
	d.byEmail[u.Email] = u.ID
	return &d.accounts[u.ID].user
}

func (d *data) accountByEmail(email string) (*account, bool) {
	id, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, false
	}
	return d.accounts[id], true
}

func (d *data) rolesByID(ids ...int64) []userdomain.Role {
	var out []userdomain.Role
	for _, id := range ids {
		for _, r := range d.roles {
			if r.ID == id {
				out = append(out, r)
			}
		}
	}
	return out
}

func (d *data) unit(id int64) (teachingdomain.Unit, bool) {
	for _, u := range d.units {
		if u.ID == id {
			return u, true
		}
	}
	return teachingdomain.Unit{}, false
}

func (d *data) level(id int64) bool {
	for _, l := range d.levels {
		if l.ID == id {
			return true
		}
	}
	return false
}

// users returns copies of the accounts in status (all when empty), by id.
func (d *data) users(status userdomain.AccountStatus) []userdomain.User {
	out := []userdomain.User{}
	for _, a := range d.accounts {
		if status == "" || a.user.Status == status {
			out = append(out, a.user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// managesUsers reports whether u may list accounts and change their status.
func managesUsers(u *userdomain.User) bool {
	return u.IsActive() && (u.HasRole(userdomain.RoleAdministrator) || u.HasRole(userdomain.RoleDepartmentHead))
}

// visible reports whether u may read f: its representative, its instructor, or a department
// head or administrator.
func visible(u *userdomain.User, f *fichedomain.Fiche) bool {
	if u.HasRole(userdomain.RoleDepartmentHead) || u.HasRole(userdomain.RoleAdministrator) {
		return true
	}
	return f.IsRepresentative(u.ID) || f.IsInstructor(u.ID)
}

// fichesFor returns copies of the fiches matching keep, newest first.
func (d *data) fichesFor(keep func(*fichedomain.Fiche) bool) []fichedomain.Fiche {
	out := []fichedomain.Fiche{}
	for _, f := range d.fiches {
		if keep(f) {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}
