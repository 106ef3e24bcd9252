package models

import "time"

// StudentType distinguishes regular student profiles from alumni ones.
type StudentType string

const (
	StudentTypeRegular StudentType = "REGULAR"
	StudentTypeAlumni  StudentType = "ALUMNI"
)

// StudentStatus tracks the academic state of a profile.
type StudentStatus string

const (
	StudentStatusNormal    StudentStatus = "NORMAL"
	StudentStatusGraduated StudentStatus = "GRADUATED"
	StudentStatusExpelled  StudentStatus = "EXPELLED"
)

// StudentProfile links a user to a department and a site.
type StudentProfile struct {
	ID               string        `db:"id" json:"id"`
	UserID           string        `db:"user_id" json:"user_id"`
	Type             StudentType   `db:"type" json:"type"`
	Status           StudentStatus `db:"status" json:"status"`
	DepartmentID     *string       `db:"department_id" json:"department_id,omitempty"`
	SiteID           string        `db:"site_id" json:"site_id"`
	StudentNumber    string        `db:"student_number" json:"student_number"`
	YearOfAdmission  int           `db:"year_of_admission" json:"year_of_admission"`
	YearOfGraduation *int          `db:"year_of_graduation" json:"year_of_graduation,omitempty"`
	CityID           *string       `db:"city_id" json:"city_id,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

// AlumniProfile is a graduated profile enriched with user fields.
type AlumniProfile struct {
	StudentProfile
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}

// AlumniFilter narrows the alumni listing.
type AlumniFilter struct {
	SiteID           string
	YearOfGraduation *int
	Page             int
	PageSize         int
}

// Department is the home unit a student belongs to.
type Department struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Country lookup entry.
type Country struct {
	ID   string `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// City lookup entry.
type City struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	CountryID string `db:"country_id" json:"country_id"`
}
