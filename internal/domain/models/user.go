// internal/domain/models/user.go
package models

import "time"

// Roles. The role stored on the user document is the only source of
// authority; see authz.Resolve for what each role may do.
const (
	RoleUser    = "user"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// Departments a user can belong to.
var Departments = []string{"企劃", "設計", "採購", "營業", "資訊", "營運"}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleUser, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// IsValidDepartment reports whether dept is a known department.
func IsValidDepartment(dept string) bool {
	for _, d := range Departments {
		if d == dept {
			return true
		}
	}
	return false
}

// User is the staff directory entry. The document ID is the user's uid.
//
// NOTE:
//   - Password hashes are not stored here; see Credential. The users
//     collection is visible to every signed-in viewer.
type User struct {
	ID          string    `bson:"_id" json:"uid"`
	EmployeeID  string    `bson:"employee_id" json:"employee_id"`
	DisplayName string    `bson:"display_name" json:"display_name"`
	Email       string    `bson:"email,omitempty" json:"email,omitempty"`
	Department  string    `bson:"department" json:"department"`
	Role        string    `bson:"role" json:"role"` // user | manager | admin
	IsOnline    bool      `bson:"is_online" json:"is_online"`
	LastActive  time.Time `bson:"last_active" json:"last_active"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// Credential holds the login secret for an employee code.
// The document ID is the employee code.
type Credential struct {
	EmployeeID   string    `bson:"_id"`
	UID          string    `bson:"uid"`
	PasswordHash string    `bson:"password_hash"`
	UpdatedAt    time.Time `bson:"updated_at"`
}
