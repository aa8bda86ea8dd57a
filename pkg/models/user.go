package models

// Role is the organizational role of a user.
type Role string

const (
	RoleManager       Role = "manager"
	RoleSeniorAnalyst Role = "senior_analyst"
	RoleAnalyst       Role = "analyst"
	RoleAssociate     Role = "associate"
	RoleViewer        Role = "viewer"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleSeniorAnalyst, RoleAnalyst, RoleAssociate, RoleViewer:
		return true
	default:
		return false
	}
}

// Assignable returns true if users with this role can be assigned analysis
// tasks. Managers approve work and viewers only observe.
func (r Role) Assignable() bool {
	return r == RoleSeniorAnalyst || r == RoleAnalyst || r == RoleAssociate
}

// User represents a human or automated worker.
type User struct {
	// ID is the unique identifier for this user.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Role determines what work this user can take or approve.
	Role Role `json:"role"`
	// Skills lists the analysis skills this user has.
	Skills []string `json:"skills,omitempty"`
	// Workload is the number of tasks currently assigned.
	Workload int `json:"workload"`
	// MaxWorkload caps how many tasks may be assigned at once.
	MaxWorkload int `json:"max_workload"`
}

// HasCapacity returns true if the user can take another task.
func (u *User) HasCapacity() bool {
	return u.Workload < u.MaxWorkload
}

// HasSkill returns true if the user has the given skill.
func (u *User) HasSkill(skill string) bool {
	for _, s := range u.Skills {
		if s == skill {
			return true
		}
	}
	return false
}
