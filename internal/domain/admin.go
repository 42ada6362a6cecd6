package domain

// Admin is the operator profile returned by the backend on verify and profile.
type Admin struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image,omitempty"`
	Role  string `json:"role,omitempty"`
}
