package models

type Role string

const (
	RoleRenter Role = "RENTER"
	RoleStaff  Role = "STAFF"
	RoleAdmin  Role = "ADMIN"
)

func (r Role) Valid() bool {
	return r == RoleRenter || r == RoleStaff || r == RoleAdmin
}

// Actor is the authenticated caller of a domain operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}
