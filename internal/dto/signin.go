package dto

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// CrossSite asks for a SameSite=None session cookie (embedded clients).
	CrossSite bool `json:"crossSite,omitempty"`
}

type SignInResponse struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	EmailConfirmed bool   `json:"emailConfirmed"`
}
