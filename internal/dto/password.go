package dto

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type PasswordResetConfirmation struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type EmailConfirmationRequest struct {
	Email string `json:"email"`
}

type EmailConfirmation struct {
	Token string `json:"token"`
}
