package dto

type LoginDTO struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RegisterDTO struct {
	FullName string `json:"fullName" binding:"required,min=2"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required"`
}

// SocialLoginDTO carries the provider-issued credential; for Google
// this is the ID token from the client-side sign-in flow.
type SocialLoginDTO struct {
	Provider string `json:"provider" binding:"required,oneof=google"`
	IDToken  string `json:"idToken" binding:"required"`
}

type SetRoleDTO struct {
	Role string `json:"role" binding:"required"`
}

type PasswordResetRequestDTO struct {
	Email string `json:"email" binding:"required,email"`
}

type PasswordResetConfirmDTO struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}
