package controllers

import (
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"google.golang.org/api/idtoken"

	"github.com/carelinkhq/carelinkbackend/dto"
	"github.com/carelinkhq/carelinkbackend/middleware"
	"github.com/carelinkhq/carelinkbackend/services"
	"github.com/carelinkhq/carelinkbackend/utils"
)

// abortWithServiceError translates a typed service error into the
// transport response. Controllers and middleware are the only layers
// that do this.
func abortWithServiceError(c *gin.Context, err error) {
	status, code := services.StatusFor(err)
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func Login(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.LoginDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session, err := tokens.Login(c.Request.Context(), body.Email, body.Password)
		if err != nil {
			abortWithServiceError(c, err)
			return
		}

		utils.SetRefreshCookie(c, session.RefreshToken)
		c.JSON(http.StatusOK, gin.H{"accessToken": session.AccessToken})
	}
}

func Refresh(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		plaintext, err := c.Cookie(utils.RefreshCookieName)
		if err != nil || plaintext == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing refresh token"})
			return
		}

		session, err := tokens.Refresh(c.Request.Context(), plaintext)
		if err != nil {
			// Only a dead credential takes the cookie with it. Transient
			// store failures and pending approval keep it so the client
			// can retry.
			if errors.Is(err, services.ErrInvalidRefreshToken) {
				utils.ClearRefreshCookie(c)
			}
			abortWithServiceError(c, err)
			return
		}

		utils.SetRefreshCookie(c, session.RefreshToken)
		c.JSON(http.StatusOK, gin.H{"accessToken": session.AccessToken})
	}
}

func Logout(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.CurrentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}

		plaintext, _ := c.Cookie(utils.RefreshCookieName)
		utils.ClearRefreshCookie(c)

		// best effort revoke
		if err := tokens.Logout(c.Request.Context(), userID, plaintext); err != nil {
			log.Println("logout revoke failed:", err)
		}

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// SocialLogin verifies the provider credential server-side and hands the
// verified identity to the token service. Users without a role yet get
// action=select-role so the client can route them to role selection.
func SocialLogin(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.SocialLoginDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		payload, err := idtoken.Validate(c.Request.Context(), body.IDToken, os.Getenv("GOOGLE_CLIENT_ID"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid provider token"})
			return
		}

		email, _ := payload.Claims["email"].(string)
		name, _ := payload.Claims["name"].(string)
		if email == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "provider token has no email"})
			return
		}

		session, err := tokens.SocialLogin(c.Request.Context(), services.ExternalIdentity{
			Provider:   body.Provider,
			ProviderID: payload.Subject,
			Email:      email,
			FullName:   name,
		})
		if err != nil {
			abortWithServiceError(c, err)
			return
		}

		action := "login"
		if session.User.Role == "" {
			action = "select-role"
		}

		utils.SetRefreshCookie(c, session.RefreshToken)
		c.JSON(http.StatusOK, gin.H{
			"action":      action,
			"accessToken": session.AccessToken,
			"user":        session.User,
		})
	}
}

func SetRole(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.CurrentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}

		var body dto.SetRoleDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		accessToken, user, err := tokens.SetRole(c.Request.Context(), userID, body.Role)
		if err != nil {
			abortWithServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"accessToken": accessToken,
			"user":        user,
		})
	}
}

func Register(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.RegisterDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := tokens.Register(c.Request.Context(), body.FullName, body.Email, body.Password, body.Role)
		if err != nil {
			abortWithServiceError(c, err)
			return
		}

		c.JSON(http.StatusCreated, user)
	}
}

// RequestPasswordReset answers identically whether or not the email
// exists, so the endpoint cannot be used to enumerate accounts.
func RequestPasswordReset(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.PasswordResetRequestDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		token, err := tokens.RequestPasswordReset(c.Request.Context(), body.Email)
		if err != nil {
			abortWithServiceError(c, err)
			return
		}
		if token != "" && gin.Mode() != gin.ReleaseMode {
			// Mail delivery is an external concern; surface the token in
			// dev so the flow can be exercised without a mailer.
			log.Println("password reset token:", token)
		}

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func ConfirmPasswordReset(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.PasswordResetConfirmDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := tokens.ResetPassword(c.Request.Context(), body.Token, body.NewPassword); err != nil {
			abortWithServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func ChangeMyPassword(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.CurrentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}

		var body dto.ChangeMyPasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := tokens.ChangePassword(c.Request.Context(), userID, body.CurrentPassword, body.NewPassword); err != nil {
			abortWithServiceError(c, err)
			return
		}

		utils.ClearRefreshCookie(c)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
