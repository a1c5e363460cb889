package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/carelinkhq/carelinkbackend/models"
	"github.com/carelinkhq/carelinkbackend/repository"
	"github.com/carelinkhq/carelinkbackend/utils"
)

// Session is the outcome of a successful login or refresh. RefreshToken
// is the plaintext that goes into the cookie; only its fingerprint is
// ever persisted.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *models.User
}

// ExternalIdentity is a federated login already verified against the
// provider (Google ID token etc.) by the transport layer.
type ExternalIdentity struct {
	Provider   string
	ProviderID string
	Email      string
	FullName   string
}

type TokenService struct {
	users repository.UserRepository
}

func NewTokenService(users repository.UserRepository) *TokenService {
	return &TokenService{users: users}
}

func (s *TokenService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.FindByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		if isNoDocuments(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, wrapStore(err)
	}

	// Lockout wins over everything, including a correct password. Only a
	// completed password reset clears the counter.
	if user.FailedLoginCount >= models.MaxFailedLogins {
		return nil, ErrAccountLocked
	}

	if err := utils.CheckPassword(user.PasswordHash, password); err != nil {
		if err := s.users.RecordFailedLogin(ctx, user.ID); err != nil {
			return nil, wrapStore(err)
		}
		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginCount > 0 {
		if err := s.users.ResetFailedLogins(ctx, user.ID); err != nil {
			return nil, wrapStore(err)
		}
	}

	if !user.IsApproved {
		return nil, ErrPendingApproval
	}

	return s.issueSession(ctx, user, utils.AccessTTL())
}

// Refresh rotates a refresh token: the presented fingerprint is claimed
// and removed in one store call, so a second presentation of the same
// plaintext fails with ErrInvalidRefreshToken.
func (s *TokenService) Refresh(ctx context.Context, plaintext string) (*Session, error) {
	if plaintext == "" {
		return nil, ErrInvalidRefreshToken
	}

	fingerprint := utils.HashRefreshToken(plaintext)
	user, err := s.users.ClaimRefreshHash(ctx, fingerprint)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, wrapStore(err)
	}

	// The claim already burned the fingerprint; approval state is not the
	// token's fault, so put it back and let the same credential work once
	// the account is approved.
	if !user.IsApproved {
		if err := s.users.PushRefreshHash(ctx, user.ID, fingerprint); err != nil {
			return nil, wrapStore(err)
		}
		return nil, ErrPendingApproval
	}

	return s.issueSession(ctx, user, utils.AccessTTL())
}

// Logout drops the presented token's fingerprint. Best effort: a token
// that was already rotated away is not an error, and other sessions of
// the same user stay valid.
func (s *TokenService) Logout(ctx context.Context, userID bson.ObjectID, plaintext string) error {
	if plaintext == "" {
		return nil
	}
	return wrapStore(s.users.RemoveRefreshHash(ctx, userID, utils.HashRefreshToken(plaintext)))
}

// SocialLogin logs in (or lazily creates) a user from a verified
// federated identity. First-time users start with no role; the client
// routes them to role selection.
func (s *TokenService) SocialLogin(ctx context.Context, ident ExternalIdentity) (*Session, error) {
	email := utils.NormalizeEmail(ident.Email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !isNoDocuments(err) {
			return nil, wrapStore(err)
		}
		now := time.Now().UTC()
		user = &models.User{
			FullName:   ident.FullName,
			Email:      email,
			Role:       models.RoleUnset,
			IsApproved: true,
			Providers: []models.ProviderBinding{
				{Provider: ident.Provider, ProviderID: ident.ProviderID},
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			if utils.IsDuplicateKey(err) {
				return nil, ErrEmailTaken
			}
			return nil, wrapStore(err)
		}
	} else if !user.HasProvider(ident.Provider, ident.ProviderID) {
		if err := s.users.AddProvider(ctx, user.ID, models.ProviderBinding{
			Provider:   ident.Provider,
			ProviderID: ident.ProviderID,
		}); err != nil {
			return nil, wrapStore(err)
		}
	}

	if !user.IsApproved {
		return nil, ErrPendingApproval
	}

	return s.issueSession(ctx, user, utils.AccessTTL())
}

// SetRole is the one-time elevation from an unset role. Admin selection
// leaves the account unapproved until an existing admin signs off.
func (s *TokenService) SetRole(ctx context.Context, userID bson.ObjectID, roleName string) (string, *models.User, error) {
	role := models.Role(roleName)
	if !models.KnownRoles[role] {
		return "", nil, ErrUnknownRole
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if isNoDocuments(err) {
			return "", nil, ErrUserNotFound
		}
		return "", nil, wrapStore(err)
	}
	if user.Role != models.RoleUnset {
		return "", nil, ErrRoleAlreadySet
	}

	// The conditional write is the real guard; the read above only
	// shapes the error. Losing the race to a concurrent elevation lands
	// here too.
	if err := s.users.SetRoleIfUnset(ctx, userID, role); err != nil {
		if isNoDocuments(err) {
			return "", nil, ErrRoleAlreadySet
		}
		return "", nil, wrapStore(err)
	}
	user.Role = role

	if role == models.RoleAdmin {
		if err := s.users.SetApproval(ctx, userID, false); err != nil {
			return "", nil, wrapStore(err)
		}
		user.IsApproved = false
	}

	token, err := utils.GenerateAccessToken(user.ID.Hex(), user.Email, string(user.Role), utils.SetRoleTTL())
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Register opens an account directly with a role. Admins start
// unapproved; everyone else can log in immediately.
func (s *TokenService) Register(ctx context.Context, fullName, email, password, roleName string) (*models.User, error) {
	role := models.Role(roleName)
	if !models.KnownRoles[role] {
		return nil, ErrUnknownRole
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &models.User{
		FullName:           fullName,
		Email:              utils.NormalizeEmail(email),
		PasswordHash:       hash,
		Role:               role,
		IsApproved:         role != models.RoleAdmin,
		LastPasswordChange: now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if utils.IsDuplicateKey(err) {
			return nil, ErrEmailTaken
		}
		return nil, wrapStore(err)
	}
	return user, nil
}

// RequestPasswordReset stores a short-lived reset token and returns its
// plaintext for delivery. Returns ("", nil) for unknown emails so the
// endpoint can answer identically either way.
func (s *TokenService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		if isNoDocuments(err) {
			return "", nil
		}
		return "", wrapStore(err)
	}

	token, err := utils.NewRefreshToken()
	if err != nil {
		return "", err
	}
	expires := time.Now().UTC().Add(30 * time.Minute)
	if err := s.users.SetResetToken(ctx, user.ID, utils.HashRefreshToken(token), expires); err != nil {
		return "", wrapStore(err)
	}
	return token, nil
}

// ResetPassword completes the reset flow. This is the only path that
// clears a login lockout. All refresh fingerprints are revoked so stolen
// sessions die with the old password.
func (s *TokenService) ResetPassword(ctx context.Context, token, newPassword string) error {
	user, err := s.users.FindByResetToken(ctx, utils.HashRefreshToken(token))
	if err != nil {
		if isNoDocuments(err) {
			return ErrInvalidResetToken
		}
		return wrapStore(err)
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.SetPassword(ctx, user.ID, hash); err != nil {
		return wrapStore(err)
	}
	return wrapStore(s.users.ClearRefreshHashes(ctx, user.ID))
}

// ChangePassword verifies the current password, swaps the hash and
// revokes every refresh fingerprint.
func (s *TokenService) ChangePassword(ctx context.Context, userID bson.ObjectID, current, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if isNoDocuments(err) {
			return ErrUserNotFound
		}
		return wrapStore(err)
	}
	if err := utils.CheckPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.SetPassword(ctx, userID, hash); err != nil {
		return wrapStore(err)
	}
	return wrapStore(s.users.ClearRefreshHashes(ctx, userID))
}

func (s *TokenService) issueSession(ctx context.Context, user *models.User, accessTTL time.Duration) (*Session, error) {
	accessToken, err := utils.GenerateAccessToken(user.ID.Hex(), user.Email, string(user.Role), accessTTL)
	if err != nil {
		return nil, err
	}
	refreshToken, err := utils.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.users.PushRefreshHash(ctx, user.ID, utils.HashRefreshToken(refreshToken)); err != nil {
		return nil, wrapStore(err)
	}
	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}
