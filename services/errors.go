package services

import (
	"context"
	"errors"
	"net/http"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

var (
	// ErrInvalidCredentials covers unknown email and wrong password alike
	// so login responses never confirm which accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned after too many failed logins. Only a
	// completed password reset clears the lock.
	ErrAccountLocked = errors.New("account locked after repeated failed logins")
	// ErrPendingApproval is returned when an unapproved admin logs in.
	ErrPendingApproval = errors.New("account pending approval")
	// ErrInvalidRefreshToken covers missing, expired and already-rotated
	// refresh tokens. Replays of a rotated token land here.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRoleAlreadySet is returned when set-role is called on a user
	// whose role is no longer unset.
	ErrRoleAlreadySet = errors.New("role already set")
	// ErrUnknownRole is returned for role names outside the known set.
	ErrUnknownRole = errors.New("unknown role")
	// ErrInvalidResetToken is returned for absent or expired reset tokens.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")

	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned on registration with an existing email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrOrgNotFound is returned when no organization can be resolved for
	// an admin, or an explicit org id does not exist.
	ErrOrgNotFound = errors.New("organization not found")
	// ErrOrgNameTaken is returned on duplicate organization names.
	ErrOrgNameTaken = errors.New("organization name already exists")
	// ErrNotInStaff is returned when a nurse/doctor is assigned under an
	// organization whose staff set does not contain them.
	ErrNotInStaff = errors.New("user is not staff of this organization")
	// ErrCaretakerInOtherOrg is returned when a caretaker already bound
	// to a different organization would be linked to this one.
	ErrCaretakerInOtherOrg = errors.New("caretaker belongs to another organization")

	// ErrInvalidStaffRole is returned when a non-nurse/doctor user is
	// added to an organization's staff set.
	ErrInvalidStaffRole = errors.New("only nurses and doctors can be organization staff")

	// ErrInvalidCaretaker / ErrInvalidNurse / ErrInvalidDoctor are
	// returned when the referenced user is absent or holds the wrong role.
	ErrInvalidCaretaker = errors.New("invalid caretaker")
	ErrInvalidNurse     = errors.New("invalid nurse")
	ErrInvalidDoctor    = errors.New("invalid doctor")

	// ErrPatientNotFound is returned for absent patient ids.
	ErrPatientNotFound = errors.New("patient not found")
	// ErrPatientNotUnderOrg is returned when a patient exists but belongs
	// to a different organization. Deliberately a 403, not a 404, so the
	// response never confirms existence across tenants.
	ErrPatientNotUnderOrg = errors.New("patient is not under your organization")

	// ErrStoreUnavailable wraps transient store failures. Safe to retry
	// with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StatusFor maps a typed service error to an HTTP status and a stable
// machine-readable code. Controllers and middleware are the only layers
// that call this; services themselves never see HTTP.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS"
	case errors.Is(err, ErrInvalidRefreshToken):
		return http.StatusUnauthorized, "INVALID_REFRESH_TOKEN"
	case errors.Is(err, ErrAccountLocked):
		return http.StatusForbidden, "ACCOUNT_LOCKED"
	case errors.Is(err, ErrPendingApproval):
		return http.StatusForbidden, "PENDING_APPROVAL"
	case errors.Is(err, ErrNotInStaff):
		return http.StatusForbidden, "NOT_IN_STAFF"
	case errors.Is(err, ErrCaretakerInOtherOrg):
		return http.StatusForbidden, "CARETAKER_IN_OTHER_ORG"
	case errors.Is(err, ErrPatientNotUnderOrg):
		return http.StatusForbidden, "NOT_UNDER_ORG"
	case errors.Is(err, ErrRoleAlreadySet):
		return http.StatusBadRequest, "ROLE_ALREADY_SET"
	case errors.Is(err, ErrUnknownRole):
		return http.StatusBadRequest, "UNKNOWN_ROLE"
	case errors.Is(err, ErrInvalidResetToken):
		return http.StatusBadRequest, "INVALID_RESET_TOKEN"
	case errors.Is(err, ErrInvalidStaffRole):
		return http.StatusBadRequest, "INVALID_STAFF_ROLE"
	case errors.Is(err, ErrInvalidCaretaker):
		return http.StatusBadRequest, "INVALID_CARETAKER"
	case errors.Is(err, ErrInvalidNurse):
		return http.StatusBadRequest, "INVALID_NURSE"
	case errors.Is(err, ErrInvalidDoctor):
		return http.StatusBadRequest, "INVALID_DOCTOR"
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound, "USER_NOT_FOUND"
	case errors.Is(err, ErrOrgNotFound):
		return http.StatusNotFound, "ORG_NOT_FOUND"
	case errors.Is(err, ErrPatientNotFound):
		return http.StatusNotFound, "PATIENT_NOT_FOUND"
	case errors.Is(err, ErrEmailTaken):
		return http.StatusConflict, "EMAIL_TAKEN"
	case errors.Is(err, ErrOrgNameTaken):
		return http.StatusConflict, "ORG_NAME_TAKEN"
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// wrapStore classifies raw driver failures: timeouts and connection
// failures become the retryable ErrStoreUnavailable, everything else
// passes through untouched. Callers handle mongo.ErrNoDocuments before
// calling this.
func wrapStore(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return ErrStoreUnavailable
	}
	return err
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
