package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleDoctor    Role = "DOCTOR"
	RoleNurse     Role = "NURSE"
	RoleCaretaker Role = "CARETAKER"
	RolePatient   Role = "PATIENT"
	RoleUnset     Role = ""
)

// KnownRoles are the roles a user may pick during /auth/set-role.
var KnownRoles = map[Role]bool{
	RoleAdmin:     true,
	RoleDoctor:    true,
	RoleNurse:     true,
	RoleCaretaker: true,
	RolePatient:   true,
}

func (r Role) IsStaff() bool {
	return r == RoleNurse || r == RoleDoctor
}

// MaxRefreshTokens bounds the refresh-token fingerprint list per user.
// Oldest fingerprint is evicted first when a new one is pushed.
const MaxRefreshTokens = 3

// MaxFailedLogins is the number of consecutive failed logins after which
// the account locks. Only a completed password reset clears the counter.
const MaxFailedLogins = 5

// ProviderBinding records a federated login identity attached to a user.
type ProviderBinding struct {
	Provider   string `bson:"provider" json:"provider"`
	ProviderID string `bson:"providerId" json:"providerId"`
}

type User struct {
	ID                 bson.ObjectID     `bson:"_id,omitempty" json:"id"`
	FullName           string            `bson:"fullName" json:"fullName"`
	Email              string            `bson:"email" json:"email"`
	PasswordHash       string            `bson:"passwordHash,omitempty" json:"-"` // never expose
	Role               Role              `bson:"role" json:"role"`
	Organization       *bson.ObjectID    `bson:"organization,omitempty" json:"organization,omitempty"` // nil => freelancer
	IsApproved         bool              `bson:"isApproved" json:"isApproved"`
	FailedLoginCount   int               `bson:"failedLoginCount" json:"-"`
	RefreshTokenHashes []string          `bson:"refreshTokenHashes,omitempty" json:"-"`
	AssignedPatients   []bson.ObjectID   `bson:"assignedPatients,omitempty" json:"assignedPatients,omitempty"`
	Providers          []ProviderBinding `bson:"providers,omitempty" json:"-"`
	ResetTokenHash     string            `bson:"resetTokenHash,omitempty" json:"-"`
	ResetTokenExpires  *time.Time        `bson:"resetTokenExpires,omitempty" json:"-"`
	LastPasswordChange time.Time         `bson:"lastPasswordChange" json:"-"`
	CreatedAt          time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time         `bson:"updatedAt" json:"updatedAt"`
}

// HasPatient reports whether the reverse index contains the patient id.
// The reverse index is a cache; authorization must re-check the patient
// document itself.
func (u *User) HasPatient(patientID bson.ObjectID) bool {
	for _, id := range u.AssignedPatients {
		if id == patientID {
			return true
		}
	}
	return false
}

func (u *User) HasProvider(provider, providerID string) bool {
	for _, p := range u.Providers {
		if p.Provider == provider && p.ProviderID == providerID {
			return true
		}
	}
	return false
}
