package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/carelinkhq/carelinkbackend/models"
)

// In-memory repositories with the same single-document write semantics
// as the Mongo implementations ($slice-bounded pushes, claim-and-pull,
// addToSet). Reads hand out copies so a mutated result does not change
// the store without an explicit write, mirroring decode-into-struct.

type fakeUsers struct {
	byID map[bson.ObjectID]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[bson.ObjectID]*models.User{}}
}

func (f *fakeUsers) add(u *models.User) *models.User {
	if u.ID.IsZero() {
		u.ID = bson.NewObjectID()
	}
	f.byID[u.ID] = u
	return u
}

func copyUser(u *models.User) *models.User {
	cp := *u
	cp.RefreshTokenHashes = append([]string(nil), u.RefreshTokenHashes...)
	cp.AssignedPatients = append([]bson.ObjectID(nil), u.AssignedPatients...)
	cp.Providers = append([]models.ProviderBinding(nil), u.Providers...)
	return &cp
}

func (f *fakeUsers) Create(_ context.Context, user *models.User) error {
	for _, u := range f.byID {
		if u.Email == user.Email {
			return mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
		}
	}
	if user.ID.IsZero() {
		user.ID = bson.NewObjectID()
	}
	f.byID[user.ID] = copyUser(user)
	return nil
}

func (f *fakeUsers) FindByID(_ context.Context, id bson.ObjectID) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return copyUser(u), nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeUsers) RecordFailedLogin(_ context.Context, id bson.ObjectID) error {
	if u, ok := f.byID[id]; ok {
		u.FailedLoginCount++
	}
	return nil
}

func (f *fakeUsers) ResetFailedLogins(_ context.Context, id bson.ObjectID) error {
	if u, ok := f.byID[id]; ok {
		u.FailedLoginCount = 0
	}
	return nil
}

func (f *fakeUsers) PushRefreshHash(_ context.Context, id bson.ObjectID, hash string) error {
	u, ok := f.byID[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	u.RefreshTokenHashes = append(u.RefreshTokenHashes, hash)
	if n := len(u.RefreshTokenHashes); n > models.MaxRefreshTokens {
		u.RefreshTokenHashes = u.RefreshTokenHashes[n-models.MaxRefreshTokens:]
	}
	return nil
}

func (f *fakeUsers) ClaimRefreshHash(_ context.Context, hash string) (*models.User, error) {
	for _, u := range f.byID {
		for i, h := range u.RefreshTokenHashes {
			if h == hash {
				u.RefreshTokenHashes = append(u.RefreshTokenHashes[:i], u.RefreshTokenHashes[i+1:]...)
				return copyUser(u), nil
			}
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeUsers) RemoveRefreshHash(_ context.Context, id bson.ObjectID, hash string) error {
	u, ok := f.byID[id]
	if !ok {
		return nil
	}
	for i, h := range u.RefreshTokenHashes {
		if h == hash {
			u.RefreshTokenHashes = append(u.RefreshTokenHashes[:i], u.RefreshTokenHashes[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeUsers) ClearRefreshHashes(_ context.Context, id bson.ObjectID) error {
	if u, ok := f.byID[id]; ok {
		u.RefreshTokenHashes = nil
	}
	return nil
}

func (f *fakeUsers) SetRoleIfUnset(_ context.Context, id bson.ObjectID, role models.Role) error {
	u, ok := f.byID[id]
	if !ok || u.Role != models.RoleUnset {
		return mongo.ErrNoDocuments
	}
	u.Role = role
	return nil
}

func (f *fakeUsers) SetApproval(_ context.Context, id bson.ObjectID, approved bool) error {
	if u, ok := f.byID[id]; ok {
		u.IsApproved = approved
	}
	return nil
}

func (f *fakeUsers) AddProvider(_ context.Context, id bson.ObjectID, binding models.ProviderBinding) error {
	u, ok := f.byID[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	if !u.HasProvider(binding.Provider, binding.ProviderID) {
		u.Providers = append(u.Providers, binding)
	}
	return nil
}

func (f *fakeUsers) SetOrganization(_ context.Context, id bson.ObjectID, orgID bson.ObjectID) error {
	if u, ok := f.byID[id]; ok {
		u.Organization = &orgID
	}
	return nil
}

func (f *fakeUsers) ClearOrganizationIf(_ context.Context, id bson.ObjectID, orgID bson.ObjectID) error {
	if u, ok := f.byID[id]; ok {
		if u.Organization != nil && *u.Organization == orgID {
			u.Organization = nil
		}
	}
	return nil
}

func (f *fakeUsers) SetPassword(_ context.Context, id bson.ObjectID, passwordHash string) error {
	u, ok := f.byID[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	u.PasswordHash = passwordHash
	u.FailedLoginCount = 0
	u.LastPasswordChange = time.Now().UTC()
	u.ResetTokenHash = ""
	u.ResetTokenExpires = nil
	return nil
}

func (f *fakeUsers) SetResetToken(_ context.Context, id bson.ObjectID, tokenHash string, expires time.Time) error {
	u, ok := f.byID[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	u.ResetTokenHash = tokenHash
	u.ResetTokenExpires = &expires
	return nil
}

func (f *fakeUsers) FindByResetToken(_ context.Context, tokenHash string) (*models.User, error) {
	now := time.Now().UTC()
	for _, u := range f.byID {
		if u.ResetTokenHash == tokenHash && u.ResetTokenExpires != nil && u.ResetTokenExpires.After(now) {
			return copyUser(u), nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeUsers) AddAssignedPatient(_ context.Context, userID, patientID bson.ObjectID) error {
	u, ok := f.byID[userID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	if !u.HasPatient(patientID) {
		u.AssignedPatients = append(u.AssignedPatients, patientID)
	}
	return nil
}

func (f *fakeUsers) RemoveAssignedPatient(_ context.Context, userID, patientID bson.ObjectID) error {
	u, ok := f.byID[userID]
	if !ok {
		return nil
	}
	for i, id := range u.AssignedPatients {
		if id == patientID {
			u.AssignedPatients = append(u.AssignedPatients[:i], u.AssignedPatients[i+1:]...)
			break
		}
	}
	return nil
}

type fakeOrgs struct {
	byID map[bson.ObjectID]*models.Organization
}

func newFakeOrgs() *fakeOrgs {
	return &fakeOrgs{byID: map[bson.ObjectID]*models.Organization{}}
}

func copyOrg(o *models.Organization) *models.Organization {
	cp := *o
	cp.Staff = append([]bson.ObjectID(nil), o.Staff...)
	return &cp
}

func (f *fakeOrgs) add(o *models.Organization) *models.Organization {
	if o.Id.IsZero() {
		o.Id = bson.NewObjectID()
	}
	f.byID[o.Id] = o
	return o
}

func (f *fakeOrgs) Create(_ context.Context, org *models.Organization) error {
	for _, o := range f.byID {
		if o.Name == org.Name {
			return mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
		}
	}
	if org.Id.IsZero() {
		org.Id = bson.NewObjectID()
	}
	f.byID[org.Id] = copyOrg(org)
	return nil
}

func (f *fakeOrgs) FindByID(_ context.Context, id bson.ObjectID) (*models.Organization, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return copyOrg(o), nil
}

func (f *fakeOrgs) FindByAdmin(_ context.Context, adminID bson.ObjectID) (*models.Organization, error) {
	for _, o := range f.byID {
		if o.CreatedBy == adminID || o.HasStaff(adminID) {
			return copyOrg(o), nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeOrgs) AddStaff(_ context.Context, orgID, userID bson.ObjectID) error {
	o, ok := f.byID[orgID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	if !o.HasStaff(userID) {
		o.Staff = append(o.Staff, userID)
	}
	return nil
}

func (f *fakeOrgs) RemoveStaff(_ context.Context, orgID, userID bson.ObjectID) error {
	o, ok := f.byID[orgID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	for i, id := range o.Staff {
		if id == userID {
			o.Staff = append(o.Staff[:i], o.Staff[i+1:]...)
			break
		}
	}
	return nil
}

type fakePatients struct {
	byID map[bson.ObjectID]*models.Patient
}

func newFakePatients() *fakePatients {
	return &fakePatients{byID: map[bson.ObjectID]*models.Patient{}}
}

func copyPatient(p *models.Patient) *models.Patient {
	cp := *p
	cp.AssignedNurses = append([]bson.ObjectID(nil), p.AssignedNurses...)
	cp.Documents = append([]models.CareDocument(nil), p.Documents...)
	return &cp
}

func (f *fakePatients) Create(_ context.Context, patient *models.Patient) error {
	if patient.Id.IsZero() {
		patient.Id = bson.NewObjectID()
	}
	f.byID[patient.Id] = copyPatient(patient)
	return nil
}

func (f *fakePatients) FindByID(_ context.Context, id bson.ObjectID) (*models.Patient, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return copyPatient(p), nil
}

func (f *fakePatients) UpdateFields(_ context.Context, id bson.ObjectID, set bson.M) error {
	p, ok := f.byID[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	for key, val := range set {
		switch key {
		case "caretaker":
			p.Caretaker = val.(bson.ObjectID)
		case "assignedDoctor":
			id := val.(bson.ObjectID)
			p.AssignedDoctor = &id
		case "assignedNurses":
			p.AssignedNurses = append([]bson.ObjectID(nil), val.([]bson.ObjectID)...)
		case "updatedAt":
			p.UpdatedAt = val.(time.Time)
		}
	}
	return nil
}

func (f *fakePatients) SoftDelete(_ context.Context, id, deletedBy bson.ObjectID) error {
	p, ok := f.byID[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	now := time.Now().UTC()
	p.IsDeleted = true
	p.DeletedAt = &now
	p.DeletedBy = &deletedBy
	return nil
}

func (f *fakePatients) ListActive(_ context.Context, orgID bson.ObjectID, page, limit int) ([]models.Patient, int64, error) {
	out := make([]models.Patient, 0)
	for _, p := range f.byID {
		if p.IsDeleted {
			continue
		}
		if p.Organization != nil && *p.Organization == orgID {
			out = append(out, *copyPatient(p))
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakePatients) AddDocument(_ context.Context, id bson.ObjectID, doc models.CareDocument) error {
	p, ok := f.byID[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	p.Documents = append(p.Documents, doc)
	return nil
}
