package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/carelinkhq/carelinkbackend/models"
)

type assignmentFixture struct {
	users    *fakeUsers
	orgs     *fakeOrgs
	patients *fakePatients
	svc      *AssignmentService

	admin *models.User
	org   *models.Organization
}

func newAssignmentFixture() *assignmentFixture {
	users := newFakeUsers()
	orgs := newFakeOrgs()
	patients := newFakePatients()
	orgSvc := NewOrgService(orgs, users)

	admin := users.add(&models.User{Email: "ada@clinic.test", Role: models.RoleAdmin, IsApproved: true})
	org := orgs.add(&models.Organization{Name: "Clinic1", IsActive: true, CreatedBy: admin.ID})

	return &assignmentFixture{
		users:    users,
		orgs:     orgs,
		patients: patients,
		svc:      NewAssignmentService(patients, users, orgSvc),
		admin:    admin,
		org:      org,
	}
}

func (f *assignmentFixture) addCaretaker(email string, orgID *bson.ObjectID) *models.User {
	return f.users.add(&models.User{Email: email, Role: models.RoleCaretaker, IsApproved: true, Organization: orgID})
}

func (f *assignmentFixture) addStaffMember(email string, role models.Role) *models.User {
	u := f.users.add(&models.User{Email: email, Role: role, IsApproved: true, Organization: &f.org.Id})
	f.org.Staff = append(f.org.Staff, u.ID)
	return u
}

func (f *assignmentFixture) createInput(caretakerID bson.ObjectID) CreatePatientInput {
	return CreatePatientInput{
		FullName:    "Jo",
		DateOfBirth: time.Date(1950, 5, 4, 0, 0, 0, 0, time.UTC),
		Gender:      "female",
		CaretakerID: caretakerID,
		ActingAdmin: f.admin.ID,
	}
}

func TestCreatePatient(t *testing.T) {
	ctx := context.Background()

	t.Run("freelance caretaker is linked to the admin's org", func(t *testing.T) {
		f := newAssignmentFixture()
		cara := f.addCaretaker("cara@x.test", nil)

		patient, err := f.svc.CreatePatient(ctx, f.createInput(cara.ID))
		require.NoError(t, err)

		require.NotNil(t, patient.Organization)
		assert.Equal(t, f.org.Id, *patient.Organization)
		assert.Equal(t, cara.ID, patient.Caretaker)

		// Cara was freelance; she now belongs to Clinic1 and the reverse
		// index knows about Jo.
		stored := f.users.byID[cara.ID]
		require.NotNil(t, stored.Organization)
		assert.Equal(t, f.org.Id, *stored.Organization)
		assert.True(t, stored.HasPatient(patient.Id))
	})

	t.Run("caretaker's own org wins over the admin's", func(t *testing.T) {
		f := newAssignmentFixture()
		otherOrg := f.orgs.add(&models.Organization{Name: "Clinic2", IsActive: true, CreatedBy: bson.NewObjectID()})
		cara := f.addCaretaker("cara@x.test", &otherOrg.Id)

		patient, err := f.svc.CreatePatient(ctx, f.createInput(cara.ID))
		require.NoError(t, err)
		require.NotNil(t, patient.Organization)
		assert.Equal(t, otherOrg.Id, *patient.Organization)
	})

	t.Run("wrong caretaker role aborts before any write", func(t *testing.T) {
		f := newAssignmentFixture()
		notCara := f.addStaffMember("nurse@clinic.test", models.RoleNurse)

		_, err := f.svc.CreatePatient(ctx, f.createInput(notCara.ID))
		assert.ErrorIs(t, err, ErrInvalidCaretaker)
		assert.Empty(t, f.patients.byID)
	})

	t.Run("nurse and doctor must be staff of the resolved org", func(t *testing.T) {
		f := newAssignmentFixture()
		cara := f.addCaretaker("cara@x.test", nil)
		outsider := f.users.add(&models.User{Email: "out@x.test", Role: models.RoleNurse})

		in := f.createInput(cara.ID)
		in.NurseID = &outsider.ID
		_, err := f.svc.CreatePatient(ctx, in)
		assert.ErrorIs(t, err, ErrNotInStaff)
		assert.Empty(t, f.patients.byID)
	})

	t.Run("full team lands in every reverse index", func(t *testing.T) {
		f := newAssignmentFixture()
		cara := f.addCaretaker("cara@x.test", nil)
		nurse := f.addStaffMember("nurse@clinic.test", models.RoleNurse)
		doctor := f.addStaffMember("doc@clinic.test", models.RoleDoctor)

		in := f.createInput(cara.ID)
		in.NurseID = &nurse.ID
		in.DoctorID = &doctor.ID

		patient, err := f.svc.CreatePatient(ctx, in)
		require.NoError(t, err)

		require.NotNil(t, patient.AssignedDoctor)
		assert.Equal(t, doctor.ID, *patient.AssignedDoctor)
		assert.Equal(t, []bson.ObjectID{nurse.ID}, patient.AssignedNurses)

		for _, u := range []*models.User{cara, nurse, doctor} {
			assert.True(t, f.users.byID[u.ID].HasPatient(patient.Id), "reverse index missing for %s", u.Email)
		}
	})
}

func TestReassign(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, f *assignmentFixture) (*models.Patient, *models.User, *models.User) {
		t.Helper()
		cara := f.addCaretaker("cara@x.test", nil)
		doctor := f.addStaffMember("doc@clinic.test", models.RoleDoctor)
		in := f.createInput(cara.ID)
		in.DoctorID = &doctor.ID
		patient, err := f.svc.CreatePatient(ctx, in)
		require.NoError(t, err)
		return patient, cara, doctor
	}

	t.Run("caretaker swap evicts the old holder from the reverse index", func(t *testing.T) {
		f := newAssignmentFixture()
		patient, oldCara, _ := seed(t, f)
		newCara := f.addCaretaker("cara2@x.test", nil)

		updated, err := f.svc.Reassign(ctx, patient.Id, ReassignInput{CaretakerID: &newCara.ID}, f.admin.ID, nil)
		require.NoError(t, err)

		assert.Equal(t, newCara.ID, updated.Caretaker)
		assert.False(t, f.users.byID[oldCara.ID].HasPatient(patient.Id))
		assert.True(t, f.users.byID[newCara.ID].HasPatient(patient.Id))
	})

	t.Run("doctor swap evicts the old doctor", func(t *testing.T) {
		f := newAssignmentFixture()
		patient, _, oldDoc := seed(t, f)
		newDoc := f.addStaffMember("doc2@clinic.test", models.RoleDoctor)

		updated, err := f.svc.Reassign(ctx, patient.Id, ReassignInput{DoctorID: &newDoc.ID}, f.admin.ID, nil)
		require.NoError(t, err)

		require.NotNil(t, updated.AssignedDoctor)
		assert.Equal(t, newDoc.ID, *updated.AssignedDoctor)
		assert.False(t, f.users.byID[oldDoc.ID].HasPatient(patient.Id))
		assert.True(t, f.users.byID[newDoc.ID].HasPatient(patient.Id))
	})

	t.Run("nurses accumulate, old nurses stay assigned", func(t *testing.T) {
		f := newAssignmentFixture()
		patient, _, _ := seed(t, f)
		n1 := f.addStaffMember("n1@clinic.test", models.RoleNurse)
		n2 := f.addStaffMember("n2@clinic.test", models.RoleNurse)

		_, err := f.svc.Reassign(ctx, patient.Id, ReassignInput{NurseID: &n1.ID}, f.admin.ID, nil)
		require.NoError(t, err)
		updated, err := f.svc.Reassign(ctx, patient.Id, ReassignInput{NurseID: &n2.ID}, f.admin.ID, nil)
		require.NoError(t, err)

		assert.ElementsMatch(t, []bson.ObjectID{n1.ID, n2.ID}, updated.AssignedNurses)
		assert.True(t, f.users.byID[n1.ID].HasPatient(patient.Id))
		assert.True(t, f.users.byID[n2.ID].HasPatient(patient.Id))
	})

	t.Run("a caretaker posing as nurse is rejected with zero mutations", func(t *testing.T) {
		f := newAssignmentFixture()
		patient, cara, doctor := seed(t, f)
		imposter := f.addCaretaker("imposter@x.test", &f.org.Id)

		_, err := f.svc.Reassign(ctx, patient.Id, ReassignInput{NurseID: &imposter.ID}, f.admin.ID, nil)
		assert.ErrorIs(t, err, ErrInvalidNurse)

		stored := f.patients.byID[patient.Id]
		assert.Equal(t, cara.ID, stored.Caretaker)
		assert.Empty(t, stored.AssignedNurses)
		assert.True(t, f.users.byID[cara.ID].HasPatient(patient.Id))
		assert.True(t, f.users.byID[doctor.ID].HasPatient(patient.Id))
		assert.False(t, f.users.byID[imposter.ID].HasPatient(patient.Id))
	})

	t.Run("caretaker bound to another org is a hard rejection", func(t *testing.T) {
		f := newAssignmentFixture()
		patient, _, _ := seed(t, f)
		otherOrg := f.orgs.add(&models.Organization{Name: "Clinic2", IsActive: true, CreatedBy: bson.NewObjectID()})
		movedCara := f.addCaretaker("moved@x.test", &otherOrg.Id)

		_, err := f.svc.Reassign(ctx, patient.Id, ReassignInput{CaretakerID: &movedCara.ID}, f.admin.ID, nil)
		assert.ErrorIs(t, err, ErrCaretakerInOtherOrg)
		assert.Equal(t, otherOrg.Id, *f.users.byID[movedCara.ID].Organization)
	})

	t.Run("patient of another org answers forbidden, not found", func(t *testing.T) {
		f := newAssignmentFixture()
		otherOrg := f.orgs.add(&models.Organization{Name: "Clinic2", IsActive: true, CreatedBy: bson.NewObjectID()})
		foreign := &models.Patient{Organization: &otherOrg.Id, Caretaker: bson.NewObjectID()}
		require.NoError(t, f.patients.Create(ctx, foreign))
		nurse := f.addStaffMember("n@clinic.test", models.RoleNurse)

		_, err := f.svc.Reassign(ctx, foreign.Id, ReassignInput{NurseID: &nurse.ID}, f.admin.ID, nil)
		assert.ErrorIs(t, err, ErrPatientNotUnderOrg)
	})
}

// flakyUsers drops reverse-index writes for one user, standing in for a
// store failure between the multi-document steps.
type flakyUsers struct {
	*fakeUsers
	failFor bson.ObjectID
}

func (f *flakyUsers) AddAssignedPatient(ctx context.Context, userID, patientID bson.ObjectID) error {
	if userID == f.failFor {
		return context.DeadlineExceeded
	}
	return f.fakeUsers.AddAssignedPatient(ctx, userID, patientID)
}

// A failure after the patient document is written leaves the reverse
// index stale. The patient document stays authoritative; readers must
// never trust assignedPatients alone.
func TestReverseIndexFailureLeavesPatientAuthoritative(t *testing.T) {
	ctx := context.Background()

	f := newAssignmentFixture()
	cara := f.addCaretaker("cara@x.test", nil)
	nurse := f.addStaffMember("nurse@clinic.test", models.RoleNurse)

	flaky := &flakyUsers{fakeUsers: f.users, failFor: nurse.ID}
	svc := NewAssignmentService(f.patients, flaky, NewOrgService(f.orgs, f.users))

	in := f.createInput(cara.ID)
	in.NurseID = &nurse.ID
	_, err := svc.CreatePatient(ctx, in)
	require.ErrorIs(t, err, ErrStoreUnavailable)

	var stored *models.Patient
	for _, p := range f.patients.byID {
		stored = p
	}
	require.NotNil(t, stored)
	assert.Equal(t, cara.ID, stored.Caretaker)
	assert.Equal(t, []bson.ObjectID{nurse.ID}, stored.AssignedNurses)

	// Caretaker's index update landed before the failure; the nurse's
	// never did.
	assert.True(t, f.users.byID[cara.ID].HasPatient(stored.Id))
	assert.False(t, f.users.byID[nurse.ID].HasPatient(stored.Id))
}

func TestDeactivatePatient(t *testing.T) {
	ctx := context.Background()

	f := newAssignmentFixture()
	cara := f.addCaretaker("cara@x.test", nil)
	nurse := f.addStaffMember("nurse@clinic.test", models.RoleNurse)
	doctor := f.addStaffMember("doc@clinic.test", models.RoleDoctor)

	in := f.createInput(cara.ID)
	in.NurseID = &nurse.ID
	in.DoctorID = &doctor.ID
	patient, err := f.svc.CreatePatient(ctx, in)
	require.NoError(t, err)

	require.NoError(t, f.svc.Deactivate(ctx, patient.Id, f.admin.ID, nil))

	stored := f.patients.byID[patient.Id]
	assert.True(t, stored.IsDeleted)
	require.NotNil(t, stored.DeletedBy)
	assert.Equal(t, f.admin.ID, *stored.DeletedBy)
	assert.NotNil(t, stored.DeletedAt)

	for _, u := range []*models.User{cara, nurse, doctor} {
		assert.False(t, f.users.byID[u.ID].HasPatient(patient.Id), "reverse index not cleared for %s", u.Email)
	}

	// Gone from the active roster, still addressable by id.
	items, total, err := f.patients.ListActive(ctx, f.org.Id, 1, 50)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)
	_, err = f.patients.FindByID(ctx, patient.Id)
	assert.NoError(t, err)

	// A second deactivation no longer sees the patient.
	err = f.svc.Deactivate(ctx, patient.Id, f.admin.ID, nil)
	assert.ErrorIs(t, err, ErrPatientNotFound)
}
