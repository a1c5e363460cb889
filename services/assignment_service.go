package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/carelinkhq/carelinkbackend/models"
	"github.com/carelinkhq/carelinkbackend/repository"
)

// AssignmentService owns every write that touches both a patient
// document and the assignedPatients caches on users. The store gives no
// multi-document transactions, so writes follow a fixed order
// (validate, pull old reverse entries, push new ones, update the
// patient) and the reverse index is explicitly best-effort: a crash
// mid-sequence can leave it stale relative to the patient document,
// which stays authoritative.
type AssignmentService struct {
	patients repository.PatientRepository
	users    repository.UserRepository
	orgs     *OrgService
}

func NewAssignmentService(patients repository.PatientRepository, users repository.UserRepository, orgs *OrgService) *AssignmentService {
	return &AssignmentService{patients: patients, users: users, orgs: orgs}
}

type CreatePatientInput struct {
	FullName    string
	DateOfBirth time.Time
	Gender      string
	CaretakerID bson.ObjectID
	NurseID     *bson.ObjectID
	DoctorID    *bson.ObjectID
	ActingAdmin bson.ObjectID
	OrgHint     *bson.ObjectID
}

// CreatePatient validates every referenced staff identity before the
// patient document exists; no partial patient ever references an
// unvalidated user.
func (s *AssignmentService) CreatePatient(ctx context.Context, in CreatePatientInput) (*models.Patient, error) {
	caretaker, err := s.findWithRole(ctx, in.CaretakerID, models.RoleCaretaker, ErrInvalidCaretaker)
	if err != nil {
		return nil, err
	}

	// The caretaker's own org wins; only freelance caretakers pull in the
	// acting admin's org and get bound to it.
	var org *models.Organization
	if caretaker.Organization != nil {
		org, err = s.orgs.ResolveAdminOrg(ctx, in.ActingAdmin, caretaker.Organization)
		if err != nil {
			return nil, err
		}
	} else {
		org, err = s.orgs.ResolveAdminOrg(ctx, in.ActingAdmin, in.OrgHint)
		if err != nil {
			return nil, err
		}
		if _, err := s.orgs.LinkCaretakerToOrgIfFreelance(ctx, caretaker, org); err != nil {
			return nil, err
		}
	}

	nurse, err := s.validateStaffRef(ctx, in.NurseID, models.RoleNurse, ErrInvalidNurse, org)
	if err != nil {
		return nil, err
	}
	doctor, err := s.validateStaffRef(ctx, in.DoctorID, models.RoleDoctor, ErrInvalidDoctor, org)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	patient := &models.Patient{
		FullName:     in.FullName,
		DateOfBirth:  in.DateOfBirth,
		Gender:       in.Gender,
		Organization: &org.Id,
		Caretaker:    caretaker.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if nurse != nil {
		patient.AssignedNurses = []bson.ObjectID{nurse.ID}
	}
	if doctor != nil {
		patient.AssignedDoctor = &doctor.ID
	}

	if err := s.patients.Create(ctx, patient); err != nil {
		return nil, wrapStore(err)
	}

	for _, id := range patient.Assignees() {
		if err := s.users.AddAssignedPatient(ctx, id, patient.Id); err != nil {
			return nil, wrapStore(err)
		}
	}
	return patient, nil
}

type ReassignInput struct {
	CaretakerID *bson.ObjectID
	NurseID     *bson.ObjectID
	DoctorID    *bson.ObjectID
}

// Reassign swaps any of the three assignment slots. Single-valued slots
// (caretaker, doctor) evict the previous holder from the reverse index;
// nurses are set-add only, existing nurses stay assigned.
func (s *AssignmentService) Reassign(ctx context.Context, patientID bson.ObjectID, in ReassignInput, actingAdmin bson.ObjectID, orgHint *bson.ObjectID) (*models.Patient, error) {
	patient, org, err := s.loadUnderOrg(ctx, patientID, actingAdmin, orgHint)
	if err != nil {
		return nil, err
	}

	// Phase 1: validate every supplied reference. Nothing below mutates
	// until all three slots have passed.
	var caretaker, nurse, doctor *models.User

	if in.CaretakerID != nil {
		caretaker, err = s.findWithRole(ctx, *in.CaretakerID, models.RoleCaretaker, ErrInvalidCaretaker)
		if err != nil {
			return nil, err
		}
		if caretaker.Organization != nil && *caretaker.Organization != org.Id {
			return nil, ErrCaretakerInOtherOrg
		}
	}
	if in.NurseID != nil {
		nurse, err = s.findWithRole(ctx, *in.NurseID, models.RoleNurse, ErrInvalidNurse)
		if err != nil {
			return nil, err
		}
		if err := s.checkStaffMembership(nurse, org); err != nil {
			return nil, err
		}
	}
	if in.DoctorID != nil {
		doctor, err = s.findWithRole(ctx, *in.DoctorID, models.RoleDoctor, ErrInvalidDoctor)
		if err != nil {
			return nil, err
		}
		if err := s.checkStaffMembership(doctor, org); err != nil {
			return nil, err
		}
	}

	// Phase 2: org bindings.
	if caretaker != nil {
		if _, err := s.orgs.LinkCaretakerToOrgIfFreelance(ctx, caretaker, org); err != nil {
			return nil, err
		}
	}
	if nurse != nil {
		if _, err := s.orgs.EnsureStaffBoundToOrg(ctx, nurse, org); err != nil {
			return nil, err
		}
	}
	if doctor != nil {
		if _, err := s.orgs.EnsureStaffBoundToOrg(ctx, doctor, org); err != nil {
			return nil, err
		}
	}

	// Phase 3: evict displaced holders of single-valued slots from the
	// reverse index.
	set := bson.M{}
	if caretaker != nil && caretaker.ID != patient.Caretaker {
		if err := s.users.RemoveAssignedPatient(ctx, patient.Caretaker, patient.Id); err != nil {
			return nil, wrapStore(err)
		}
		set["caretaker"] = caretaker.ID
	}
	if doctor != nil && (patient.AssignedDoctor == nil || *patient.AssignedDoctor != doctor.ID) {
		if patient.AssignedDoctor != nil {
			if err := s.users.RemoveAssignedPatient(ctx, *patient.AssignedDoctor, patient.Id); err != nil {
				return nil, wrapStore(err)
			}
		}
		set["assignedDoctor"] = doctor.ID
	}

	// Phase 4: add the new holders to the reverse index.
	if caretaker != nil && caretaker.ID != patient.Caretaker {
		if err := s.users.AddAssignedPatient(ctx, caretaker.ID, patient.Id); err != nil {
			return nil, wrapStore(err)
		}
	}
	if doctor != nil && (patient.AssignedDoctor == nil || *patient.AssignedDoctor != doctor.ID) {
		if err := s.users.AddAssignedPatient(ctx, doctor.ID, patient.Id); err != nil {
			return nil, wrapStore(err)
		}
	}
	if nurse != nil && !patient.HasNurse(nurse.ID) {
		if err := s.users.AddAssignedPatient(ctx, nurse.ID, patient.Id); err != nil {
			return nil, wrapStore(err)
		}
		set["assignedNurses"] = append(patient.AssignedNurses, nurse.ID)
	}

	// Phase 5: the authoritative patient document, last.
	if len(set) > 0 {
		if err := s.patients.UpdateFields(ctx, patient.Id, set); err != nil {
			if isNoDocuments(err) {
				return nil, ErrPatientNotFound
			}
			return nil, wrapStore(err)
		}
	}

	patient, err = s.patients.FindByID(ctx, patient.Id)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ErrPatientNotFound
		}
		return nil, wrapStore(err)
	}
	return patient, nil
}

// Deactivate soft-deletes a patient and clears it from every assignee's
// reverse index. The record stays readable by id.
func (s *AssignmentService) Deactivate(ctx context.Context, patientID, actingAdmin bson.ObjectID, orgHint *bson.ObjectID) error {
	patient, _, err := s.loadUnderOrg(ctx, patientID, actingAdmin, orgHint)
	if err != nil {
		return err
	}

	if err := s.patients.SoftDelete(ctx, patient.Id, actingAdmin); err != nil {
		if isNoDocuments(err) {
			return ErrPatientNotFound
		}
		return wrapStore(err)
	}

	for _, id := range patient.Assignees() {
		if err := s.users.RemoveAssignedPatient(ctx, id, patient.Id); err != nil {
			return wrapStore(err)
		}
	}
	return nil
}

// loadUnderOrg resolves the admin's org and loads the patient, folding
// "exists but under another org" into ErrPatientNotUnderOrg so the
// response never confirms existence across tenants.
func (s *AssignmentService) loadUnderOrg(ctx context.Context, patientID, actingAdmin bson.ObjectID, orgHint *bson.ObjectID) (*models.Patient, *models.Organization, error) {
	org, err := s.orgs.ResolveAdminOrg(ctx, actingAdmin, orgHint)
	if err != nil {
		return nil, nil, err
	}

	patient, err := s.patients.FindByID(ctx, patientID)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil, ErrPatientNotFound
		}
		return nil, nil, wrapStore(err)
	}
	if patient.IsDeleted {
		return nil, nil, ErrPatientNotFound
	}
	if patient.Organization == nil || *patient.Organization != org.Id {
		return nil, nil, ErrPatientNotUnderOrg
	}
	return patient, org, nil
}

func (s *AssignmentService) findWithRole(ctx context.Context, id bson.ObjectID, role models.Role, roleErr error) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if isNoDocuments(err) {
			return nil, roleErr
		}
		return nil, wrapStore(err)
	}
	if user.Role != role {
		return nil, roleErr
	}
	return user, nil
}

// validateStaffRef loads an optional nurse/doctor reference, checks the
// role and binds them to the org (repairing a stale forward pointer
// when the staff set already has them).
func (s *AssignmentService) validateStaffRef(ctx context.Context, id *bson.ObjectID, role models.Role, roleErr error, org *models.Organization) (*models.User, error) {
	if id == nil {
		return nil, nil
	}
	user, err := s.findWithRole(ctx, *id, role, roleErr)
	if err != nil {
		return nil, err
	}
	if _, err := s.orgs.EnsureStaffBoundToOrg(ctx, user, org); err != nil {
		return nil, err
	}
	return user, nil
}

// checkStaffMembership is the read-only half of EnsureStaffBoundToOrg,
// used during reassignment validation so a rejected request leaves no
// writes behind.
func (s *AssignmentService) checkStaffMembership(user *models.User, org *models.Organization) error {
	if user.Organization != nil && *user.Organization == org.Id {
		return nil
	}
	if !org.HasStaff(user.ID) {
		return ErrNotInStaff
	}
	return nil
}
