package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/carelinkhq/carelinkbackend/models"
	"github.com/carelinkhq/carelinkbackend/repository"
	"github.com/carelinkhq/carelinkbackend/utils"
)

// CaretakerLink reports what LinkCaretakerToOrgIfFreelance did.
type CaretakerLink int

const (
	// CaretakerLinked: the caretaker was freelance and is now bound.
	CaretakerLinked CaretakerLink = iota
	// CaretakerAlreadyInOrg: no-op, already bound to this org.
	CaretakerAlreadyInOrg
	// CaretakerMovedFromOtherOrg: bound to a different org; nothing was
	// mutated and callers must reject the operation.
	CaretakerMovedFromOtherOrg
)

type OrgService struct {
	orgs  repository.OrganizationRepository
	users repository.UserRepository
}

func NewOrgService(orgs repository.OrganizationRepository, users repository.UserRepository) *OrgService {
	return &OrgService{orgs: orgs, users: users}
}

// ResolveAdminOrg is the authorization boundary for every org-scoped
// admin operation. With an explicit id the org is fetched directly;
// otherwise it is the unique org the admin created or is staff of.
// Callers must treat ErrOrgNotFound as a hard rejection, never fall
// back to operating org-agnostically.
func (s *OrgService) ResolveAdminOrg(ctx context.Context, adminID bson.ObjectID, explicitOrgID *bson.ObjectID) (*models.Organization, error) {
	var (
		org *models.Organization
		err error
	)
	if explicitOrgID != nil {
		org, err = s.orgs.FindByID(ctx, *explicitOrgID)
	} else {
		org, err = s.orgs.FindByAdmin(ctx, adminID)
	}
	if err != nil {
		if isNoDocuments(err) {
			return nil, ErrOrgNotFound
		}
		return nil, wrapStore(err)
	}
	return org, nil
}

// EnsureStaffBoundToOrg checks that a nurse/doctor legitimately belongs
// to the org. When the org's staff set has them but their forward
// pointer is stale, the pointer is repaired. It never inserts into the
// staff set itself; that is AddStaff's job.
func (s *OrgService) EnsureStaffBoundToOrg(ctx context.Context, staff *models.User, org *models.Organization) (linked bool, err error) {
	if staff.Organization != nil && *staff.Organization == org.Id {
		return false, nil
	}
	if !org.HasStaff(staff.ID) {
		return false, ErrNotInStaff
	}
	if err := s.users.SetOrganization(ctx, staff.ID, org.Id); err != nil {
		return false, wrapStore(err)
	}
	staff.Organization = &org.Id
	return true, nil
}

// LinkCaretakerToOrgIfFreelance binds a freelance caretaker to the org.
// A caretaker already bound elsewhere is never mutated; one caretaker
// cannot serve two organizations.
func (s *OrgService) LinkCaretakerToOrgIfFreelance(ctx context.Context, caretaker *models.User, org *models.Organization) (CaretakerLink, error) {
	if caretaker.Organization != nil {
		if *caretaker.Organization == org.Id {
			return CaretakerAlreadyInOrg, nil
		}
		return CaretakerMovedFromOtherOrg, nil
	}
	if err := s.users.SetOrganization(ctx, caretaker.ID, org.Id); err != nil {
		return 0, wrapStore(err)
	}
	caretaker.Organization = &org.Id
	return CaretakerLinked, nil
}

// AddStaff puts a nurse/doctor into the org's staff set (idempotent)
// and points their organization field here regardless of where it
// pointed before.
func (s *OrgService) AddStaff(ctx context.Context, org *models.Organization, user *models.User) error {
	if !user.Role.IsStaff() {
		return ErrInvalidStaffRole
	}
	if err := s.orgs.AddStaff(ctx, org.Id, user.ID); err != nil {
		return wrapStore(err)
	}
	if user.Organization == nil || *user.Organization != org.Id {
		if err := s.users.SetOrganization(ctx, user.ID, org.Id); err != nil {
			return wrapStore(err)
		}
	}
	return nil
}

// RemoveStaff takes a user out of the staff set and clears their
// forward pointer when it still references this org. Existing patient
// assignments are left untouched.
func (s *OrgService) RemoveStaff(ctx context.Context, org *models.Organization, user *models.User) error {
	if err := s.orgs.RemoveStaff(ctx, org.Id, user.ID); err != nil {
		return wrapStore(err)
	}
	return wrapStore(s.users.ClearOrganizationIf(ctx, user.ID, org.Id))
}

func (s *OrgService) CreateOrganization(ctx context.Context, name string, createdBy bson.ObjectID) (*models.Organization, error) {
	now := time.Now().UTC()
	org := &models.Organization{
		Name:      name,
		Slug:      utils.GenerateSlug(name),
		IsActive:  true,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orgs.Create(ctx, org); err != nil {
		if utils.IsDuplicateKey(err) {
			return nil, ErrOrgNameTaken
		}
		return nil, wrapStore(err)
	}
	return org, nil
}
