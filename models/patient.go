package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// CareDocument is a file attached to a patient (care plans, referrals,
// scans) stored in GCS.
type CareDocument struct {
	PublicURL  string    `bson:"publicUrl" json:"publicUrl"`
	ObjectName string    `bson:"objectName" json:"-"`
	FileName   string    `bson:"fileName" json:"fileName"`
	MimeType   string    `bson:"mimeType" json:"mimeType"`
	SizeBytes  int64     `bson:"sizeBytes" json:"sizeBytes"`
	UploadedBy string    `bson:"uploadedBy" json:"uploadedBy"`
	UploadedAt time.Time `bson:"uploadedAt" json:"uploadedAt"`
}

// Patient is the authoritative record for staff assignment. The
// assignedPatients lists cached on users mirror these fields and are
// maintained by the assignment service.
type Patient struct {
	Id             bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	FullName       string          `bson:"fullName" json:"fullName"`
	DateOfBirth    time.Time       `bson:"dateOfBirth" json:"dateOfBirth"`
	Gender         string          `bson:"gender" json:"gender"`
	Organization   *bson.ObjectID  `bson:"organization,omitempty" json:"organization,omitempty"` // nil => freelance patient
	Caretaker      bson.ObjectID   `bson:"caretaker" json:"caretaker"`
	AssignedNurses []bson.ObjectID `bson:"assignedNurses,omitempty" json:"assignedNurses,omitempty"`
	AssignedDoctor *bson.ObjectID  `bson:"assignedDoctor,omitempty" json:"assignedDoctor,omitempty"`
	Documents      []CareDocument  `bson:"documents,omitempty" json:"documents,omitempty"`
	IsDeleted      bool            `bson:"isDeleted" json:"isDeleted"`
	DeletedAt      *time.Time      `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	DeletedBy      *bson.ObjectID  `bson:"deletedBy,omitempty" json:"deletedBy,omitempty"`
	CreatedAt      time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time       `bson:"updatedAt" json:"updatedAt"`
}

func (p *Patient) HasNurse(userID bson.ObjectID) bool {
	for _, id := range p.AssignedNurses {
		if id == userID {
			return true
		}
	}
	return false
}

// Assignees returns every user id the patient currently references:
// caretaker, nurses and doctor.
func (p *Patient) Assignees() []bson.ObjectID {
	out := make([]bson.ObjectID, 0, len(p.AssignedNurses)+2)
	out = append(out, p.Caretaker)
	out = append(out, p.AssignedNurses...)
	if p.AssignedDoctor != nil {
		out = append(out, *p.AssignedDoctor)
	}
	return out
}
