package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Organization groups nurses and doctors under the admin that runs it.
// Staff holds nurse/doctor ids only; caretakers are linked through
// User.Organization instead.
type Organization struct {
	Id        bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name      string          `bson:"name" json:"name"`
	Slug      string          `bson:"slug" json:"slug"`
	IsActive  bool            `bson:"isActive" json:"isActive"`
	CreatedBy bson.ObjectID   `bson:"createdBy" json:"createdBy"`
	Staff     []bson.ObjectID `bson:"staff,omitempty" json:"staff,omitempty"`
	CreatedAt time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time       `bson:"updatedAt" json:"updatedAt"`
}

func (o *Organization) HasStaff(userID bson.ObjectID) bool {
	for _, id := range o.Staff {
		if id == userID {
			return true
		}
	}
	return false
}
