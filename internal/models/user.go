package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserSnapshot is a copy of a user's identity taken at write time.
// Historical records embed it instead of referencing the live user
// directory, so later profile edits do not rewrite history.
type UserSnapshot struct {
	UserID primitive.ObjectID `bson:"user_id" json:"user_id"`
	Name   string             `bson:"name" json:"name"`
	Email  string             `bson:"email,omitempty" json:"email,omitempty"`
	Avatar string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
}

// IsZero reports whether the snapshot carries no identity.
func (u UserSnapshot) IsZero() bool {
	return u.UserID.IsZero()
}
