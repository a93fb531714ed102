package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleSeller Role = "Seller"
	RoleBuyer  Role = "Buyer"
)

var Roles = []string{string(RoleSeller), string(RoleBuyer)}

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName     string             `bson:"full_name" json:"fullName"`
	Email        string             `bson:"email" json:"email"`
	Password     string             `bson:"password" json:"-"`
	Avatar       string             `bson:"avatar" json:"avatar"`
	CoverImage   string             `bson:"cover_image,omitempty" json:"coverImage,omitempty"`
	RefreshToken string             `bson:"refresh_token,omitempty" json:"-"`
	Role         Role               `bson:"role" json:"role"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updatedAt"`
}

// UserSummary is the projection used when populating owners and authors.
type UserSummary struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	FullName string             `bson:"full_name" json:"fullName"`
	Email    string             `bson:"email" json:"email"`
}

func (u *User) Summary() *UserSummary {
	return &UserSummary{ID: u.ID, FullName: u.FullName, Email: u.Email}
}

func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Email: u.Email, FullName: u.FullName}
}

// Identity is the authenticated caller. It is passed explicitly into every
// service operation.
type Identity struct {
	UserID   primitive.ObjectID
	Email    string
	FullName string
}

func (i Identity) IsZero() bool { return i.UserID.IsZero() }
