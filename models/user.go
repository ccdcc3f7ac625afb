package models

import (
	"strconv"
	"time"
)

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// User is a Poplift site owner. Its id doubles as the owner id embedded
// in pixel snippets and local-storage namespaces.
type User struct {
	ID             int       `json:"id"`
	Email          string    `json:"email"`
	HashedPassword []byte    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OwnerID returns the string form of the user id used by the tracking
// endpoints and storage key namespacing.
func (u *User) OwnerID() string {
	return strconv.Itoa(u.ID)
}
