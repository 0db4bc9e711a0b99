package models

import (
	"time"

	"github.com/promptgist/promptgist/internal/identity"
)

// User represents an application user (mapped from Keycloak claims)
type User struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Sub       string    `bson:"sub" json:"sub"` // OIDC subject
	Email     string    `bson:"email" json:"email"`
	Name      string    `bson:"name" json:"name"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Identity is the user as document operations see it; the OIDC subject is
// the stable owner id.
func (u *User) Identity() identity.User {
	return identity.User{ID: u.Sub, Name: u.Name, Email: u.Email}
}
