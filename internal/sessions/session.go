package sessions

import (
	"time"

	"github.com/promptgist/promptgist/internal/identity"
)

// Session is a refresh session. It carries the user so a refresh can mint a
// new access token without going back to the identity provider.
type Session struct {
	ID           string        `bson:"_id,omitempty" json:"id"`
	RefreshToken string        `bson:"refreshToken" json:"refreshToken"`
	Sub          string        `bson:"sub" json:"sub"`
	User         identity.User `bson:"user" json:"user"`
	ExpiresAt    time.Time     `bson:"expiresAt" json:"expiresAt"`
	CreatedAt    time.Time     `bson:"createdAt" json:"createdAt"`
}
