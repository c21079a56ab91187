package domain

import "strings"

// IdentityKind tells whether a participant is an authenticated account or an anonymous guest.
type IdentityKind string

const (
	IdentityAccount IdentityKind = "account"
	IdentityGuest   IdentityKind = "guest"
)

// Identity is exactly one of an account id or a guest token. Ref holds whichever it is.
type Identity struct {
	Kind IdentityKind `json:"kind"`
	Ref  string       `json:"ref"`
	Name string       `json:"name,omitempty"`
}

func AccountIdentity(accountID, displayName string) Identity {
	return Identity{Kind: IdentityAccount, Ref: accountID, Name: displayName}
}

func GuestIdentity(token string) Identity {
	return Identity{Kind: IdentityGuest, Ref: token}
}

// Validate rejects identities of unknown kind or without a reference.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.Ref) == "" {
		return ErrInvalidIdentity
	}
	switch i.Kind {
	case IdentityAccount, IdentityGuest:
		return nil
	default:
		return ErrInvalidIdentity
	}
}

// Controls reports whether the identity operates the room.
func (i Identity) Controls(room Room) bool {
	return i.Kind == IdentityAccount && room.OwnerID != "" && i.Ref == room.OwnerID
}
