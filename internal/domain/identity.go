package domain

import "strings"

type IdentityKind int

const (
	IdentityAnonymous IdentityKind = iota
	IdentityAuthenticated
)

func (k IdentityKind) String() string {
	if k == IdentityAuthenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Identity se decide una vez en el borde; nadie la vuelve a derivar de la forma del string.
type Identity struct {
	Kind    IdentityKind `json:"-"`
	Subject string       `json:"subject"`
}

func AnonymousIdentity(deviceToken string) Identity {
	return Identity{Kind: IdentityAnonymous, Subject: strings.TrimSpace(deviceToken)}
}

func AuthenticatedIdentity(accountID string) Identity {
	return Identity{Kind: IdentityAuthenticated, Subject: strings.TrimSpace(accountID)}
}

func (i Identity) IsAuthenticated() bool {
	return i.Kind == IdentityAuthenticated && i.Subject != ""
}
