package service

import (
	"fmt"
	"strings"
	"sync"

	"career-compass/internal/domain"
)

// IdentityTracker guarda la unica identidad activa de la instancia.
// Pasa de anonima a autenticada una sola vez y nunca vuelve atras.
type IdentityTracker struct {
	mu      sync.RWMutex
	current domain.Identity
}

func NewIdentityTracker(deviceToken string) *IdentityTracker {
	return &IdentityTracker{current: domain.AnonymousIdentity(deviceToken)}
}

func (t *IdentityTracker) Current() domain.Identity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Authenticate devuelve true solo en la transicion anonima -> autenticada.
// Repetir la misma cuenta no es error; otra cuenta distinta si.
func (t *IdentityTracker) Authenticate(accountID string) (bool, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return false, fmt.Errorf("account id is required: %w", domain.ErrInvalidInput)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current.IsAuthenticated() {
		if t.current.Subject == accountID {
			return false, nil
		}
		return false, fmt.Errorf("already authenticated as another account: %w", domain.ErrIdentityConflict)
	}
	t.current = domain.AuthenticatedIdentity(accountID)
	return true, nil
}
