package reporter

import (
	"sync"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
)

// AdminSet is the set of principals allowed to call the admin routes.
type AdminSet struct {
	mu     sync.RWMutex
	admins map[agreement.Principal]struct{}
}

// NewAdminSet validates and builds the admin set. An empty set or one
// containing the anonymous principal is a configuration error.
func NewAdminSet(admins []agreement.Principal) (*AdminSet, error) {
	set, err := buildAdminSet(admins)
	if err != nil {
		return nil, err
	}
	return &AdminSet{admins: set}, nil
}

func (a *AdminSet) IsAdmin(p agreement.Principal) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.admins[p]
	return ok
}

// Replace swaps in a new admin set, validated under the same rules.
func (a *AdminSet) Replace(admins []agreement.Principal) error {
	set, err := buildAdminSet(admins)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.admins = set
	return nil
}

func buildAdminSet(admins []agreement.Principal) (map[agreement.Principal]struct{}, error) {
	if len(admins) == 0 {
		return nil, &agreement.ConfigurationError{Code: agreement.AdminsCantBeEmpty}
	}

	set := make(map[agreement.Principal]struct{}, len(admins))
	for _, admin := range admins {
		if admin.IsAnonymous() || !admin.IsValid() {
			return nil, &agreement.ConfigurationError{Code: agreement.AnonymousAdmin}
		}
		set[admin] = struct{}{}
	}
	return set, nil
}
