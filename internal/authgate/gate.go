package authgate

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
)

// UserSource is the slice of the repository the gate needs.
type UserSource interface {
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}

// Gate turns a PIN credential into the identity of the administrator who
// approved a privileged action. It does not decide what that action may
// do; callers pass the resulting identity into the ledger, which records
// it in the audit trail.
type Gate struct {
	users UserSource
}

func New(users UserSource) *Gate {
	return &Gate{users: users}
}

// Authorize matches the PIN against every active administration account.
// Accounts without a PIN never match.
func (g *Gate) Authorize(ctx context.Context, pin string) (domain.Identity, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return domain.Identity{}, fmt.Errorf("%w: pin required", store.ErrUnauthorized)
	}

	accounts, err := g.users.ListUsers(ctx)
	if err != nil {
		return domain.Identity{}, err
	}

	for _, account := range accounts {
		if !account.Active || account.Role != domain.RoleAdministration || account.PIN == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(account.PIN), []byte(pin)) == nil {
			return domain.Identity{
				UserID:   account.ID,
				UserName: account.Name,
				Role:     account.Role,
			}, nil
		}
	}

	return domain.Identity{}, fmt.Errorf("%w: pin not recognized", store.ErrUnauthorized)
}
