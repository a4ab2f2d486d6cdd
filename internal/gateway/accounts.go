package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "announcerd/pkg/logx"
)

// Account is a read-only snapshot of a user account.
type Account struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Admin     bool   `json:"admin"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Accounts is the identity gateway.
type Accounts struct {
	client
}

type AccountsConfig struct {
	BaseURL string
	Timeout time.Duration
}

func NewAccounts(cfg AccountsConfig, log logx.Logger) *Accounts {
	return &Accounts{client: newClient(cfg.BaseURL, cfg.Timeout, log)}
}

// ListAdmins returns the current snapshot of admin accounts.
func (g *Accounts) ListAdmins(ctx context.Context) ([]Account, error) {
	const op = "accounts.list_admins"

	var body struct {
		Accounts *[]Account `json:"accounts"`
	}
	q := url.Values{"type": {"admin"}}
	if err := g.doJSON(ctx, op, http.MethodGet, "/v1/accounts", q, nil, &body); err != nil {
		return nil, err
	}
	if body.Accounts == nil {
		return nil, invalidErr(op, fmt.Errorf("response missing %q key", "accounts"))
	}
	return *body.Accounts, nil
}

// AdminEmails derives the notification recipient list from an account
// snapshot. Blank addresses are dropped; duplicates keep their first position.
func AdminEmails(accounts []Account) []string {
	seen := make(map[string]struct{}, len(accounts))
	emails := make([]string, 0, len(accounts))
	for _, a := range accounts {
		addr := strings.TrimSpace(a.Email)
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		emails = append(emails, addr)
	}
	return emails
}
