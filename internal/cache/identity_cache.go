package cache

import (
	"strings"
	"time"

	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
)

const defaultIdentityTTL = 30 * time.Second

// IdentityCache remembers which account a verified subject maps to, so
// authenticated requests skip the provisioning lookup. Balances are never
// cached.
type IdentityCache interface {
	Get(subject string) (accountdomain.Account, bool)
	Set(subject string, account accountdomain.Account)
	Invalidate(subject string)
}

type identityCache struct {
	accounts Cache[string, accountdomain.Account]
	ttl      time.Duration
}

func NewIdentityCache() IdentityCache {
	return &identityCache{
		accounts: NewTTLCache[string, accountdomain.Account](),
		ttl:      defaultIdentityTTL,
	}
}

func (c *identityCache) Get(subject string) (accountdomain.Account, bool) {
	return c.accounts.Get(cacheKey(subject))
}

func (c *identityCache) Set(subject string, account accountdomain.Account) {
	if account.ID == 0 {
		return
	}
	c.accounts.Set(cacheKey(subject), account, c.ttl)
}

func (c *identityCache) Invalidate(subject string) {
	c.accounts.Delete(cacheKey(subject))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, trimmed)
	}
	return strings.Join(values, "|")
}
