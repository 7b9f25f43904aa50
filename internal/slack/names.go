package slack

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

const (
	nameCacheSize = 5000
	nameCacheTTL  = time.Hour
)

// NameCache resolves Slack user IDs to usernames. Chat users are keyed by
// username so commands can address them by name.
type NameCache struct {
	api    BotAPI
	byID   *expirable.LRU[string, string]
	byName *expirable.LRU[string, string]
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewNameCache creates a cache backed by api. api may be set later.
func NewNameCache(api BotAPI, ttl time.Duration, logger zerolog.Logger) *NameCache {
	if ttl <= 0 {
		ttl = nameCacheTTL
	}
	return &NameCache{
		api:    api,
		byID:   expirable.NewLRU[string, string](nameCacheSize, nil, ttl),
		byName: expirable.NewLRU[string, string](nameCacheSize, nil, ttl),
		logger: logger.With().Str("component", "slack.names").Logger(),
	}
}

// Resolve returns the username for id. Lookup failures fall back to the ID.
func (n *NameCache) Resolve(ctx context.Context, id string) string {
	if name, ok := n.byID.Get(id); ok {
		return name
	}
	if n.api == nil {
		return id
	}

	u, err := n.api.GetUserInfoContext(ctx, id)
	if err != nil || u == nil || u.Name == "" {
		n.logger.Warn().Err(err).Str("user_id", id).Msg("failed to resolve user name")
		return id
	}
	n.Remember(id, u.Name)
	return u.Name
}

// Remember stores an ID and name pair.
func (n *NameCache) Remember(id, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.byID.Add(id, name)
	n.byName.Add(name, id)
}

// ID returns the Slack user ID last seen for name.
func (n *NameCache) ID(name string) (string, bool) {
	return n.byName.Get(name)
}
