package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL is how long a liveness key survives without a refresh. A connection
// that vanishes without an explicit disconnect ages out within this window.
const TTL = 120 * time.Second

// Store tracks which users are online per business using TTL'd redis keys.
// Absence of a key means offline, never an error.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a presence store on the given redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func key(businessID *uint, userID uint) string {
	if businessID == nil {
		// Fallback form for identities without a business (superusers).
		return fmt.Sprintf("presence:%d", userID)
	}
	return fmt.Sprintf("presence:%d:%d", *businessID, userID)
}

// MarkOnline sets the liveness key for the user. Idempotent; repeated calls
// refresh the TTL.
func (s *Store) MarkOnline(ctx context.Context, userID uint, businessID *uint) error {
	return s.rdb.SetEx(ctx, key(businessID, userID), "1", TTL).Err()
}

// MarkOffline deletes the liveness key immediately (explicit disconnect).
func (s *Store) MarkOffline(ctx context.Context, userID uint, businessID *uint) error {
	return s.rdb.Del(ctx, key(businessID, userID)).Err()
}

// OnlineUsers returns the subset of candidate user ids whose liveness key
// currently exists for the business. Existence checks are pipelined so the
// cost is one round trip regardless of the candidate count.
func (s *Store) OnlineUsers(ctx context.Context, businessID uint, candidates []uint) ([]uint, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(candidates))
	for i, uid := range candidates {
		cmds[i] = pipe.Exists(ctx, key(&businessID, uid))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	online := make([]uint, 0, len(candidates))
	for i, uid := range candidates {
		if cmds[i].Val() > 0 {
			online = append(online, uid)
		}
	}
	return online, nil
}
