package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the authentication engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

const userIndexPrefix = "su"

// Store is the Redis-backed session registry. It handles persistence,
// sliding-window renewal, lazy expiry, idempotent termination, and the
// per-user session index that supports multi-device operations.
type Store struct {
	redis          redis.UniversalClient
	prefix         string
	idleWindow     time.Duration
	endedRetention time.Duration

	now func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace; idleWindow is the sliding inactivity
// window; endedRetention controls how long ended session records remain
// readable for device lists and audit.
func NewStore(
	client redis.UniversalClient,
	prefix string,
	idleWindow time.Duration,
	endedRetention time.Duration,
) *Store {
	if idleWindow <= 0 {
		idleWindow = 15 * time.Minute
	}
	if endedRetention <= 0 {
		endedRetention = 24 * time.Hour
	}
	return &Store{
		redis:          client,
		prefix:         prefix,
		idleWindow:     idleWindow,
		endedRetention: endedRetention,
		now:            time.Now,
	}
}

// IdleWindow returns the configured sliding inactivity window.
func (s *Store) IdleWindow() time.Duration {
	return s.idleWindow
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return userIndexPrefix + ":" + userID
}

// Create persists a new active session and indexes it under its user.
//
//	Performance: 2 Redis commands in one transaction (SET + SADD).
func (s *Store) Create(ctx context.Context, sess *Session) error {
	now := s.now()
	sess.Active = true
	sess.EndReason = EndReasonNone
	sess.CreatedAt = now.Unix()
	sess.LastActivity = now.Unix()
	sess.ExpiresAt = now.Add(s.idleWindow).Unix()

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, s.idleWindow+s.endedRetention)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Validate looks up an active session and, when it is live, extends its
// sliding window: lastActivity = now, expiresAt = now + idleWindow. A missing,
// ended, expired, or idle-past-window session yields (nil, nil); "no
// session" is not an error. Sessions found past their window are marked ended
// with reason timeout before the nil return (lazy expiry).
//
// The extension is a read-then-write with last-writer-wins semantics; a lost
// update can only under-extend, never revive an expired session.
func (s *Store) Validate(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil || sess == nil {
		return nil, err
	}
	if !sess.Active {
		return nil, nil
	}

	now := s.now()
	// The lastActivity check fires even when expiresAt has not technically
	// elapsed, which covers clock skew and extension races.
	if now.Unix() > sess.ExpiresAt || now.Unix()-sess.LastActivity > int64(s.idleWindow/time.Second) {
		if err := s.markEnded(ctx, sess, EndReasonTimeout, now); err != nil {
			return nil, err
		}
		return nil, nil
	}

	sess.LastActivity = now.Unix()
	sess.ExpiresAt = now.Add(s.idleWindow).Unix()

	data, err := Encode(sess)
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, s.key(sessionID), data, s.idleWindow+s.endedRetention).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sess, nil
}

// End terminates a session with the given reason. Ending a missing or
// already-inactive session is a no-op success.
func (s *Store) End(ctx context.Context, sessionID string, reason EndReason) error {
	_, err := s.end(ctx, sessionID, reason)
	return err
}

func (s *Store) end(ctx context.Context, sessionID string, reason EndReason) (bool, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil || sess == nil {
		return false, err
	}
	if !sess.Active {
		return false, nil
	}
	if err := s.markEnded(ctx, sess, reason, s.now()); err != nil {
		return false, err
	}
	return true, nil
}

// EndAllExcept terminates every active session of userID except keepSessionID
// ("log out other devices"). Returns the number of sessions ended.
func (s *Store) EndAllExcept(ctx context.Context, userID, keepSessionID string) (int, error) {
	ids, err := s.sessionIDs(ctx, userID)
	if err != nil {
		return 0, err
	}

	ended := 0
	for _, id := range ids {
		if id == keepSessionID {
			continue
		}
		changed, err := s.end(ctx, id, EndReasonForced)
		if err != nil {
			return ended, err
		}
		if changed {
			ended++
		}
	}
	return ended, nil
}

// ListActive returns the sessions of userID that a Validate call would still
// accept. It is read-only: no sliding extension happens.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.sessionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now().Unix()
	idle := int64(s.idleWindow / time.Second)
	sessions := make([]*Session, 0, len(ids))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}
		sess, decErr := Decode(data)
		if decErr != nil {
			return nil, decErr
		}
		sess.SessionID = ids[i]
		if !sess.Active || now > sess.ExpiresAt || now-sess.LastActivity > idle {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// Get fetches a session record without mutating any state. Ended sessions
// still within their retention window are returned with their end reason.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	return s.load(ctx, sessionID)
}

// ReconcileIndexes walks the per-user session indexes and removes entries
// whose session records no longer exist. Purely storage hygiene: correctness
// never depends on this running.
//
//	Performance: O(indexed sessions); admin/janitor use only, never hot path.
func (s *Store) ReconcileIndexes(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, userIndexPrefix+":*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		for _, userKey := range keys {
			ids, err := s.redis.SMembers(ctx, userKey).Result()
			if err != nil {
				return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			for _, id := range ids {
				exists, err := s.redis.Exists(ctx, s.key(id)).Result()
				if err != nil {
					return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
				}
				if exists == 0 {
					if err := s.redis.SRem(ctx, userKey, id).Err(); err != nil {
						return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
					}
					removed++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) sessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

func (s *Store) load(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID
	return sess, nil
}

func (s *Store) markEnded(ctx context.Context, sess *Session, reason EndReason, now time.Time) error {
	sess.Active = false
	sess.EndReason = reason
	sess.EndedAt = now.Unix()

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, s.endedRetention)
		pipe.SRem(ctx, s.userKey(sess.UserID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
