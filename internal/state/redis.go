package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mattjoyce/armsd/internal/bandit"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	// KeyPrefix is prepended to every key. The braces form a cluster hash
	// tag so scripts touching several keys stay on one slot.
	KeyPrefix string

	// EventTTL bounds how long processed event ids are remembered.
	EventTTL time.Duration
}

// DefaultRedisConfig returns the default key layout.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		KeyPrefix: "{armsd}:",
		EventTTL:  30 * 24 * time.Hour,
	}
}

// RedisStore implements bandit.BeliefStore with one hash per arm plus a set
// indexing arm names. Mutations run as Lua scripts so they are atomic.
type RedisStore struct {
	client redis.UniversalClient
	cfg    RedisConfig
	now    func() time.Time

	ensureScript    *redis.Script
	incrementScript *redis.Script
}

var _ bandit.BeliefStore = (*RedisStore)(nil)

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	def := DefaultRedisConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = def.EventTTL
	}

	return &RedisStore{
		client: client,
		cfg:    cfg,
		now:    time.Now,
		// KEYS = arm hashes; ARGV = alpha, beta, updated_at, index key, arm names...
		ensureScript: redis.NewScript(`
local created = 0
for i, key in ipairs(KEYS) do
  if redis.call('HSETNX', key, 'alpha', ARGV[1]) == 1 then
    redis.call('HSET', key, 'beta', ARGV[2], 'updated_at', ARGV[3])
    redis.call('SADD', ARGV[4], ARGV[4 + i])
    created = created + 1
  end
end
return created
`),
		// KEYS = arm hash, index; ARGV = prior alpha, prior beta, dAlpha, dBeta, updated_at, arm
		incrementScript: redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1], 'alpha', ARGV[1], 'beta', ARGV[2])
  redis.call('SADD', KEYS[2], ARGV[6])
end
local a = redis.call('HINCRBYFLOAT', KEYS[1], 'alpha', ARGV[3])
local b = redis.call('HINCRBYFLOAT', KEYS[1], 'beta', ARGV[4])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[5])
return {a, b, ARGV[5]}
`),
	}, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) armKey(arm string) string { return s.cfg.KeyPrefix + "arm:" + arm }
func (s *RedisStore) indexKey() string         { return s.cfg.KeyPrefix + "arms" }
func (s *RedisStore) eventKey(id string) string { return s.cfg.KeyPrefix + "event:" + id }

func (s *RedisStore) Get(ctx context.Context, arm string) (bandit.Record, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.armKey(arm)).Result()
	if err != nil {
		return bandit.Record{}, false, fmt.Errorf("read belief: %w", err)
	}
	if len(fields) == 0 {
		return bandit.Record{}, false, nil
	}
	rec, err := recordFromHash(arm, fields)
	if err != nil {
		return bandit.Record{}, false, err
	}
	return rec, true, nil
}

func (s *RedisStore) List(ctx context.Context) ([]bandit.Record, error) {
	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list arm index: %w", err)
	}
	sort.Strings(names)

	cmds := make([]*redis.MapStringStringCmd, len(names))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, name := range names {
			cmds[i] = p.HGetAll(ctx, s.armKey(name))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list beliefs: %w", err)
	}

	out := make([]bandit.Record, 0, len(names))
	for i, name := range names {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			// Index entry without a hash: deleted between SMEMBERS and HGETALL.
			continue
		}
		rec, err := recordFromHash(name, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) EnsureArms(ctx context.Context, arms []string) (int, error) {
	if len(arms) == 0 {
		return 0, nil
	}
	keys := make([]string, len(arms))
	args := make([]any, 0, 4+len(arms))
	args = append(args, bandit.PriorAlpha, bandit.PriorBeta, s.stamp(), s.indexKey())
	for i, arm := range arms {
		keys[i] = s.armKey(arm)
		args = append(args, arm)
	}

	created, err := s.ensureScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return 0, fmt.Errorf("insert priors: %w", err)
	}
	return created, nil
}

func (s *RedisStore) Increment(ctx context.Context, arm string, dAlpha, dBeta float64) (bandit.Record, error) {
	res, err := s.incrementScript.Run(ctx, s.client,
		[]string{s.armKey(arm), s.indexKey()},
		bandit.PriorAlpha, bandit.PriorBeta, dAlpha, dBeta, s.stamp(), arm,
	).StringSlice()
	if err != nil {
		return bandit.Record{}, fmt.Errorf("increment belief: %w", err)
	}
	if len(res) != 3 {
		return bandit.Record{}, fmt.Errorf("increment belief: unexpected script reply %v", res)
	}
	return recordFromHash(arm, map[string]string{"alpha": res[0], "beta": res[1], "updated_at": res[2]})
}

func (s *RedisStore) Delete(ctx context.Context, arms []string) (int, error) {
	if len(arms) == 0 {
		return 0, nil
	}
	dels := make([]*redis.IntCmd, len(arms))
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for i, arm := range arms {
			dels[i] = p.Del(ctx, s.armKey(arm))
			p.SRem(ctx, s.indexKey(), arm)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete beliefs: %w", err)
	}
	deleted := 0
	for _, c := range dels {
		deleted += int(c.Val())
	}
	return deleted, nil
}

// MarkProcessed remembers an event id for EventTTL.
func (s *RedisStore) MarkProcessed(ctx context.Context, ev ProcessedEvent) (bool, error) {
	if ev.ID == "" {
		return false, fmt.Errorf("event id is empty")
	}
	val := ev.Type + "|" + ev.Arm + "|" + strconv.FormatFloat(ev.Reward, 'g', -1, 64)
	err := s.client.SetArgs(ctx, s.eventKey(ev.ID), val, redis.SetArgs{Mode: "NX", TTL: s.cfg.EventTTL}).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	return true, nil
}

// Forget removes an event id.
func (s *RedisStore) Forget(ctx context.Context, eventID string) error {
	if err := s.client.Del(ctx, s.eventKey(eventID)).Err(); err != nil {
		return fmt.Errorf("forget event: %w", err)
	}
	return nil
}

func (s *RedisStore) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func recordFromHash(arm string, fields map[string]string) (bandit.Record, error) {
	rec := bandit.Record{Arm: arm}
	var err error
	if rec.Alpha, err = strconv.ParseFloat(fields["alpha"], 64); err != nil {
		return bandit.Record{}, fmt.Errorf("parse alpha for %q: %w", arm, err)
	}
	if rec.Beta, err = strconv.ParseFloat(fields["beta"], 64); err != nil {
		return bandit.Record{}, fmt.Errorf("parse beta for %q: %w", arm, err)
	}
	if ts, ok := fields["updated_at"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.UpdatedAt = t
		}
	}
	return rec, nil
}
