package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for principal records.
// All keys are automatically namespaced with the instance name. The client is
// thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
	locks        addressLocks
}

// NewClient creates a store client for the specified instance.
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// GetPrincipal retrieves a principal record by normalized address.
// Returns (nil, redis.Nil) if no record exists; use IsNotFound to check.
func (c *Client) GetPrincipal(ctx context.Context, address string) (*Principal, error) {
	key := PrincipalKey(c.instanceName, address)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read principal from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys.
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	return HashToPrincipal(hashData)
}

// SavePrincipal validates and writes a principal record, keeping the
// principals set and the per-status index sets consistent in one pipeline.
// This method is idempotent - writing the same record twice is safe.
func (c *Client) SavePrincipal(ctx context.Context, p *Principal) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid principal: %w", err)
	}

	key := PrincipalKey(c.instanceName, p.Address)

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, PrincipalToHash(p))
	pipe.SAdd(ctx, PrincipalsKey(c.instanceName), p.Address)
	for _, status := range AllStatuses() {
		if status == p.CredentialStatus {
			pipe.SAdd(ctx, StatusSetKey(c.instanceName, status), p.Address)
		} else {
			pipe.SRem(ctx, StatusSetKey(c.instanceName, status), p.Address)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write principal to Redis: %w", err)
	}
	return nil
}

// PrincipalExists checks whether a record exists without fetching it.
func (c *Client) PrincipalExists(ctx context.Context, address string) (bool, error) {
	key := PrincipalKey(c.instanceName, address)
	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check principal existence: %w", err)
	}
	return exists > 0, nil
}

// Update applies fn to the principal record under the per-address lock,
// giving read-modify-write atomicity within this process. Multiple loops
// touch the same principal in close succession (mint orchestrator,
// confirmation checker, sync worker); the lock prevents lost updates between
// them. Cross-address operations need no coordination and proceed in
// parallel.
//
// fn may mutate the record freely; it is persisted after fn returns nil.
// Returns (nil, redis.Nil) if no record exists.
func (c *Client) Update(ctx context.Context, address string, fn func(p *Principal) error) (*Principal, error) {
	unlock := c.locks.lock(address)
	defer unlock()

	p, err := c.GetPrincipal(ctx, address)
	if err != nil {
		return nil, err
	}

	if err := fn(p); err != nil {
		return nil, err
	}

	if err := c.SavePrincipal(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CreatePrincipal writes a new record under the per-address lock, failing if
// one already exists. Principal records are created once, on first successful
// authentication, and never deleted.
func (c *Client) CreatePrincipal(ctx context.Context, p *Principal) error {
	unlock := c.locks.lock(p.Address)
	defer unlock()

	exists, err := c.PrincipalExists(ctx, p.Address)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("principal %s already exists", p.Address)
	}

	return c.SavePrincipal(ctx, p)
}

// ListByStatus returns the addresses currently in the given credential
// status, sorted for deterministic sweeps.
func (c *Client) ListByStatus(ctx context.Context, status CredentialStatus) ([]string, error) {
	addrs, err := c.rdb.SMembers(ctx, StatusSetKey(c.instanceName, status)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list principals by status: %w", err)
	}
	sort.Strings(addrs)
	return addrs, nil
}

// ListPrincipals returns all known principal addresses, sorted.
func (c *Client) ListPrincipals(ctx context.Context) ([]string, error) {
	addrs, err := c.rdb.SMembers(ctx, PrincipalsKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	sort.Strings(addrs)
	return addrs, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

// addressLocks is a keyed mutex giving per-address critical sections. Lock
// entries are never removed; the principal population is bounded and records
// are never deleted.
type addressLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (a *addressLocks) lock(address string) (unlock func()) {
	a.mu.Lock()
	if a.locks == nil {
		a.locks = make(map[string]*sync.Mutex)
	}
	l, ok := a.locks[address]
	if !ok {
		l = &sync.Mutex{}
		a.locks[address] = l
	}
	a.mu.Unlock()

	l.Lock()
	return l.Unlock
}
