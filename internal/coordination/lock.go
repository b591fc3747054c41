// Package coordination guarantees single-process ownership of the
// scheduling core and propagates lane maintenance flags across replicas
// via etcd. Only one process may run the tick loop against a given shop
// id at a time; coordination is what enforces that outside the process
// boundary.
package coordination

import (
	"context"
	"fmt"
	"log"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// Coordinator wraps an etcd session used both for the ownership lock and
// for watching lane maintenance flags set by an operator.
type Coordinator struct {
	client  *clientv3.Client
	session *concurrency.Session
	mutex   *concurrency.Mutex
	lockKey string
}

// Config holds etcd connection settings.
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	ShopID      string
	SessionTTL  int
}

// New dials etcd and opens a session. It does not acquire the lock; call
// AcquireOwnership for that.
func New(cfg Config) (*Coordinator, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("coordination: dial etcd: %w", err)
	}

	session, err := concurrency.NewSession(client, concurrency.WithTTL(cfg.SessionTTL))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("coordination: open session: %w", err)
	}

	lockKey := "/paintshop/" + cfg.ShopID + "/owner"
	return &Coordinator{
		client:  client,
		session: session,
		mutex:   concurrency.NewMutex(session, lockKey),
		lockKey: lockKey,
	}, nil
}

// AcquireOwnership blocks until this process holds the single-owner lock
// for the shop, or ctx is cancelled. The engine's tick loop must not start
// until this returns successfully.
func (c *Coordinator) AcquireOwnership(ctx context.Context) error {
	if err := c.mutex.Lock(ctx); err != nil {
		return fmt.Errorf("coordination: acquire ownership lock %s: %w", c.lockKey, err)
	}
	return nil
}

// ReleaseOwnership gives up the lock, allowing another process to take
// over. Called on graceful shutdown.
func (c *Coordinator) ReleaseOwnership(ctx context.Context) error {
	return c.mutex.Unlock(ctx)
}

// LockLost returns a channel that closes when the underlying etcd session
// expires — e.g. on a network partition longer than the session TTL. The
// caller must treat this as "ownership may have been lost" and stop
// mutating shared state until it re-acquires the lock.
func (c *Coordinator) LockLost() <-chan struct{} {
	return c.session.Done()
}

// WatchMaintenance watches the maintenance flag for a single lane and
// invokes onChange with the new value whenever it's updated out-of-band by
// an operator (true = lane suspended, false = lane resumed).
func (c *Coordinator) WatchMaintenance(ctx context.Context, shopID, laneID string, onChange func(underMaintenance bool)) {
	key := fmt.Sprintf("/paintshop/%s/maintenance/%s", shopID, laneID)
	watchCh := c.client.Watch(ctx, key)

	go func() {
		for resp := range watchCh {
			if resp.Err() != nil {
				log.Printf("coordination: watch error for %s: %v", key, resp.Err())
				continue
			}
			for _, ev := range resp.Events {
				underMaintenance := ev.Type == clientv3.EventTypePut && string(ev.Kv.Value) == "true"
				onChange(underMaintenance)
			}
		}
	}()
}

// SetMaintenance writes the maintenance flag for a lane. Exposed for the
// gateway's maintenance command endpoint.
func (c *Coordinator) SetMaintenance(ctx context.Context, shopID, laneID string, underMaintenance bool) error {
	key := fmt.Sprintf("/paintshop/%s/maintenance/%s", shopID, laneID)
	value := "false"
	if underMaintenance {
		value = "true"
	}
	_, err := c.client.Put(ctx, key, value)
	if err != nil {
		return fmt.Errorf("coordination: set maintenance %s: %w", key, err)
	}
	return nil
}

// Close ends the session and closes the underlying client.
func (c *Coordinator) Close() error {
	if err := c.session.Close(); err != nil {
		log.Printf("coordination: session close: %v", err)
	}
	return c.client.Close()
}
