package coordinator

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdClient backs Client with etcd, the alternate coordinator transport.
// Acquire uses a lease to emulate Redis's SET NX EX; Swap has no native
// etcd equivalent to GETSET, so it is implemented as a read followed by a
// put. The put runs in a transaction compared on the read revision, but both
// branches write the new value (and an absent key gets a plain put), so the
// swap is not atomic: a write between the read and the put is overwritten
// and the returned old value may be stale. This is a documented, accepted
// deviation: the lock protocol's ownership-drift check already tolerates a
// benign race on swap.
type EtcdClient struct {
	cli       *clientv3.Client
	namespace string
}

type EtcdConfig struct {
	Endpoints []string
	Timeout   time.Duration
	Namespace string
}

func NewEtcdClient(cfg EtcdConfig) (*EtcdClient, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("dial etcd: %w", err)
	}
	return &EtcdClient{cli: cli, namespace: cfg.Namespace}, nil
}

func (c *EtcdClient) ns(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + "/" + key
}

func (c *EtcdClient) Get(ctx context.Context, key string) (string, bool, error) {
	resp, err := c.cli.Get(ctx, c.ns(key))
	if err != nil {
		return "", false, fmt.Errorf("coordinator get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

func (c *EtcdClient) Set(ctx context.Context, key, value string) error {
	if _, err := c.cli.Put(ctx, c.ns(key), value); err != nil {
		return fmt.Errorf("coordinator set %s: %w", key, err)
	}
	return nil
}

func (c *EtcdClient) Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	lease, err := c.cli.Grant(ctx, int64(ttl.Seconds()))
	if err != nil {
		return false, fmt.Errorf("coordinator acquire %s: grant lease: %w", key, err)
	}

	k := c.ns(key)
	txn := c.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(k), "=", 0)).
		Then(clientv3.OpPut(k, value, clientv3.WithLease(lease.ID))).
		Else()

	resp, err := txn.Commit()
	if err != nil {
		return false, fmt.Errorf("coordinator acquire %s: %w", key, err)
	}
	if !resp.Succeeded {
		// Lease granted but unused; let it expire rather than revoking
		// under contention to avoid an extra round trip on the hot path.
		return false, nil
	}
	return true, nil
}

func (c *EtcdClient) Swap(ctx context.Context, key, newValue string) (string, bool, error) {
	k := c.ns(key)

	get, err := c.cli.Get(ctx, k)
	if err != nil {
		return "", false, fmt.Errorf("coordinator swap %s: read: %w", key, err)
	}
	if len(get.Kvs) == 0 {
		if _, err := c.cli.Put(ctx, k, newValue); err != nil {
			return "", false, fmt.Errorf("coordinator swap %s: put: %w", key, err)
		}
		return "", false, nil
	}

	old := string(get.Kvs[0].Value)
	rev := get.Kvs[0].ModRevision

	txn := c.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(k), "=", rev)).
		Then(clientv3.OpPut(k, newValue)).
		Else(clientv3.OpPut(k, newValue))

	if _, err := txn.Commit(); err != nil {
		return "", false, fmt.Errorf("coordinator swap %s: commit: %w", key, err)
	}
	return old, true, nil
}

func (c *EtcdClient) Refresh(ctx context.Context, key, value string, ttl time.Duration) error {
	lease, err := c.cli.Grant(ctx, int64(ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("coordinator refresh %s: grant lease: %w", key, err)
	}
	if _, err := c.cli.Put(ctx, c.ns(key), value, clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("coordinator refresh %s: %w", key, err)
	}
	return nil
}

func (c *EtcdClient) Delete(ctx context.Context, key string) error {
	if _, err := c.cli.Delete(ctx, c.ns(key)); err != nil {
		return fmt.Errorf("coordinator delete %s: %w", key, err)
	}
	return nil
}

func (c *EtcdClient) Close() error {
	return c.cli.Close()
}
