package ormion

import (
	"database/sql"
	"math/rand/v2"
	"sync/atomic"
)

// DBResolver routes reads to replicas and everything else to the primary.
type DBResolver struct {
	primary  *sql.DB
	replicas []*sql.DB
	lb       LoadBalancer
}

// LoadBalancer picks the replica for the next read.
type LoadBalancer interface {
	Next(replicas []*sql.DB) *sql.DB
}

// RoundRobinLoadBalancer cycles through replicas in order.
type RoundRobinLoadBalancer struct {
	counter atomic.Uint64
}

// Next returns the next replica in round-robin order.
func (r *RoundRobinLoadBalancer) Next(replicas []*sql.DB) *sql.DB {
	switch len(replicas) {
	case 0:
		return nil
	case 1:
		return replicas[0]
	}

	idx := r.counter.Add(1) - 1
	return replicas[idx%uint64(len(replicas))]
}

// RandomLoadBalancer picks a replica uniformly at random.
type RandomLoadBalancer struct{}

func (RandomLoadBalancer) Next(replicas []*sql.DB) *sql.DB {
	if len(replicas) == 0 {
		return nil
	}
	return replicas[rand.IntN(len(replicas))]
}

// NewDBResolver returns a resolver over a primary and its replicas. A nil
// balancer means round robin.
func NewDBResolver(primary *sql.DB, lb LoadBalancer, replicas ...*sql.DB) *DBResolver {
	if lb == nil {
		lb = &RoundRobinLoadBalancer{}
	}
	return &DBResolver{primary: primary, replicas: replicas, lb: lb}
}

// Primary returns the primary database connection.
func (r *DBResolver) Primary() *sql.DB {
	return r.primary
}

// Replica returns a replica chosen by the balancer, or the primary when no
// replicas are configured.
func (r *DBResolver) Replica() *sql.DB {
	if len(r.replicas) == 0 {
		return r.primary
	}
	return r.lb.Next(r.replicas)
}

// ReplicaAt returns a specific replica by index, or nil if out of range.
func (r *DBResolver) ReplicaAt(index int) *sql.DB {
	if index < 0 || index >= len(r.replicas) {
		return nil
	}
	return r.replicas[index]
}

// HasReplicas returns true if replicas are configured.
func (r *DBResolver) HasReplicas() bool {
	return len(r.replicas) > 0
}

func (r *DBResolver) all() []*sql.DB {
	return append([]*sql.DB{r.primary}, r.replicas...)
}
