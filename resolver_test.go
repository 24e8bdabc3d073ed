package ormion

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundRobinLoadBalancer(t *testing.T) {
	lb := &RoundRobinLoadBalancer{}
	replicas := []*sql.DB{{}, {}, {}}

	selected := make(map[*sql.DB]int)
	for i := 0; i < 9; i++ {
		selected[lb.Next(replicas)]++
	}

	for _, db := range replicas {
		assert.Equal(t, 3, selected[db])
	}
}

func TestRoundRobinLoadBalancer_SingleReplica(t *testing.T) {
	lb := &RoundRobinLoadBalancer{}
	replicas := []*sql.DB{{}}

	for i := 0; i < 10; i++ {
		assert.Same(t, replicas[0], lb.Next(replicas))
	}
}

func TestRoundRobinLoadBalancer_EmptyReplicas(t *testing.T) {
	assert.Nil(t, (&RoundRobinLoadBalancer{}).Next(nil))
	assert.Nil(t, RandomLoadBalancer{}.Next(nil))
}

func TestRandomLoadBalancer_PicksFromPool(t *testing.T) {
	replicas := []*sql.DB{{}, {}}
	for i := 0; i < 20; i++ {
		got := RandomLoadBalancer{}.Next(replicas)
		assert.True(t, got == replicas[0] || got == replicas[1])
	}
}

func TestDBResolver_FallsBackToPrimary(t *testing.T) {
	primary := &sql.DB{}
	r := NewDBResolver(primary, nil)

	assert.Same(t, primary, r.Primary())
	assert.Same(t, primary, r.Replica())
	assert.False(t, r.HasReplicas())
	assert.Nil(t, r.ReplicaAt(0))
}

func TestDBResolver_Replicas(t *testing.T) {
	primary, r1, r2 := &sql.DB{}, &sql.DB{}, &sql.DB{}
	r := NewDBResolver(primary, nil, r1, r2)

	assert.True(t, r.HasReplicas())
	assert.Same(t, r1, r.Replica())
	assert.Same(t, r2, r.Replica())
	assert.Same(t, r1, r.Replica())
	assert.Same(t, r2, r.ReplicaAt(1))
	assert.Nil(t, r.ReplicaAt(2))
	assert.Len(t, r.all(), 3)
}
