package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterAndConnectionsFor(t *testing.T) {
	r := NewRegistry()

	r.Register("s1", "c1")
	r.Register("s1", "c2")
	r.Register("s2", "c3")

	assert.ElementsMatch(t, []string{"c1", "c2"}, r.ConnectionsFor("s1"),
		"expected both connections for subject s1")
	assert.ElementsMatch(t, []string{"c3"}, r.ConnectionsFor("s2"))
	assert.True(t, r.IsOnline("s1"))
	assert.True(t, r.IsOnline("s2"))
}

func TestRegisterSameConnectionTwice(t *testing.T) {
	r := NewRegistry()

	r.Register("s1", "c1")
	r.Register("s1", "c1")

	assert.Len(t, r.ConnectionsFor("s1"), 1, "re-registering a connection must not duplicate it")
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()

	r.Register("s1", "c1")
	r.Register("s1", "c2")

	r.Unregister("s1", "c1")
	assert.ElementsMatch(t, []string{"c2"}, r.ConnectionsFor("s1"),
		"expected remaining connection after partial unregister")
	assert.True(t, r.IsOnline("s1"), "subject with one connection left is still online")

	r.Unregister("s1", "c2")
	assert.Empty(t, r.ConnectionsFor("s1"), "expected no connections after last unregister")
	assert.False(t, r.IsOnline("s1"), "subject with no connections is offline")
}

func TestUnregisterAbsentPairIsNoop(t *testing.T) {
	r := NewRegistry()

	assert.NotPanics(t, func() {
		r.Unregister("unknown", "c1")
	}, "unregistering an absent subject must be a no-op")

	r.Register("s1", "c1")
	assert.NotPanics(t, func() {
		r.Unregister("s1", "c-other")
	}, "unregistering an absent connection must be a no-op")
	assert.ElementsMatch(t, []string{"c1"}, r.ConnectionsFor("s1"))
}

func TestConnectionsForReturnsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Register("s1", "c1")

	snapshot := r.ConnectionsFor("s1")
	snapshot[0] = "mutated"

	assert.ElementsMatch(t, []string{"c1"}, r.ConnectionsFor("s1"),
		"mutating a returned snapshot must not affect the registry")
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			connId := fmt.Sprintf("c%d", n)
			r.Register("s1", connId)
			r.ConnectionsFor("s1")
			r.Unregister("s1", connId)
		}(i)
	}
	wg.Wait()

	assert.False(t, r.IsOnline("s1"), "expected subject offline after all goroutines unregistered")
}
