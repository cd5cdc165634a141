package room

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"edujam/pkg/types"
)

func TestGroup_CapacityLimit(t *testing.T) {
	g := NewGroup("g1", GroupConfig{Name: "Algebra", Subject: "Math", MaxParticipants: 2})

	assert.True(t, g.AddParticipant("alice"))
	assert.True(t, g.AddParticipant("bob"))
	assert.True(t, g.Info().Full)

	assert.False(t, g.AddParticipant("carol"), "third distinct user must be rejected")
	assert.Equal(t, 2, g.Info().CurrentParticipants)
	assert.False(t, g.HasParticipant("carol"))
}

func TestGroup_ReAddExistingWhenFull(t *testing.T) {
	g := NewGroup("g1", GroupConfig{MaxParticipants: 1})

	assert.True(t, g.AddParticipant("alice"))
	assert.True(t, g.AddParticipant("alice"), "existing member is not a capacity violation")
	assert.Equal(t, 1, g.Info().CurrentParticipants)
}

func TestGroup_RemoveParticipant(t *testing.T) {
	g := NewGroup("g1", GroupConfig{})
	g.AddParticipant("alice")

	assert.True(t, g.RemoveParticipant("alice"))
	assert.False(t, g.RemoveParticipant("alice"))
	assert.Empty(t, g.Info().ParticipantIDs)
}

func TestGroup_DefaultMaxParticipants(t *testing.T) {
	g := NewGroup("g1", GroupConfig{})
	assert.Equal(t, types.DefaultMaxParticipants, g.Info().MaxParticipants)
}

func TestGroup_InfoPreservesJoinOrder(t *testing.T) {
	g := NewGroup("g1", GroupConfig{Name: "Physics", Subject: "Science", BoardID: "b9", CreatorID: "alice"})
	g.AddParticipant("alice")
	g.AddParticipant("bob")
	g.AddParticipant("carol")
	g.RemoveParticipant("bob")

	info := g.Info()
	assert.Equal(t, []string{"alice", "carol"}, info.ParticipantIDs)
	assert.Equal(t, 2, info.CurrentParticipants)
	assert.Equal(t, "b9", info.BoardID)
	assert.True(t, info.Active)
	assert.False(t, info.Full)
}

func TestGroup_ConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	g := NewGroup("g1", GroupConfig{MaxParticipants: 5})
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if g.AddParticipant(fmt.Sprintf("user-%d", i)) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, accepted)
	assert.Equal(t, 5, g.Info().CurrentParticipants)
}
