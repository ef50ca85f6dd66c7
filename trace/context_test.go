package trace

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoot(t *testing.T) {
	sc := NewRoot()

	assert.True(t, sc.IsValid())
	assert.True(t, sc.Sampled)
	assert.False(t, sc.HasParent())
	assert.False(t, sc.Remote)
}

func TestChildOf(t *testing.T) {
	t.Run("preserves trace ID and baggage", func(t *testing.T) {
		root := NewRoot().WithBaggage("tenant", "acme", "region", "eu")
		child := ChildOf(root)

		assert.Equal(t, root.TraceID, child.TraceID)
		assert.Equal(t, "acme", child.BaggageValue("tenant"))
		assert.Equal(t, "eu", child.BaggageValue("region"))
		assert.Equal(t, root.SpanID, child.ParentSpanID)
		assert.NotEqual(t, root.SpanID, child.SpanID)
		assert.Equal(t, root.Sampled, child.Sampled)
	})

	t.Run("invalid parent starts a new root", func(t *testing.T) {
		child := ChildOf(Empty())

		assert.True(t, child.IsValid())
		assert.False(t, child.HasParent())
	})

	t.Run("span IDs are unique within a trace", func(t *testing.T) {
		root := NewRoot()
		seen := map[string]bool{root.SpanID.String(): true}
		for i := 0; i < 1000; i++ {
			child := ChildOf(root)
			id := child.SpanID.String()
			require.False(t, seen[id], "duplicate span ID %s", id)
			seen[id] = true
		}
	})
}

func TestChildOfConcurrent(t *testing.T) {
	root := NewRoot()
	const flows = 32
	const perFlow = 100

	var mu sync.Mutex
	seen := make(map[string]bool, flows*perFlow)

	var wg sync.WaitGroup
	for i := 0; i < flows; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perFlow; j++ {
				child := ChildOf(root)
				mu.Lock()
				seen[child.SpanID.String()] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, flows*perFlow)
}

func TestWithBaggage(t *testing.T) {
	t.Run("derivation does not mutate the original", func(t *testing.T) {
		original := NewRoot()
		derived := original.WithBaggage("key", "value")

		assert.Equal(t, "", original.BaggageValue("key"))
		assert.Equal(t, "value", derived.BaggageValue("key"))
	})

	t.Run("invalid members are skipped", func(t *testing.T) {
		sc := NewRoot().WithBaggage("", "no-key", "ok", "yes")

		assert.Equal(t, "yes", sc.BaggageValue("ok"))
	})

	t.Run("odd trailing pair is ignored", func(t *testing.T) {
		sc := NewRoot().WithBaggage("a", "1", "dangling")

		assert.Equal(t, "1", sc.BaggageValue("a"))
		assert.Equal(t, "", sc.BaggageValue("dangling"))
	})
}

func TestIDGeneration(t *testing.T) {
	assert.True(t, NewTraceID().IsValid())
	assert.True(t, NewSpanID().IsValid())
	assert.NotEqual(t, NewTraceID(), NewTraceID())
}
