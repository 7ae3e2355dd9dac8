package refresh

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestConsumeClears(t *testing.T) {
	c := NewCoordinator()
	if c.ConsumeCommunityNeedsRefresh() {
		t.Fatal("fresh coordinator reported community dirty")
	}

	c.MarkCommunityNeedsRefresh()
	if !c.Peek(FlagCommunity) {
		t.Fatal("Peek after Mark = false")
	}
	if !c.ConsumeCommunityNeedsRefresh() {
		t.Fatal("first Consume after Mark = false")
	}
	if c.ConsumeCommunityNeedsRefresh() {
		t.Fatal("second Consume = true")
	}
}

func TestFlagsAreIndependent(t *testing.T) {
	c := NewCoordinator()
	c.MarkProfileNeedsRefresh()
	if c.ConsumeCommunityNeedsRefresh() {
		t.Fatal("profile mark leaked into community")
	}
	if !c.ConsumeProfileNeedsRefresh() {
		t.Fatal("profile flag lost")
	}

	custom := Flag("courses")
	c.Mark(custom)
	if !c.Consume(custom) {
		t.Fatal("custom flag lost")
	}
}

func TestMarkIsIdempotent(t *testing.T) {
	c := NewCoordinator()
	c.MarkCommunityNeedsRefresh()
	c.MarkCommunityNeedsRefresh()
	if !c.ConsumeCommunityNeedsRefresh() || c.ConsumeCommunityNeedsRefresh() {
		t.Fatal("double mark must be consumed exactly once")
	}
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	for round := 0; round < 50; round++ {
		c := NewCoordinator()
		c.MarkCommunityNeedsRefresh()

		const n = 16
		var wins atomic.Int64
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				if c.ConsumeCommunityNeedsRefresh() {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Fatalf("round %d: %d winners, want 1", round, wins.Load())
		}
	}
}

func TestWatchPublishesTransitions(t *testing.T) {
	c := NewCoordinator()

	type transition struct {
		flag Flag
		set  bool
	}
	var got []transition
	cancel := c.Watch(func(f Flag, v bool) { got = append(got, transition{f, v}) })

	c.MarkProfileNeedsRefresh()
	c.MarkProfileNeedsRefresh()
	c.ConsumeProfileNeedsRefresh()
	c.ConsumeProfileNeedsRefresh()
	c.MarkCommunityNeedsRefresh()

	want := []transition{{FlagProfile, true}, {FlagProfile, false}, {FlagCommunity, true}}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transition %d = %v, want %v", i, got[i], want[i])
		}
	}

	cancel()
	cancel()
	c.ConsumeCommunityNeedsRefresh()
	if len(got) != len(want) {
		t.Fatal("watcher called after cancel")
	}
}
