package blackboard

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPostTrimsHistory(t *testing.T) {
	b := NewBoard()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	tick := 0
	b.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 0; i < DefaultMaxHistory+10; i++ {
		if err := b.Post("pacing", "director", fmt.Sprintf("note %d", i)); err != nil {
			t.Fatalf("Post returned error: %v", err)
		}
	}
	notes := b.ByTopic("pacing")
	if len(notes) != DefaultMaxHistory {
		t.Fatalf("expected %d retained notes, got %d", DefaultMaxHistory, len(notes))
	}
	if notes[0].Body != "note 10" {
		t.Fatalf("expected oldest retained note 10, got %q", notes[0].Body)
	}
}

func TestPostRequiresTopic(t *testing.T) {
	b := NewBoard()
	if err := b.Post("", "judge", "missing topic"); !errors.Is(err, ErrTopicRequired) {
		t.Fatalf("error = %v, want %v", err, ErrTopicRequired)
	}
}

func TestRecentOrdersAcrossTopics(t *testing.T) {
	b := NewBoard()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	tick := 0
	b.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	b.Post("combat", "resolver", "first")
	b.Post("pacing", "director", "second")
	b.Post("combat", "resolver", "third")

	recent := b.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(recent))
	}
	if recent[0].Body != "second" || recent[1].Body != "third" {
		t.Fatalf("unexpected order: %+v", recent)
	}
}

func TestGraphLinksRequireRegisteredEntities(t *testing.T) {
	g := NewGraph()
	if err := g.AddEntity(Entity{ID: "pc_1", Kind: "player", Name: "Iris"}); err != nil {
		t.Fatalf("AddEntity returned error: %v", err)
	}
	if err := g.AddEntity(Entity{ID: "pc_1"}); !errors.Is(err, ErrEntityExists) {
		t.Fatalf("error = %v, want %v", err, ErrEntityExists)
	}
	if err := g.AddLink("pc_1", "loc_1", "at"); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("error = %v, want %v", err, ErrEntityNotFound)
	}

	if err := g.AddEntity(Entity{ID: "loc_1", Kind: "location", Name: "Gatehouse"}); err != nil {
		t.Fatalf("AddEntity returned error: %v", err)
	}
	if err := g.AddLink("pc_1", "loc_1", "at"); err != nil {
		t.Fatalf("AddLink returned error: %v", err)
	}
	connected := g.Connected("pc_1")
	if len(connected) != 1 || connected[0] != "loc_1" {
		t.Fatalf("unexpected connections: %v", connected)
	}
}

func TestCheckConsistencyReportsDanglingLinks(t *testing.T) {
	g := NewGraph()
	g.AddEntity(Entity{ID: "pc_1"})
	g.AddEntity(Entity{ID: "npc_1"})
	g.AddLink("pc_1", "npc_1", "allied_with")

	if broken := g.CheckConsistency(); len(broken) != 0 {
		t.Fatalf("expected consistent graph, got %v", broken)
	}

	g.RemoveEntity("npc_1")
	broken := g.CheckConsistency()
	if len(broken) != 1 || broken[0].To != "npc_1" {
		t.Fatalf("expected one dangling link to npc_1, got %v", broken)
	}
}
