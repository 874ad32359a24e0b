// Package blackboard provides the shared scratch space stage collaborators
// post observations to, and a lightweight entity-relation graph used for
// narrative consistency checks.
package blackboard

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrTopicRequired indicates a post without a topic.
	ErrTopicRequired = errors.New("topic is required")
	// ErrEntityExists indicates a duplicate entity registration.
	ErrEntityExists = errors.New("entity already registered")
	// ErrEntityNotFound indicates a link to an unregistered entity.
	ErrEntityNotFound = errors.New("entity not found")
)

// DefaultMaxHistory bounds per-topic retention.
const DefaultMaxHistory = 50

// Note is one posted observation.
type Note struct {
	Topic    string    `json:"topic"`
	Author   string    `json:"author"`
	Body     string    `json:"body"`
	PostedAt time.Time `json:"posted_at"`
}

// Board is a topic-keyed note store with bounded history per topic.
// Safe for concurrent use.
type Board struct {
	mu         sync.Mutex
	topics     map[string][]Note
	maxHistory int
	now        func() time.Time
}

// NewBoard returns an empty board with default retention.
func NewBoard() *Board {
	return &Board{
		topics:     make(map[string][]Note),
		maxHistory: DefaultMaxHistory,
		now:        time.Now,
	}
}

// Post appends a note under topic, trimming the oldest entries past the
// retention bound.
func (b *Board) Post(topic, author, body string) error {
	if topic == "" {
		return ErrTopicRequired
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	notes := append(b.topics[topic], Note{
		Topic:    topic,
		Author:   author,
		Body:     body,
		PostedAt: b.now().UTC(),
	})
	if len(notes) > b.maxHistory {
		notes = notes[len(notes)-b.maxHistory:]
	}
	b.topics[topic] = notes
	return nil
}

// ByTopic returns the retained notes for a topic, oldest first.
func (b *Board) ByTopic(topic string) []Note {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Note(nil), b.topics[topic]...)
}

// Recent returns the newest n notes across all topics, oldest first.
func (b *Board) Recent(n int) []Note {
	b.mu.Lock()
	defer b.mu.Unlock()
	var all []Note
	for _, notes := range b.topics {
		all = append(all, notes...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].PostedAt.Before(all[j].PostedAt)
	})
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Entity is one tracked narrative actor, place, or object.
type Entity struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// Link is one directed relation between two entities.
type Link struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

// Graph tracks entities and their relations for consistency checks.
// Safe for concurrent use.
type Graph struct {
	mu       sync.Mutex
	entities map[string]Entity
	links    []Link
}

// NewGraph returns an empty entity graph.
func NewGraph() *Graph {
	return &Graph{entities: make(map[string]Entity)}
}

// AddEntity registers a new entity.
func (g *Graph) AddEntity(entity Entity) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.entities[entity.ID]; ok {
		return ErrEntityExists
	}
	g.entities[entity.ID] = entity
	return nil
}

// AddLink records a directed relation. Both endpoints must be registered.
func (g *Graph) AddLink(from, to, relation string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.entities[from]; !ok {
		return ErrEntityNotFound
	}
	if _, ok := g.entities[to]; !ok {
		return ErrEntityNotFound
	}
	g.links = append(g.links, Link{From: from, To: to, Relation: relation})
	return nil
}

// Connected returns the ids reachable from id in one hop, in insertion
// order without duplicates.
func (g *Graph) Connected(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, link := range g.links {
		if link.From == id && !seen[link.To] {
			seen[link.To] = true
			out = append(out, link.To)
		}
	}
	return out
}

// CheckConsistency reports relations whose endpoints have since become
// unknown. An empty result means the graph is internally consistent.
func (g *Graph) CheckConsistency() []Link {
	g.mu.Lock()
	defer g.mu.Unlock()
	var broken []Link
	for _, link := range g.links {
		_, fromOK := g.entities[link.From]
		_, toOK := g.entities[link.To]
		if !fromOK || !toOK {
			broken = append(broken, link)
		}
	}
	return broken
}

// RemoveEntity drops an entity while keeping its links for later
// consistency reporting.
func (g *Graph) RemoveEntity(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entities, id)
}
