package pipeline

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/prdbuilder/internal/llm"
	"github.com/dgallion1/prdbuilder/internal/markdown"
	"github.com/dgallion1/prdbuilder/internal/stream"
)

// Generation tracks one PRD generation and owns its streaming session.
type Generation struct {
	ID          string
	ProductName string
	Attachments []string
	CreatedAt   time.Time
	Session     *stream.Session

	mu        sync.Mutex
	updatedAt time.Time
	attempts  int
	usage     llm.Usage
}

// NewGeneration creates an idle generation with a fresh ID.
func NewGeneration(productName string, attachments []string, timeout time.Duration) *Generation {
	now := time.Now()
	return &Generation{
		ID:          uuid.NewString(),
		ProductName: productName,
		Attachments: attachments,
		CreatedAt:   now,
		Session:     stream.NewSession(timeout),
		updatedAt:   now,
	}
}

// Touch marks the generation as recently used.
func (g *Generation) Touch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updatedAt = time.Now()
}

func (g *Generation) recordAttempt() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts++
	g.updatedAt = time.Now()
}

func (g *Generation) setUsage(u llm.Usage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usage = u
	g.updatedAt = time.Now()
}

// GenerationSnapshot is a read-only, JSON-safe copy of generation state.
type GenerationSnapshot struct {
	ID          string           `json:"generation_id"`
	ProductName string           `json:"product_name"`
	Attachments []string         `json:"attachments"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Attempts    int              `json:"attempts"`
	Usage       llm.Usage        `json:"usage"`
	Session     stream.Snapshot  `json:"session"`
	Stats       markdown.Stats   `json:"stats"`
	Blocks      []markdown.Block `json:"blocks,omitempty"`
}

// Snapshot returns a JSON-safe copy of the generation state. Blocks are
// included only when withBlocks is set.
func (g *Generation) Snapshot(withBlocks bool) GenerationSnapshot {
	sess := g.Session.Snapshot()

	g.mu.Lock()
	defer g.mu.Unlock()
	atts := g.Attachments
	if atts == nil {
		atts = []string{}
	}
	snap := GenerationSnapshot{
		ID:          g.ID,
		ProductName: g.ProductName,
		Attachments: slices.Clone(atts),
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.updatedAt,
		Attempts:    g.attempts,
		Usage:       g.usage,
		Session:     sess,
		Stats:       markdown.ComputeStats(sess.Text),
	}
	if withBlocks {
		snap.Blocks = markdown.Parse(sess.Text)
	}
	return snap
}

func (g *Generation) lastUpdate() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.updatedAt
}

// Store is a thread-safe in-memory generation registry with TTL eviction.
type Store struct {
	mu   sync.Mutex
	gens map[string]*Generation
	ttl  time.Duration
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		gens: make(map[string]*Generation),
		ttl:  ttl,
	}
}

func (s *Store) Put(g *Generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[g.ID] = g
}

func (s *Store) Get(id string) *Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[id]
}

// Delete removes a generation, cancelling it if it is still streaming.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	g, ok := s.gens[id]
	delete(s.gens, id)
	s.mu.Unlock()
	if ok {
		g.Session.Cancel()
	}
	return ok
}

// All returns every registered generation.
func (s *Store) All() []*Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Generation, 0, len(s.gens))
	for _, g := range s.gens {
		out = append(out, g)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gens)
}

// Cleanup removes expired generations. Active ones are kept.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, g := range s.gens {
		if g.Session.Active() {
			continue
		}
		if now.Sub(g.lastUpdate()) > s.ttl {
			delete(s.gens, id)
			removed++
		}
	}
	return removed
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
