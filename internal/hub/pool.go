package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/orchids/event-stream/internal/domain"
)

// Pool is the indexed registry of live connections and their sole owner.
// All three indexes (by id, by subject, by owner) mutate under one lock so
// a reader never observes a connection in a secondary index that is absent
// from the primary map.
type Pool struct {
	mu        sync.RWMutex
	maxSize   int
	byID      map[string]*domain.Connection
	bySubject map[string]map[string]struct{}
	byOwner   map[string]map[string]struct{}
}

func NewPool(maxSize int) *Pool {
	return &Pool{
		maxSize:   maxSize,
		byID:      make(map[string]*domain.Connection),
		bySubject: make(map[string]map[string]struct{}),
		byOwner:   make(map[string]map[string]struct{}),
	}
}

// Add registers a connection in all indexes. Returns false with no partial
// mutation when the pool is already at capacity.
func (p *Pool) Add(conn *domain.Connection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.byID) >= p.maxSize {
		return false
	}

	p.byID[conn.ID] = conn
	if conn.SubjectID != "" {
		ids, ok := p.bySubject[conn.SubjectID]
		if !ok {
			ids = make(map[string]struct{})
			p.bySubject[conn.SubjectID] = ids
		}
		ids[conn.ID] = struct{}{}
	}
	if conn.OwnerID != "" {
		ids, ok := p.byOwner[conn.OwnerID]
		if !ok {
			ids = make(map[string]struct{})
			p.byOwner[conn.OwnerID] = ids
		}
		ids[conn.ID] = struct{}{}
	}
	return true
}

// Remove drops a connection from every index. Idempotent: returns nil for
// ids that are not present.
func (p *Pool) Remove(id string) *domain.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, ok := p.byID[id]
	if !ok {
		return nil
	}

	delete(p.byID, id)
	conn.IsAlive = false

	if conn.SubjectID != "" {
		if ids, ok := p.bySubject[conn.SubjectID]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(p.bySubject, conn.SubjectID)
			}
		}
	}
	if conn.OwnerID != "" {
		if ids, ok := p.byOwner[conn.OwnerID]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(p.byOwner, conn.OwnerID)
			}
		}
	}
	return conn
}

func (p *Pool) ByID(id string) (*domain.Connection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.byID[id]
	return conn, ok
}

func (p *Pool) BySubject(subjectID string) []*domain.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*domain.Connection, 0, len(p.bySubject[subjectID]))
	for id := range p.bySubject[subjectID] {
		out = append(out, p.byID[id])
	}
	return out
}

func (p *Pool) ByOwner(ownerID string) []*domain.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*domain.Connection, 0, len(p.byOwner[ownerID]))
	for id := range p.byOwner[ownerID] {
		out = append(out, p.byID[id])
	}
	return out
}

func (p *Pool) All() []*domain.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*domain.Connection, 0, len(p.byID))
	for _, conn := range p.byID {
		out = append(out, conn)
	}
	return out
}

func (p *Pool) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.byID))
	for id := range p.byID {
		out = append(out, id)
	}
	return out
}

func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byID)
}

func (p *Pool) CountBySubject(subjectID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.bySubject[subjectID])
}

func (p *Pool) CountByOwner(ownerID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byOwner[ownerID])
}

func (p *Pool) MaxSize() int {
	return p.maxSize
}

// Touch refreshes a connection's heartbeat timestamp.
func (p *Pool) Touch(id string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, ok := p.byID[id]
	if !ok {
		return false
	}
	conn.Touch(now)
	return true
}

// Record appends a frame type to a connection's diagnostic ring.
func (p *Pool) Record(id, direction string, msgType domain.MessageType) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.byID[id]; ok {
		conn.RecordMessage(direction, msgType)
	}
}

// Snapshot copies a connection's status fields inside the pool's critical
// section, so callers never read the live Connection while Touch or Record
// mutate it.
func (p *Pool) Snapshot(id string) (domain.ConnectionStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conn, ok := p.byID[id]
	if !ok {
		return domain.ConnectionStatus{}, false
	}
	return domain.ConnectionStatus{
		ID:              conn.ID,
		SubjectID:       conn.SubjectID,
		OwnerID:         conn.OwnerID,
		CreatedAt:       conn.CreatedAt,
		LastHeartbeatAt: conn.LastHeartbeatAt,
		RecentMessages:  conn.RecentMessages(),
	}, true
}

// IdleIDs returns ids of connections idle longer than olderThan, sorted
// longest-idle first.
func (p *Pool) IdleIDs(now time.Time, olderThan time.Duration) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	type idle struct {
		id   string
		span time.Duration
	}
	idles := make([]idle, 0)
	for id, conn := range p.byID {
		if span := conn.IdleSince(now); span > olderThan {
			idles = append(idles, idle{id: id, span: span})
		}
	}
	sort.Slice(idles, func(i, j int) bool { return idles[i].span > idles[j].span })

	out := make([]string, len(idles))
	for i, e := range idles {
		out[i] = e.id
	}
	return out
}

// DeadIDs returns ids of connections flagged not-alive but still indexed.
// Remove flags and unindexes atomically, so this is empty unless a caller
// flipped IsAlive out of band; it exists for operator tooling, not the
// normal disconnect path.
func (p *Pool) DeadIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0)
	for id, conn := range p.byID {
		if !conn.IsAlive {
			out = append(out, id)
		}
	}
	return out
}
