package calls

import (
	"container/list"
	"sync"
	"time"
)

// SeenSet remembers transaction ids already processed by one session.
type SeenSet interface {
	// MarkIfNew records id and reports true if it was not already present.
	// Check and mark happen atomically.
	MarkIfNew(id string) bool
	// Forget removes id so a later delivery is processed again.
	Forget(id string)
	Len() int
}

// MemorySeenSet grows without bound. Suitable for short-lived sessions only.
type MemorySeenSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewMemorySeenSet() *MemorySeenSet {
	return &MemorySeenSet{ids: make(map[string]struct{})}
}

func (s *MemorySeenSet) MarkIfNew(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *MemorySeenSet) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

func (s *MemorySeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// BoundedSeenSet keeps at most capacity ids, evicting the least recently marked one,
// and forgets ids older than ttl. An evicted id is treated as new on its next delivery,
// so capacity and ttl must cover the window in which duplicates are expected.
type BoundedSeenSet struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List
	nowFn    func() time.Time
}

type seenEntry struct {
	id        string
	expiresAt time.Time
}

// NewBoundedSeenSet returns a seen-set holding at most capacity ids.
// A ttl <= 0 disables expiry.
func NewBoundedSeenSet(capacity int, ttl time.Duration) *BoundedSeenSet {
	if capacity <= 0 {
		capacity = 1
	}
	return &BoundedSeenSet{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		nowFn:    time.Now,
	}
}

func (s *BoundedSeenSet) MarkIfNew(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	if elem, ok := s.items[id]; ok {
		e := elem.Value.(*seenEntry)
		if !s.expired(e, now) {
			return false
		}
		s.remove(elem)
	}

	for s.order.Len() >= s.capacity {
		s.remove(s.order.Back())
	}

	e := &seenEntry{id: id}
	if s.ttl > 0 {
		e.expiresAt = now.Add(s.ttl)
	}
	s.items[id] = s.order.PushFront(e)
	return true
}

func (s *BoundedSeenSet) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[id]; ok {
		s.remove(elem)
	}
}

// Len includes expired ids that have not been evicted yet.
func (s *BoundedSeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *BoundedSeenSet) expired(e *seenEntry, now time.Time) bool {
	return s.ttl > 0 && now.After(e.expiresAt)
}

func (s *BoundedSeenSet) remove(elem *list.Element) {
	s.order.Remove(elem)
	delete(s.items, elem.Value.(*seenEntry).id)
}
