package queue

import (
	"container/heap"
	"sync"
	"time"
)

/*
Manager is the priority queue of Entry values QueueManager describes:
enqueue honors priority and promotes on re-enqueue of a higher
priority, next() skips hosts at their in-flight quota (aging the
skipped entries so they are not starved), defer() parks an entry until
a delay elapses, and per-domain in-flight counts are tracked
separately from the live heap so Next() can enforce quotas without
walking the whole queue on every call.
*/
type Manager struct {
	mu       sync.Mutex
	params   Params
	live     liveHeap
	index    map[string]*node
	deferred []*deferredNode
	inFlight map[string]int
}

func NewManager(params Params) *Manager {
	m := &Manager{
		params:   params,
		live:     liveHeap{},
		index:    make(map[string]*node),
		inFlight: make(map[string]int),
	}
	heap.Init(&m.live)
	return m
}

// Enqueue inserts entry, or promotes an existing entry for the same
// URL to the max of its current and the new priority.
func (m *Manager) Enqueue(entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.index[entry.URL]; ok {
		if entry.Priority > existing.entry.Priority {
			existing.entry.Priority = entry.Priority
			heap.Fix(&m.live, existing.heapIndex)
		}
		return
	}

	n := &node{entry: entry}
	heap.Push(&m.live, n)
	m.index[entry.URL] = n
}

// Next pops the highest-priority entry whose host has an in-flight
// slot available. Entries skipped because their host is at quota are
// aged and reinserted so they are not starved. Marks the winning
// entry's host as having one more in-flight request; callers must call
// Release when that fetch completes.
func (m *Manager) Next() (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var skipped []*node
	defer func() {
		for _, n := range skipped {
			heap.Push(&m.live, n)
		}
	}()

	for m.live.Len() > 0 {
		n := heap.Pop(&m.live).(*node)
		if m.inFlight[n.entry.Host] >= m.params.MaxInFlightPerDomain && m.params.MaxInFlightPerDomain > 0 {
			n.agingBonus += m.params.AgingBonus
			n.entry.Priority += m.params.AgingBonus
			skipped = append(skipped, n)
			continue
		}

		delete(m.index, n.entry.URL)
		m.inFlight[n.entry.Host]++
		return n.entry, true
	}

	return Entry{}, false
}

// Release drops host's in-flight count by one, called when a fetch
// for that host completes (success or failure).
func (m *Manager) Release(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inFlight[host] > 0 {
		m.inFlight[host]--
	}
}

// Defer parks entry in the defer ring until delay elapses; it is not
// visible to Next until PromoteReady moves it back into the live heap.
func (m *Manager) Defer(entry Entry, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deferred = append(m.deferred, &deferredNode{entry: entry, readyAt: time.Now().Add(delay)})
}

// PromoteReady moves every deferred entry whose delay has elapsed back
// into the live heap. Callers (CrawlLoop) poll this periodically.
func (m *Manager) PromoteReady(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := m.deferred[:0]
	promoted := 0
	for _, d := range m.deferred {
		if now.Before(d.readyAt) {
			remaining = append(remaining, d)
			continue
		}
		if _, exists := m.index[d.entry.URL]; !exists {
			n := &node{entry: d.entry}
			heap.Push(&m.live, n)
			m.index[d.entry.URL] = n
		}
		promoted++
	}
	m.deferred = remaining
	return promoted
}

// Size returns the number of entries in the live heap (not counting
// deferred entries).
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live.Len()
}

// SizeByDomain returns the number of live entries queued for host.
func (m *Manager) SizeByDomain(host string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, n := range m.live {
		if n.entry.Host == host {
			count++
		}
	}
	return count
}

// DeferredSize returns the number of entries currently parked in the
// defer ring.
func (m *Manager) DeferredSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deferred)
}

// liveHeap is a max-heap on (Priority, earlier DiscoveredAt wins ties)
// implementing container/heap.Interface over *node.
type liveHeap []*node

func (h liveHeap) Len() int { return len(h) }

func (h liveHeap) Less(i, j int) bool {
	if h[i].entry.Priority != h[j].entry.Priority {
		return h[i].entry.Priority > h[j].entry.Priority
	}
	return h[i].entry.DiscoveredAt.Before(h[j].entry.DiscoveredAt)
}

func (h liveHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *liveHeap) Push(x any) {
	n := x.(*node)
	n.heapIndex = len(*h)
	*h = append(*h, n)
}

func (h *liveHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
