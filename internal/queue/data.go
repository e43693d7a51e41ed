package queue

import "time"

/*
QueueManager - a priority queue of QueueEntry plus a deferred ring for
entries waiting out a throttle delay and per-domain in-flight quotas.
*/

// Entry is one URL candidate for fetching.
type Entry struct {
	URL          string
	Host         string
	Depth        int
	Priority     int
	DiscoveredAt time.Time
	Referrer     string
}

// Params configures per-domain concurrency limits.
type Params struct {
	MaxInFlightPerDomain int
	// AgingBonus is added to an entry's effective priority each time
	// next() passes over it because its host is at quota, so it is not
	// starved indefinitely by a consistently busy host.
	AgingBonus int
}

func DefaultParams() Params {
	return Params{
		MaxInFlightPerDomain: 2,
		AgingBonus:           1,
	}
}

// node is one live-heap slot: the entry plus the aging bonus accrued
// each time next() passes over it for quota reasons.
type node struct {
	entry      Entry
	agingBonus int
	heapIndex  int
}

// deferredNode is one entry waiting in the defer ring until readyAt.
type deferredNode struct {
	entry   Entry
	readyAt time.Time
}
