package decision

import "time"

/*
UrlDecisionOrchestrator - produces a Decision for every candidate URL
before it may enter the frontier or be fetched. Evaluation order is
fixed (syntax, policy, state, resource, cache); the first failing
check wins.
*/

// Action is what the caller should do with a URL after Decide.
type Action string

const (
	ActionFetch  Action = "fetch"
	ActionCache  Action = "cache"
	ActionSkip   Action = "skip"
	ActionDefer  Action = "defer"
	ActionQueue  Action = "queue"
)

// Decision is the structured, never-throwing result of Decide.
type Decision struct {
	Action      Action
	Reason      string
	Details     map[string]any
	RetryAfter  time.Duration
	CachedData  []byte
}

// Candidate is everything Decide needs about one URL to evaluate it.
type Candidate struct {
	URL          string
	Host         string
	Path         string
	HasQuery     bool
	Depth        int
	Referrer     string
	ForceRecheck bool
}

// Params holds every threshold the evaluation order references, with
// the spec's stated defaults.
type Params struct {
	StayOnDomain       bool
	StartHost          string
	MaxDepth           int
	BlockedExtensions  map[string]struct{}
	SkipQueryUrls      bool
	RespectRobots      bool
	UserAgent          string
	MaxPages           int
	DefaultRetryAfter  time.Duration
	CacheFreshness     time.Duration
	CacheCapacity      int
	CacheTTL           time.Duration
}

// DefaultParams mirrors the spec's stated defaults verbatim.
func DefaultParams(startHost, userAgent string) Params {
	return Params{
		StayOnDomain:      true,
		StartHost:         startHost,
		MaxDepth:          5,
		BlockedExtensions: defaultBlockedExtensions(),
		SkipQueryUrls:     false,
		RespectRobots:     true,
		UserAgent:         userAgent,
		MaxPages:          0,
		DefaultRetryAfter: 5 * time.Second,
		CacheFreshness:    24 * time.Hour,
		CacheCapacity:     50_000,
		CacheTTL:          5 * time.Minute,
	}
}

func defaultBlockedExtensions() map[string]struct{} {
	exts := []string{".pdf", ".jpg", ".png", ".gif", ".zip", ".mp4", ".mp3"}
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		m[e] = struct{}{}
	}
	return m
}

// cacheEntry is one bounded-LRU slot: the cached Decision plus when it
// was produced, for TTL expiry.
type cacheEntry struct {
	key      string
	decision Decision
	cachedAt time.Time
}
