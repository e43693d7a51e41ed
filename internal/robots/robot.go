package robots

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/internal/robots/cache"
)

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.
*/

// Robot is the scheduler's view of robots.txt enforcement: decide whether a
// URL may be crawled by this user agent.
type Robot interface {
	Init(userAgent string)
	Decide(target url.URL) (Decision, *RobotsError)
}

// CachedRobot is the default Robot implementation. It fetches robots.txt
// through a RobotsFetcher (which itself caches the raw HTTP response for
// the crawl's duration) and evaluates allow/disallow rules per request.
type CachedRobot struct {
	sink      metadata.MetadataSink
	userAgent string
	fetcher   *RobotsFetcher
}

// NewCachedRobot constructs a CachedRobot bound to sink. Call Init or
// InitWithCache before Decide.
func NewCachedRobot(sink metadata.MetadataSink) CachedRobot {
	return CachedRobot{sink: sink}
}

// Init prepares the robot with userAgent and an in-memory robots.txt cache.
func (r *CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithCache prepares the robot with userAgent and a caller-supplied
// robots.txt response cache.
func (r *CachedRobot) InitWithCache(userAgent string, robotsCache cache.Cache) {
	r.userAgent = userAgent
	r.fetcher = NewRobotsFetcher(r.sink, userAgent, robotsCache)
}

// Decide fetches (or reuses the cached) robots.txt for target's host and
// reports whether target may be crawled by this robot's user agent.
func (r CachedRobot) Decide(target url.URL) (Decision, *RobotsError) {
	scheme := target.Scheme
	if scheme == "" {
		scheme = "https"
	}
	hostname := target.Host

	result, fetchErr := r.fetcher.Fetch(context.Background(), scheme, hostname)
	if fetchErr != nil {
		if r.sink != nil {
			r.sink.RecordError(
				time.Now(),
				"robots",
				"Decide",
				mapRobotsErrorToMetadataCause(fetchErr),
				fetchErr.Error(),
				[]metadata.Attribute{
					metadata.NewAttr(metadata.AttrHost, hostname),
				},
			)
		}
		return Decision{}, fetchErr
	}

	rs := MapResponseToRuleSet(result.Response, r.userAgent, result.FetchedAt)

	decision := Decision{Url: target}

	switch {
	case !rs.hasGroups:
		decision.Allowed = true
		decision.Reason = EmptyRuleSet
	case !rs.matchedGroup:
		decision.Allowed = true
		decision.Reason = NoMatchingRules
	default:
		allowed, matched := evaluateRules(target.Path, rs.allowRules, rs.disallowRules)
		decision.Allowed = allowed
		switch {
		case !matched:
			decision.Reason = NoMatchingRules
		case allowed:
			decision.Reason = AllowedByRobots
		default:
			decision.Reason = DisallowedByRobots
		}
	}

	if rs.crawlDelay != nil {
		decision.CrawlDelay = *rs.crawlDelay
	}

	return decision, nil
}

// ruleMatch tracks the most specific (longest pattern) rule seen so far
// while scanning allow/disallow rules for a path.
type ruleMatch struct {
	length  int
	allowed bool
}

// evaluateRules picks the longest matching pattern among allows and
// disallows for path, per the standard robots.txt longest-match
// precedence (ties favor allow). matched is false when nothing matches,
// in which case the caller should treat the URL as allowed.
func evaluateRules(path string, allows, disallows []pathRule) (allowed bool, matched bool) {
	var best *ruleMatch

	consider := func(pattern string, isAllow bool) {
		if !matchesPattern(path, pattern) {
			return
		}
		length := len(pattern)
		if best == nil || length > best.length || (length == best.length && isAllow && !best.allowed) {
			best = &ruleMatch{length: length, allowed: isAllow}
		}
	}

	for _, a := range allows {
		consider(a.prefix, true)
	}
	for _, d := range disallows {
		consider(d.prefix, false)
	}

	if best == nil {
		return true, false
	}
	return best.allowed, true
}

// matchesPattern reports whether path matches a robots.txt pattern. "*"
// matches any run of characters; a trailing "$" anchors the match to the
// end of path. Patterns without "$" only need to match a leading portion
// of path.
func matchesPattern(path, pattern string) bool {
	if pattern == "" {
		return false
	}

	anchored := strings.HasSuffix(pattern, "$")
	if anchored {
		pattern = strings.TrimSuffix(pattern, "$")
	}

	segments := strings.Split(pattern, "*")
	pos := 0
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		idx := strings.Index(path[pos:], segment)
		if idx == -1 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(segment)
	}

	if anchored && pos != len(path) {
		return false
	}
	return true
}
