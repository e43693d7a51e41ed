package crawlloop

import (
	"net/url"
	"time"
)

// InitStageStatus is one init-phase stage's outcome.
type InitStageStatus string

const (
	InitStatusStarted   InitStageStatus = "started"
	InitStatusCompleted InitStageStatus = "completed"
	InitStatusSkipped   InitStageStatus = "skipped"
	InitStatusFailed    InitStageStatus = "failed"
)

type InitStageReport struct {
	Name       string
	Status     InitStageStatus
	DurationMs int64
	Message    string
}

// Params configures one CrawlLoop run. StartURL and StayOnDomain feed
// decision.Params; ConcurrentWorkers sizes the worker pool.
type Params struct {
	StartURL          url.URL
	UserAgent         string
	ConcurrentWorkers int
	MaxPages          int
	MaxDepth          int
	StayOnDomain      bool
	RespectRobots     bool
	SkipQueryUrls     bool
	ProgressEvery     time.Duration
	ProgressEveryN    int
}

func DefaultParams(startURL url.URL) Params {
	return Params{
		StartURL:          startURL,
		UserAgent:         "newscrawl/1.0",
		ConcurrentWorkers: 4,
		MaxPages:          10000,
		MaxDepth:          5,
		StayOnDomain:      true,
		RespectRobots:     true,
		ProgressEvery:     5 * time.Second,
		ProgressEveryN:    50,
	}
}

// RunResult summarizes a finished CrawlLoop run.
type RunResult struct {
	InitStages []InitStageReport
	Aborted    bool
}
