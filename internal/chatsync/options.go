package chatsync

import "time"

type Options struct {
	// Debounce coalesces remote pushes for one session inside this window.
	Debounce   time.Duration
	RetryDelay time.Duration
	MaxRetries int
	// DedupWindow bounds the title heuristic for cross-device duplicates; <= 0 disables it.
	DedupWindow time.Duration
	// FlushInterval drives the periodic outbox reconcile once started; <= 0 disables it.
	FlushInterval time.Duration
	// LoadConcurrency bounds parallel message fetches during a full load.
	LoadConcurrency int
}

func DefaultOptions() Options {
	return Options{
		Debounce:        time.Second,
		RetryDelay:      time.Second,
		MaxRetries:      3,
		DedupWindow:     2 * time.Minute,
		FlushInterval:   30 * time.Second,
		LoadConcurrency: 8,
	}
}

func (o Options) normalized() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Debounce < 0 {
		o.Debounce = 0
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.LoadConcurrency <= 0 {
		o.LoadConcurrency = 8
	}
	return o
}
