package metrics

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

var (
	once          sync.Once
	globalMetrics *Metrics
)

// Metrics holds all application metrics
type Metrics struct {
	// Request metrics (using atomic)
	totalRequests  int64
	failedRequests int64 // requests answered with an error payload
	panics         int64

	// Like metrics
	likesAccepted  int64
	likesDuplicate int64

	// Upstream quote metrics
	quoteFetches  int64
	quoteFailures int64

	// Stream metrics
	activeSubscribers int64
	totalSubscribers  int64
	droppedEvents     int64

	// Response time metrics
	responseTimeSum   int64 // Sum in nanoseconds
	responseTimeCount int64
	maxResponseTime   int64

	startTime int64 // Unix timestamp
}

// Snapshot represents metrics at a point in time
type Snapshot struct {
	Uptime string `json:"uptime"`

	TotalRequests  int64 `json:"total_requests"`
	FailedRequests int64 `json:"failed_requests"`
	Panics         int64 `json:"panics"`

	LikesAccepted  int64 `json:"likes_accepted"`
	LikesDuplicate int64 `json:"likes_duplicate"`

	QuoteFetches  int64 `json:"quote_fetches"`
	QuoteFailures int64 `json:"quote_failures"`

	ActiveSubscribers int64 `json:"active_subscribers"`
	TotalSubscribers  int64 `json:"total_subscribers"`
	DroppedEvents     int64 `json:"dropped_events"`

	AvgResponseTime time.Duration `json:"avg_response_time_ns"`
	MaxResponseTime time.Duration `json:"max_response_time_ns"`

	Goroutines int `json:"goroutines"`
}

// New returns a fresh, independent metrics set.
func New() *Metrics {
	return &Metrics{startTime: time.Now().Unix()}
}

// GetMetrics returns the process-wide metrics instance
func GetMetrics() *Metrics {
	once.Do(func() {
		globalMetrics = New()
	})
	return globalMetrics
}

// RecordRequest records a served request and its duration
func (m *Metrics) RecordRequest(duration time.Duration) {
	atomic.AddInt64(&m.totalRequests, 1)

	durationNs := duration.Nanoseconds()
	atomic.AddInt64(&m.responseTimeSum, durationNs)
	atomic.AddInt64(&m.responseTimeCount, 1)

	for {
		current := atomic.LoadInt64(&m.maxResponseTime)
		if durationNs <= current || atomic.CompareAndSwapInt64(&m.maxResponseTime, current, durationNs) {
			break
		}
	}
}

func (m *Metrics) IncrementFailedRequest() { atomic.AddInt64(&m.failedRequests, 1) }

func (m *Metrics) IncrementPanic() { atomic.AddInt64(&m.panics, 1) }

// RecordLike records the outcome of a like registration.
func (m *Metrics) RecordLike(accepted bool) {
	if accepted {
		atomic.AddInt64(&m.likesAccepted, 1)
	} else {
		atomic.AddInt64(&m.likesDuplicate, 1)
	}
}

// RecordQuoteFetch records an upstream price lookup.
func (m *Metrics) RecordQuoteFetch(err error) {
	atomic.AddInt64(&m.quoteFetches, 1)
	if err != nil {
		atomic.AddInt64(&m.quoteFailures, 1)
	}
}

func (m *Metrics) IncrementSubscriber() {
	atomic.AddInt64(&m.activeSubscribers, 1)
	atomic.AddInt64(&m.totalSubscribers, 1)
}

func (m *Metrics) DecrementSubscriber() { atomic.AddInt64(&m.activeSubscribers, -1) }

func (m *Metrics) IncrementDroppedEvent() { atomic.AddInt64(&m.droppedEvents, 1) }

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() Snapshot {
	uptime := time.Since(time.Unix(atomic.LoadInt64(&m.startTime), 0))

	sum := atomic.LoadInt64(&m.responseTimeSum)
	count := atomic.LoadInt64(&m.responseTimeCount)
	var avg time.Duration
	if count > 0 {
		avg = time.Duration(sum / count)
	}

	return Snapshot{
		Uptime: uptime.Truncate(time.Second).String(),

		TotalRequests:  atomic.LoadInt64(&m.totalRequests),
		FailedRequests: atomic.LoadInt64(&m.failedRequests),
		Panics:         atomic.LoadInt64(&m.panics),

		LikesAccepted:  atomic.LoadInt64(&m.likesAccepted),
		LikesDuplicate: atomic.LoadInt64(&m.likesDuplicate),

		QuoteFetches:  atomic.LoadInt64(&m.quoteFetches),
		QuoteFailures: atomic.LoadInt64(&m.quoteFailures),

		ActiveSubscribers: atomic.LoadInt64(&m.activeSubscribers),
		TotalSubscribers:  atomic.LoadInt64(&m.totalSubscribers),
		DroppedEvents:     atomic.LoadInt64(&m.droppedEvents),

		AvgResponseTime: avg,
		MaxResponseTime: time.Duration(atomic.LoadInt64(&m.maxResponseTime)),

		Goroutines: runtime.NumGoroutine(),
	}
}

// HTTPHandler provides a plain-text metrics endpoint
func (m *Metrics) HTTPHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s := m.GetSnapshot()

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "# Stock Price Checker Metrics\n")
	fmt.Fprintf(w, "total_requests %d\n", s.TotalRequests)
	fmt.Fprintf(w, "failed_requests %d\n", s.FailedRequests)
	fmt.Fprintf(w, "panics %d\n", s.Panics)
	fmt.Fprintf(w, "likes_accepted %d\n", s.LikesAccepted)
	fmt.Fprintf(w, "likes_duplicate %d\n", s.LikesDuplicate)
	fmt.Fprintf(w, "quote_fetches %d\n", s.QuoteFetches)
	fmt.Fprintf(w, "quote_failures %d\n", s.QuoteFailures)
	fmt.Fprintf(w, "stream_active_subscribers %d\n", s.ActiveSubscribers)
	fmt.Fprintf(w, "stream_total_subscribers %d\n", s.TotalSubscribers)
	fmt.Fprintf(w, "stream_dropped_events %d\n", s.DroppedEvents)
	fmt.Fprintf(w, "avg_response_time_nanoseconds %d\n", s.AvgResponseTime.Nanoseconds())
	fmt.Fprintf(w, "max_response_time_nanoseconds %d\n", s.MaxResponseTime.Nanoseconds())
	fmt.Fprintf(w, "goroutines %d\n", s.Goroutines)
}
