package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	analysisSubmittedTotal atomic.Uint64
	analysisCompletedTotal atomic.Uint64
	analysisFailedTotal    atomic.Uint64

	failuresByCode   = newLabeledCounter("code")
	reviewsByStatus  = newLabeledCounter("status")
	archiveErrors    atomic.Uint64
	providerDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncAnalysisSubmitted counts a record entering analyzing.
func IncAnalysisSubmitted() {
	analysisSubmittedTotal.Add(1)
}

// IncAnalysisCompleted increments the completed counter.
func IncAnalysisCompleted() {
	analysisCompletedTotal.Add(1)
}

// IncAnalysisFailed increments the failed counter and the per-code breakdown.
func IncAnalysisFailed(code string) {
	analysisFailedTotal.Add(1)
	failuresByCode.Inc(code)
}

func IncReviewUpdate(status string) {
	reviewsByStatus.Inc(status)
}

func IncArchiveError() {
	archiveErrors.Add(1)
}

// ObserveProviderDurationMs records a provider call duration in milliseconds.
func ObserveProviderDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	providerDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "analysis_submitted_total", "Total analyses submitted", analysisSubmittedTotal.Load())
	writeCounter(&buf, "analysis_completed_total", "Total analyses completed", analysisCompletedTotal.Load())
	writeCounter(&buf, "analysis_failed_total", "Total analyses failed", analysisFailedTotal.Load())
	writeLabeled(&buf, "analysis_failures_by_code_total", "Failed analyses by failure code", failuresByCode)
	writeLabeled(&buf, "review_updates_total", "Review updates by status", reviewsByStatus)
	writeCounter(&buf, "archive_errors_total", "Raw output archive failures", archiveErrors.Load())
	writeHistogram(&buf, "provider_duration_ms", "Provider call duration in milliseconds", providerDuration.Snapshot())
	return buf.String()
}

// Reset zeroes every metric. Intended for tests.
func Reset() {
	analysisSubmittedTotal.Store(0)
	analysisCompletedTotal.Store(0)
	analysisFailedTotal.Store(0)
	archiveErrors.Store(0)
	failuresByCode.reset()
	reviewsByStatus.reset()
	providerDuration.reset()
}

type labeledCounter struct {
	mu     sync.Mutex
	label  string
	values map[string]uint64
}

func newLabeledCounter(label string) *labeledCounter {
	return &labeledCounter{label: label, values: make(map[string]uint64)}
}

func (l *labeledCounter) Inc(value string) {
	l.mu.Lock()
	l.values[value]++
	l.mu.Unlock()
}

func (l *labeledCounter) snapshot() ([]string, map[string]uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, 0, len(l.values))
	out := make(map[string]uint64, len(l.values))
	for k, v := range l.values {
		keys = append(keys, k)
		out[k] = v
	}
	sort.Strings(keys)
	return keys, out
}

func (l *labeledCounter) reset() {
	l.mu.Lock()
	l.values = make(map[string]uint64)
	l.mu.Unlock()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe adds value to the first bucket whose bound covers it.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func (h *histogram) reset() {
	h.mu.Lock()
	h.counts = make([]uint64, len(h.buckets))
	h.sum = 0
	h.count = 0
	h.mu.Unlock()
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeLabeled(buf *bytes.Buffer, name, help string, counter *labeledCounter) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys, values := counter.snapshot()
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, counter.label, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
