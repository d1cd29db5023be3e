package chatstream

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/burpheart/chatwire/pkg/types"
)

// Record is a single JSONL record of pipeline traffic: a raw inbound event,
// an emitted frame, or a stream error.
type Record struct {
	Timestamp string `json:"ts"`
	StreamID  string `json:"stream"`
	Seq       int64  `json:"seq"`
	Type      string `json:"type"` // event, frame, error

	// Raw event fields
	EventType string `json:"event_type,omitempty"`
	EventData string `json:"event_data,omitempty"`

	// Emitted frame
	Frame *types.Frame `json:"frame,omitempty"`

	// Error
	Error string `json:"error,omitempty"`
}

// RecordCallback is called when a record is written.
type RecordCallback func(Record)

// Recorder writes pipeline traffic to a JSONL file and keeps an in-memory
// cache of recent records for initial frontend loads.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder

	records atomic.Int64
	seq     atomic.Int64

	onRecord RecordCallback

	cacheMu      sync.RWMutex
	recordCache  []Record
	maxCacheSize int
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithOnRecord sets a callback for each record written.
func WithOnRecord(cb RecordCallback) RecorderOption {
	return func(r *Recorder) { r.onRecord = cb }
}

// WithCacheSize sets the maximum number of records cached in memory.
func WithCacheSize(size int) RecorderOption {
	return func(r *Recorder) { r.maxCacheSize = size }
}

// NewRecorder creates a JSONL recorder appending to path.
func NewRecorder(path string, opts ...RecorderOption) (*Recorder, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open recorder file: %w", err)
	}

	r := &Recorder{
		file:         file,
		encoder:      json.NewEncoder(file),
		recordCache:  make([]Record, 0, 1000),
		maxCacheSize: 1000, // Keep last 1000 records for initial load
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Close closes the recorder file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

// RecordEvent records one raw server-sent event.
func (r *Recorder) RecordEvent(streamID string, ev RawEvent) {
	eventType := ev.Event
	if eventType == "" {
		eventType = "message"
	}
	r.write(Record{
		Timestamp: timestamp(),
		StreamID:  streamID,
		Seq:       r.seq.Add(1),
		Type:      "event",
		EventType: eventType,
		EventData: truncateString(ev.Data, 1000),
	})
}

// RecordFrame records one normalized frame emitted by a decoder.
func (r *Recorder) RecordFrame(streamID string, f *types.Frame) {
	r.write(Record{
		Timestamp: timestamp(),
		StreamID:  streamID,
		Seq:       r.seq.Add(1),
		Type:      "frame",
		Frame:     f,
	})
}

// RecordError records a stream-terminal error.
func (r *Recorder) RecordError(streamID string, err error) {
	r.write(Record{
		Timestamp: timestamp(),
		StreamID:  streamID,
		Seq:       r.seq.Add(1),
		Type:      "error",
		Error:     err.Error(),
	})
}

// write writes a record to the file (thread-safe).
func (r *Recorder) write(rec Record) {
	r.mu.Lock()
	err := r.encoder.Encode(rec)
	r.mu.Unlock()
	if err != nil {
		return
	}

	r.records.Add(1)
	r.addToCache(rec)

	if r.onRecord != nil {
		r.onRecord(rec)
	}
}

// addToCache adds a record to the memory cache, dropping the oldest entry
// when full.
func (r *Recorder) addToCache(rec Record) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.recordCache = append(r.recordCache, rec)
	if len(r.recordCache) > r.maxCacheSize {
		r.recordCache = r.recordCache[1:]
	}
}

// RecordCount returns the number of records written.
func (r *Recorder) RecordCount() int64 {
	return r.records.Load()
}

// RecentRecords returns the most recent records, newest last.
func (r *Recorder) RecentRecords(limit int) []Record {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if limit <= 0 || limit > len(r.recordCache) {
		limit = len(r.recordCache)
	}

	start := len(r.recordCache) - limit
	results := make([]Record, limit)
	copy(results, r.recordCache[start:])
	return results
}

// timestamp returns current time in RFC3339 format.
func timestamp() string {
	return time.Now().Format(time.RFC3339Nano)
}

// truncateString truncates s to max bytes.
func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
