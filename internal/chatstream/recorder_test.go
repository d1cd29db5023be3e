package chatstream

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/burpheart/chatwire/pkg/types"
)

func newTestRecorder(t *testing.T, opts ...RecorderOption) (*Recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "record.jsonl")
	rec, err := NewRecorder(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	return rec, path
}

func readRecords(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestRecorder_WritesJSONL(t *testing.T) {
	rec, path := newTestRecorder(t)

	rec.RecordEvent("s-1", RawEvent{Event: EventMessageDelta, Data: `{"id":"m-1"}`})
	rec.RecordFrame("s-1", &types.Frame{Event: "message", Data: types.FrameData{SeqID: 0}})
	rec.RecordError("s-1", errors.New("boom"))

	require.Equal(t, int64(3), rec.RecordCount())

	records := readRecords(t, path)
	require.Len(t, records, 3)

	require.Equal(t, "event", records[0].Type)
	require.Equal(t, EventMessageDelta, records[0].EventType)
	require.Equal(t, `{"id":"m-1"}`, records[0].EventData)
	require.Equal(t, "s-1", records[0].StreamID)

	require.Equal(t, "frame", records[1].Type)
	require.NotNil(t, records[1].Frame)

	require.Equal(t, "error", records[2].Type)
	require.Equal(t, "boom", records[2].Error)
}

func TestRecorder_TruncatesLongEventData(t *testing.T) {
	rec, path := newTestRecorder(t)

	rec.RecordEvent("s-1", RawEvent{Event: EventMessageDelta, Data: strings.Repeat("x", 5000)})

	records := readRecords(t, path)
	require.Len(t, records, 1)
	require.Len(t, records[0].EventData, 1003) // 1000 + "..."
}

func TestRecorder_EmptyEventTypeDefaults(t *testing.T) {
	rec, path := newTestRecorder(t)

	rec.RecordEvent("s-1", RawEvent{Data: "x"})

	records := readRecords(t, path)
	require.Equal(t, "message", records[0].EventType)
}

func TestRecorder_CacheEviction(t *testing.T) {
	rec, _ := newTestRecorder(t, WithCacheSize(3))

	for i := 0; i < 5; i++ {
		rec.RecordEvent("s-1", RawEvent{Event: "e", Data: strings.Repeat("a", i+1)})
	}

	recent := rec.RecentRecords(0)
	require.Len(t, recent, 3)
	require.Equal(t, "aaa", recent[0].EventData)
	require.Equal(t, "aaaaa", recent[2].EventData)

	last := rec.RecentRecords(1)
	require.Len(t, last, 1)
	require.Equal(t, "aaaaa", last[0].EventData)
}

func TestRecorder_OnRecordCallback(t *testing.T) {
	var seen []Record
	rec, _ := newTestRecorder(t, WithOnRecord(func(r Record) {
		seen = append(seen, r)
	}))

	rec.RecordEvent("s-1", RawEvent{Event: "e", Data: "x"})
	rec.RecordError("s-1", errors.New("bad"))

	require.Len(t, seen, 2)
	require.Equal(t, "event", seen[0].Type)
	require.Equal(t, "error", seen[1].Type)
}
