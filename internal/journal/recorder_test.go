package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"futuresbot-go/internal/execution"
)

func TestJSONLRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "trades.jsonl")

	recorder, err := NewJSONLRecorder(path)
	if err != nil {
		t.Fatalf("NewJSONLRecorder error: %v", err)
	}
	fills := []execution.Fill{
		{Symbol: "BTCUSDT", Side: execution.Buy, Qty: 1, Price: 1000},
		{Symbol: "ETHUSDT", Side: execution.Sell, Qty: 2, Price: 3000},
	}
	if err := RecordAll(recorder, fills); err != nil {
		t.Fatalf("RecordAll error: %v", err)
	}
	if recorder.Lines() != 2 {
		t.Fatalf("expected 2 lines, got %d", recorder.Lines())
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := recorder.Record(fills[0]); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recorded file: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var decoded []execution.Fill
	for scanner.Scan() {
		var f execution.Fill
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			t.Fatalf("json decode: %v", err)
		}
		decoded = append(decoded, f)
	}
	if len(decoded) != 2 || decoded[1].Symbol != "ETHUSDT" || decoded[1].Side != execution.Sell {
		t.Fatalf("unexpected decoded fills: %+v", decoded)
	}
}

func TestJSONLRecorderAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.jsonl")
	for i := 0; i < 2; i++ {
		r, err := NewJSONLRecorder(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := r.Record(map[string]int{"cycle": i}); err != nil {
			t.Fatalf("record: %v", err)
		}
		r.Close()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "{\"cycle\":0}\n{\"cycle\":1}\n" {
		t.Fatalf("unexpected journal contents %q", raw)
	}
}

func TestJSONLRecorderRejectsUnencodable(t *testing.T) {
	r, err := NewJSONLRecorder(filepath.Join(t.TempDir(), "x.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	if err := r.Record(make(chan int)); err == nil {
		t.Fatalf("expected encode error")
	}
	if r.Lines() != 0 {
		t.Fatalf("failed record counted")
	}
}
