package telemetry

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input     string
		wantLevel string
		wantMsg   string
	}{
		{input: "", wantLevel: "INFO", wantMsg: ""},
		{input: "[error] upload failed", wantLevel: "ERROR", wantMsg: "upload failed"},
		{input: "warning: slow head request", wantLevel: "WARN", wantMsg: "slow head request"},
		{input: "DEBUG skipped img/a.png", wantLevel: "DEBUG", wantMsg: "skipped img/a.png"},
		{input: "published 3 files", wantLevel: "INFO", wantMsg: "published 3 files"},
		{input: "key: value", wantLevel: "INFO", wantMsg: "key: value"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, msg := parseLevel(tt.input)
			if level != tt.wantLevel || msg != tt.wantMsg {
				t.Fatalf("parseLevel(%q) = (%q, %q), want (%q, %q)", tt.input, level, msg, tt.wantLevel, tt.wantMsg)
			}
		})
	}
}

func TestNewLoggerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	w := newJSONLogWriter("cdnsync", &buf)
	w.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	if _, err := w.Write([]byte("ERROR push failed\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var entry map[string]string
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["level"] != "ERROR" || entry["msg"] != "push failed" || entry["service"] != "cdnsync" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["ts"] != "2024-01-02T03:04:05Z" {
		t.Fatalf("ts = %q", entry["ts"])
	}
	if _, ok := entry["trace_id"]; ok {
		t.Fatalf("trace_id should be omitted when empty")
	}
}
