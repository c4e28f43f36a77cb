package lms

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPageQuery(t *testing.T) {
	q := PageQuery(200, 100)
	if got := q.Get("$skip"); got != "200" {
		t.Errorf("expected $skip=200, got %q", got)
	}
	if got := q.Get("$top"); got != "100" {
		t.Errorf("expected $top=100, got %q", got)
	}
}

func TestModifiedSinceFilter(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	since := time.Date(2026, 3, 15, 10, 30, 0, 0, loc)

	got := ModifiedSinceFilter(since)
	want := "lastModified gt datetime'2026-03-15T09:30:00'"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestIDFilter(t *testing.T) {
	tests := map[string]struct {
		ids  []string
		want string
	}{
		"single": {
			ids:  []string{"COURSE-1"},
			want: "itemID eq 'COURSE-1'",
		},
		"multiple": {
			ids:  []string{"a", "b", "c"},
			want: "itemID eq 'a' or itemID eq 'b' or itemID eq 'c'",
		},
		"quote escaped": {
			ids:  []string{"o'brien"},
			want: "itemID eq 'o''brien'",
		},
		"empty": {
			ids:  nil,
			want: "",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := IDFilter("itemID", tc.ids); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestDecodeResults(t *testing.T) {
	raw := json.RawMessage(`{"d":{"results":[{"userID":"u1"},{"userID":"u2"}]}}`)

	records, err := DecodeResults(raw)
	if err != nil {
		t.Fatalf("DecodeResults returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if got := records[0].String("userID"); got != "u1" {
		t.Errorf("expected first userID u1, got %q", got)
	}
}

func TestDecodeResultsMalformed(t *testing.T) {
	if _, err := DecodeResults(json.RawMessage(`not json`)); err == nil {
		t.Error("expected error for malformed envelope")
	}
}

func TestDecodeResultsEmptyEnvelope(t *testing.T) {
	records, err := DecodeResults(json.RawMessage(`{"d":{"results":[]}}`))
	if err != nil {
		t.Fatalf("DecodeResults returned error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}
