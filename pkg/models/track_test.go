package models

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

const sampleResponse = `[{"id":"m1","track":{"id":"t1","title":"X","artist":"Y","audioTrackLength":39.52},"audio":{"queryMatchId":"q1","coverage":{"queryMatchStartsAt":0,"trackMatchStartsAt":0,"queryCoverage":0.9,"trackCoverage":0.1,"queryCoverageLength":4.5,"trackCoverageLength":4.5,"queryDiscreteCoverageLength":4.5,"trackDiscreteCoverageLength":4.5,"queryLength":5.0,"trackLength":39.5,"queryGaps":[],"trackGaps":[{"start":4.5,"end":39.5,"isOnEdge":true,"lengthInSeconds":35.0}]}}}]`

func TestDecodeQueryResults(t *testing.T) {
	var results []QueryResult
	if err := json.Unmarshal([]byte(sampleResponse), &results); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	r := results[0]
	if r.ID != "m1" {
		t.Errorf("Expected id m1, got %s", r.ID)
	}
	if r.Track.ID != "t1" {
		t.Errorf("Expected track id t1, got %s", r.Track.ID)
	}
	if r.Track.LengthSeconds != 39.52 {
		t.Errorf("Expected track length 39.52, got %v", r.Track.LengthSeconds)
	}
	if r.Track.DisplayName() != "Y - X" {
		t.Errorf("Unexpected display name %q", r.Track.DisplayName())
	}
	if r.IsDegenerate() {
		t.Fatal("Expected an audio match")
	}
	if r.Audio.ID != "q1" {
		t.Errorf("Expected queryMatchId q1, got %s", r.Audio.ID)
	}
	if got := r.Audio.Coverage.TrackGaps[0].LengthInSeconds; got != 35.0 {
		t.Errorf("Expected track gap length 35.0, got %v", got)
	}
	if r.QueryCoverage() != 0.9 || r.TrackCoverage() != 0.1 {
		t.Errorf("Unexpected coverage ratios %v/%v", r.QueryCoverage(), r.TrackCoverage())
	}
	if err := r.Validate(); err != nil {
		t.Errorf("Expected sample to satisfy invariants: %v", err)
	}
}

func TestDecodeOptionalFields(t *testing.T) {
	body := `[{"id":"m2","track":{"id":"t2","audioTrackLength":12}}]`

	var results []QueryResult
	if err := json.Unmarshal([]byte(body), &results); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	r := results[0]
	if !r.IsDegenerate() {
		t.Error("Expected degenerate match without audio")
	}
	if r.Track.Title != nil || r.Track.Artist != nil {
		t.Error("Expected title and artist to be absent")
	}
	if r.QueryCoverage() != 0 {
		t.Errorf("Expected zero coverage, got %v", r.QueryCoverage())
	}
	if r.Track.DisplayName() != "Unknown Artist - Untitled" {
		t.Errorf("Unexpected display name %q", r.Track.DisplayName())
	}
	if err := r.Validate(); err != nil {
		t.Errorf("Degenerate match should validate: %v", err)
	}
}

func TestGapValidate(t *testing.T) {
	tests := []struct {
		name      string
		gap       Gap
		wantError bool
	}{
		{"valid interior gap", Gap{Start: 1, End: 2.5, LengthInSeconds: 1.5}, false},
		{"valid within tolerance", Gap{Start: 4.5, End: 39.5, LengthInSeconds: 35.0004}, false},
		{"start equals end", Gap{Start: 2, End: 2, LengthInSeconds: 0}, true},
		{"start after end", Gap{Start: 3, End: 2, LengthInSeconds: -1}, true},
		{"negative start", Gap{Start: -1, End: 2, LengthInSeconds: 3}, true},
		{"length mismatch", Gap{Start: 0, End: 10, LengthInSeconds: 9}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.gap.Validate()
			if tt.wantError && err == nil {
				t.Errorf("Validate() expected error but got none")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestNewGap(t *testing.T) {
	g, err := NewGap(1.25, 3.75, false)
	if err != nil {
		t.Fatalf("NewGap failed: %v", err)
	}
	if g.LengthInSeconds != 2.5 {
		t.Errorf("Expected length 2.5, got %v", g.LengthInSeconds)
	}

	if _, err := NewGap(5, 5, true); err == nil {
		t.Error("Expected error for empty gap")
	}
}

func TestCoverageValidate(t *testing.T) {
	ratio := func(v float64) *float64 { return &v }

	valid := AudioCoverage{
		QueryCoverage: ratio(1),
		TrackCoverage: ratio(0),
		QueryLength:   5,
		TrackLength:   40,
		TrackGaps:     []Gap{{Start: 0, End: 1, IsOnEdge: true, LengthInSeconds: 1}},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid coverage: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *AudioCoverage)
	}{
		{"ratio above one", func(c *AudioCoverage) { c.QueryCoverage = ratio(1.01) }},
		{"ratio below zero", func(c *AudioCoverage) { c.TrackCoverage = ratio(-0.1) }},
		{"negative length", func(c *AudioCoverage) { c.QueryLength = -1 }},
		{"negative offset", func(c *AudioCoverage) { c.TrackMatchStartsAt = -0.5 }},
		{"bad gap", func(c *AudioCoverage) { c.QueryGaps = []Gap{{Start: 2, End: 1}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() expected error but got none")
			}
		})
	}
}

func TestCoverageValidateReportsFirstNegativeField(t *testing.T) {
	c := AudioCoverage{
		QueryMatchStartsAt:  -1,
		TrackCoverageLength: -2,
		QueryLength:         -3,
		TrackLength:         -4,
	}
	// repeated so that an unordered check would eventually disagree
	for i := 0; i < 50; i++ {
		err := c.Validate()
		if err == nil {
			t.Fatal("Validate() expected error but got none")
		}
		if !strings.HasPrefix(err.Error(), "queryMatchStartsAt is negative") {
			t.Fatalf("Expected queryMatchStartsAt to be reported, got %q", err)
		}
	}

	c.QueryMatchStartsAt = 0
	if err := c.Validate(); err == nil || !strings.HasPrefix(err.Error(), "trackCoverageLength is negative") {
		t.Errorf("Expected trackCoverageLength to be reported, got %v", err)
	}
}

func TestGapSelection(t *testing.T) {
	c := AudioCoverage{
		QueryGaps: []Gap{
			{Start: 0, End: 0.5, IsOnEdge: true, LengthInSeconds: 0.5},
			{Start: 2, End: 2.25, LengthInSeconds: 0.25},
		},
		TrackGaps: []Gap{
			{Start: 10, End: 12, LengthInSeconds: 2},
			{Start: 20, End: 21, LengthInSeconds: 1},
			{Start: 30, End: 40, IsOnEdge: true, LengthInSeconds: 10},
		},
	}

	if n := len(c.EdgeGaps(QuerySide)); n != 1 {
		t.Errorf("Expected 1 query edge gap, got %d", n)
	}
	if n := len(c.InteriorGaps(TrackSide)); n != 2 {
		t.Errorf("Expected 2 track interior gaps, got %d", n)
	}
	if got := c.TotalGapLength(TrackSide); math.Abs(got-13) > 1e-9 {
		t.Errorf("Expected total track gap length 13, got %v", got)
	}
	if got := c.TotalGapLength(QuerySide); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("Expected total query gap length 0.75, got %v", got)
	}
	if TrackSide.String() != "track" || QuerySide.String() != "query" {
		t.Error("Unexpected side names")
	}
}
