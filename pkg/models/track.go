package models

import (
	"fmt"
	"math"
)

// GapTolerance is the slack, in seconds, allowed between a gap's reported
// length and End - Start. The service serializes single precision floats.
const GapTolerance = 1e-3

// QueryResult is one candidate match returned by the Query endpoint.
type QueryResult struct {
	ID    string      `json:"id"`
	Track TrackInfo   `json:"track"`
	Audio *AudioMatch `json:"audio,omitempty"` // nil when the service could not score an alignment
}

// TrackInfo describes the matched reference track.
type TrackInfo struct {
	ID            string  `json:"id"`
	Title         *string `json:"title,omitempty"`
	Artist        *string `json:"artist,omitempty"`
	LengthSeconds float64 `json:"audioTrackLength"`
}

// AudioMatch holds the scored alignment for a match.
type AudioMatch struct {
	ID       string        `json:"queryMatchId"`
	Coverage AudioCoverage `json:"coverage"`
}

// AudioCoverage is the alignment detail between the submitted query and the
// matched track. All values are seconds except the two coverage ratios.
type AudioCoverage struct {
	QueryMatchStartsAt          float64  `json:"queryMatchStartsAt"`
	TrackMatchStartsAt          float64  `json:"trackMatchStartsAt"`
	QueryCoverage               *float64 `json:"queryCoverage,omitempty"`
	TrackCoverage               *float64 `json:"trackCoverage,omitempty"`
	QueryCoverageLength         float64  `json:"queryCoverageLength"`
	TrackCoverageLength         float64  `json:"trackCoverageLength"`
	QueryDiscreteCoverageLength float64  `json:"queryDiscreteCoverageLength"`
	TrackDiscreteCoverageLength float64  `json:"trackDiscreteCoverageLength"`
	QueryLength                 float64  `json:"queryLength"`
	TrackLength                 float64  `json:"trackLength"`
	QueryGaps                   []Gap    `json:"queryGaps"`
	TrackGaps                   []Gap    `json:"trackGaps"`
}

// Gap is a sub-interval not covered by the match.
type Gap struct {
	Start           float64 `json:"start"`
	End             float64 `json:"end"`
	IsOnEdge        bool    `json:"isOnEdge"`
	LengthInSeconds float64 `json:"lengthInSeconds"`
}

// Side selects the query or the track half of an AudioCoverage.
type Side int

const (
	QuerySide Side = iota
	TrackSide
)

func (s Side) String() string {
	switch s {
	case QuerySide:
		return "query"
	case TrackSide:
		return "track"
	default:
		return "unknown"
	}
}

// NewGap builds a gap whose length is derived from its bounds.
func NewGap(start, end float64, isOnEdge bool) (Gap, error) {
	g := Gap{
		Start:           start,
		End:             end,
		IsOnEdge:        isOnEdge,
		LengthInSeconds: end - start,
	}
	if err := g.Validate(); err != nil {
		return Gap{}, err
	}
	return g, nil
}

// Validate checks that the gap is non-negative, non-empty and that its
// length agrees with its bounds.
func (g Gap) Validate() error {
	if g.Start < 0 || g.End < 0 {
		return fmt.Errorf("gap [%g, %g] has a negative bound", g.Start, g.End)
	}
	if g.Start >= g.End {
		return fmt.Errorf("gap start %g is not before end %g", g.Start, g.End)
	}
	if math.Abs(g.LengthInSeconds-(g.End-g.Start)) > GapTolerance {
		return fmt.Errorf("gap [%g, %g] reports length %g", g.Start, g.End, g.LengthInSeconds)
	}
	return nil
}

// Validate checks the invariants of a coverage block: non-negative
// durations, ratios within [0,1] and well-formed gaps.
func (c AudioCoverage) Validate() error {
	// in wire order, so the first offending field is always the one reported
	durations := []struct {
		name  string
		value float64
	}{
		{"queryMatchStartsAt", c.QueryMatchStartsAt},
		{"trackMatchStartsAt", c.TrackMatchStartsAt},
		{"queryCoverageLength", c.QueryCoverageLength},
		{"trackCoverageLength", c.TrackCoverageLength},
		{"queryDiscreteCoverageLength", c.QueryDiscreteCoverageLength},
		{"trackDiscreteCoverageLength", c.TrackDiscreteCoverageLength},
		{"queryLength", c.QueryLength},
		{"trackLength", c.TrackLength},
	}
	for _, d := range durations {
		if d.value < 0 {
			return fmt.Errorf("%s is negative: %g", d.name, d.value)
		}
	}

	if err := validateRatio("queryCoverage", c.QueryCoverage); err != nil {
		return err
	}
	if err := validateRatio("trackCoverage", c.TrackCoverage); err != nil {
		return err
	}

	for i, g := range c.QueryGaps {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("queryGaps[%d]: %w", i, err)
		}
	}
	for i, g := range c.TrackGaps {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("trackGaps[%d]: %w", i, err)
		}
	}
	return nil
}

func validateRatio(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if *v < 0 || *v > 1 {
		return fmt.Errorf("%s %g is outside [0,1]", name, *v)
	}
	return nil
}

// Gaps returns the gaps recorded for one side.
func (c AudioCoverage) Gaps(side Side) []Gap {
	if side == TrackSide {
		return c.TrackGaps
	}
	return c.QueryGaps
}

// EdgeGaps returns the gaps touching the very start or end of a side.
func (c AudioCoverage) EdgeGaps(side Side) []Gap {
	return filterGaps(c.Gaps(side), true)
}

// InteriorGaps returns the gaps strictly inside a side.
func (c AudioCoverage) InteriorGaps(side Side) []Gap {
	return filterGaps(c.Gaps(side), false)
}

// TotalGapLength sums the gap lengths of one side.
func (c AudioCoverage) TotalGapLength(side Side) float64 {
	var total float64
	for _, g := range c.Gaps(side) {
		total += g.LengthInSeconds
	}
	return total
}

func filterGaps(gaps []Gap, onEdge bool) []Gap {
	out := make([]Gap, 0, len(gaps))
	for _, g := range gaps {
		if g.IsOnEdge == onEdge {
			out = append(out, g)
		}
	}
	return out
}

// IsDegenerate reports whether the service identified the track without
// computing an audio alignment.
func (r QueryResult) IsDegenerate() bool {
	return r.Audio == nil
}

// QueryCoverage returns the query coverage ratio, or 0 when it is unknown.
func (r QueryResult) QueryCoverage() float64 {
	if r.Audio == nil || r.Audio.Coverage.QueryCoverage == nil {
		return 0
	}
	return *r.Audio.Coverage.QueryCoverage
}

// TrackCoverage returns the track coverage ratio, or 0 when it is unknown.
func (r QueryResult) TrackCoverage() float64 {
	if r.Audio == nil || r.Audio.Coverage.TrackCoverage == nil {
		return 0
	}
	return *r.Audio.Coverage.TrackCoverage
}

// Validate checks the coverage invariants of a result, if it has one.
func (r QueryResult) Validate() error {
	if r.Audio == nil {
		return nil
	}
	return r.Audio.Coverage.Validate()
}

// DisplayName is "Artist - Title" with placeholders for missing fields.
func (t TrackInfo) DisplayName() string {
	artist, title := "Unknown Artist", "Untitled"
	if t.Artist != nil && *t.Artist != "" {
		artist = *t.Artist
	}
	if t.Title != nil && *t.Title != "" {
		title = *t.Title
	}
	return artist + " - " + title
}
