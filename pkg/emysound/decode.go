package emysound

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"emysound/pkg/models"
)

// The wire types mirror models with pointer fields so that a missing
// required field can be told apart from a zero value.

type wireResult struct {
	ID    *string    `json:"id"`
	Track *wireTrack `json:"track"`
	Audio *wireAudio `json:"audio"`
}

type wireTrack struct {
	ID     *string  `json:"id"`
	Title  *string  `json:"title"`
	Artist *string  `json:"artist"`
	Length *float64 `json:"audioTrackLength"`
}

type wireAudio struct {
	ID       *string       `json:"queryMatchId"`
	Coverage *wireCoverage `json:"coverage"`
}

type wireCoverage struct {
	QueryMatchStartsAt          *float64   `json:"queryMatchStartsAt"`
	TrackMatchStartsAt          *float64   `json:"trackMatchStartsAt"`
	QueryCoverage               *float64   `json:"queryCoverage"`
	TrackCoverage               *float64   `json:"trackCoverage"`
	QueryCoverageLength         *float64   `json:"queryCoverageLength"`
	TrackCoverageLength         *float64   `json:"trackCoverageLength"`
	QueryDiscreteCoverageLength *float64   `json:"queryDiscreteCoverageLength"`
	TrackDiscreteCoverageLength *float64   `json:"trackDiscreteCoverageLength"`
	QueryLength                 *float64   `json:"queryLength"`
	TrackLength                 *float64   `json:"trackLength"`
	QueryGaps                   *[]wireGap `json:"queryGaps"`
	TrackGaps                   *[]wireGap `json:"trackGaps"`
}

type wireGap struct {
	Start           *float64 `json:"start"`
	End             *float64 `json:"end"`
	IsOnEdge        *bool    `json:"isOnEdge"`
	LengthInSeconds *float64 `json:"lengthInSeconds"`
}

// fields collects the names of required fields that were absent.
type fields struct {
	missing []string
}

func need[T any](f *fields, name string, v *T) T {
	if v == nil {
		f.missing = append(f.missing, name)
		var zero T
		return zero
	}
	return *v
}

func (f *fields) err(index int) error {
	if len(f.missing) == 0 {
		return nil
	}
	return fmt.Errorf("result %d is missing %s", index, strings.Join(f.missing, ", "))
}

// decodeResults parses a Query response body. The body must be a JSON
// array; every element needs its id, track id and track length, and an
// audio alignment, when present, must be complete. title, artist, audio and
// the two coverage ratios are optional.
func decodeResults(body []byte) ([]models.QueryResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &DecodeError{Err: errors.New("response is not a JSON array")}
	}

	var wire []wireResult
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, &DecodeError{Err: err}
	}

	results := make([]models.QueryResult, 0, len(wire))
	for i, w := range wire {
		r, err := w.toModel(i)
		if err != nil {
			return nil, &DecodeError{Err: err}
		}
		results = append(results, r)
	}
	return results, nil
}

func (w wireResult) toModel(index int) (models.QueryResult, error) {
	f := &fields{}
	r := models.QueryResult{ID: need(f, "id", w.ID)}

	if w.Track == nil {
		f.missing = append(f.missing, "track")
	} else {
		r.Track = models.TrackInfo{
			ID:            need(f, "track.id", w.Track.ID),
			Title:         w.Track.Title,
			Artist:        w.Track.Artist,
			LengthSeconds: need(f, "track.audioTrackLength", w.Track.Length),
		}
	}

	if w.Audio != nil {
		r.Audio = &models.AudioMatch{ID: need(f, "audio.queryMatchId", w.Audio.ID)}
		if w.Audio.Coverage == nil {
			f.missing = append(f.missing, "audio.coverage")
		} else {
			r.Audio.Coverage = w.Audio.Coverage.toModel(f)
		}
	}

	if err := f.err(index); err != nil {
		return models.QueryResult{}, err
	}
	if r.ID == "" || r.Track.ID == "" {
		return models.QueryResult{}, fmt.Errorf("result %d has an empty id", index)
	}
	return r, nil
}

func (c *wireCoverage) toModel(f *fields) models.AudioCoverage {
	const p = "audio.coverage."
	return models.AudioCoverage{
		QueryMatchStartsAt:          need(f, p+"queryMatchStartsAt", c.QueryMatchStartsAt),
		TrackMatchStartsAt:          need(f, p+"trackMatchStartsAt", c.TrackMatchStartsAt),
		QueryCoverage:               c.QueryCoverage,
		TrackCoverage:               c.TrackCoverage,
		QueryCoverageLength:         need(f, p+"queryCoverageLength", c.QueryCoverageLength),
		TrackCoverageLength:         need(f, p+"trackCoverageLength", c.TrackCoverageLength),
		QueryDiscreteCoverageLength: need(f, p+"queryDiscreteCoverageLength", c.QueryDiscreteCoverageLength),
		TrackDiscreteCoverageLength: need(f, p+"trackDiscreteCoverageLength", c.TrackDiscreteCoverageLength),
		QueryLength:                 need(f, p+"queryLength", c.QueryLength),
		TrackLength:                 need(f, p+"trackLength", c.TrackLength),
		QueryGaps:                   gaps(f, p+"queryGaps", c.QueryGaps),
		TrackGaps:                   gaps(f, p+"trackGaps", c.TrackGaps),
	}
}

func gaps(f *fields, name string, in *[]wireGap) []models.Gap {
	if in == nil {
		f.missing = append(f.missing, name)
		return nil
	}
	out := make([]models.Gap, 0, len(*in))
	for i, g := range *in {
		p := fmt.Sprintf("%s[%d].", name, i)
		out = append(out, models.Gap{
			Start:           need(f, p+"start", g.Start),
			End:             need(f, p+"end", g.End),
			IsOnEdge:        need(f, p+"isOnEdge", g.IsOnEdge),
			LengthInSeconds: need(f, p+"lengthInSeconds", g.LengthInSeconds),
		})
	}
	return out
}
