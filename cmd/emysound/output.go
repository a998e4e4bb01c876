package main

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"emysound/pkg/models"

	"github.com/samber/lo"
)

const noMatches = "No matches."

// sortByCoverage orders results by query coverage, best first. Ties keep
// the service's order.
func sortByCoverage(results []models.QueryResult) []models.QueryResult {
	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, func(a, b models.QueryResult) int {
		return cmp.Compare(b.QueryCoverage(), a.QueryCoverage())
	})
	return sorted
}

// printResults writes one "coverage track-id" line per result. Verbose
// output adds the track name and gap summaries under each line, and sets
// the service's query length against clip, the locally measured length of
// the uploaded file (zero when unknown).
func printResults(w io.Writer, results []models.QueryResult, verbose bool, clip time.Duration) {
	if len(results) == 0 {
		fmt.Fprintln(w, noMatches)
		return
	}

	for _, r := range sortByCoverage(results) {
		fmt.Fprintf(w, "%0.3f %s\n", r.QueryCoverage(), r.Track.ID)
		if !verbose {
			continue
		}
		fmt.Fprintf(w, "      %s\n", r.Track.DisplayName())
		if r.IsDegenerate() {
			fmt.Fprintln(w, "      no alignment")
			continue
		}
		c := r.Audio.Coverage
		fmt.Fprintf(w, "      track coverage %0.3f, query at %0.2fs, track at %0.2fs\n",
			r.TrackCoverage(), c.QueryMatchStartsAt, c.TrackMatchStartsAt)
		if clip > 0 {
			fmt.Fprintf(w, "      query length %0.2fs, local clip %0.2fs\n", c.QueryLength, clip.Seconds())
		} else {
			fmt.Fprintf(w, "      query length %0.2fs\n", c.QueryLength)
		}
		fmt.Fprintf(w, "      query gaps: %s\n", gapSummary(c, models.QuerySide))
		fmt.Fprintf(w, "      track gaps: %s\n", gapSummary(c, models.TrackSide))
	}
}

// gapSummary renders e.g. "2 (1 edge, 1 interior), 3.20s [0.00-1.20 5.00-7.00]".
func gapSummary(c models.AudioCoverage, side models.Side) string {
	gaps := c.Gaps(side)
	if len(gaps) == 0 {
		return "none"
	}

	edge, interior := lo.FilterReject(gaps, func(g models.Gap, _ int) bool {
		return g.IsOnEdge
	})
	spans := lo.Map(gaps, func(g models.Gap, _ int) string {
		return fmt.Sprintf("%0.2f-%0.2f", g.Start, g.End)
	})

	return fmt.Sprintf("%d (%d edge, %d interior), %0.2fs [%s]",
		len(gaps), len(edge), len(interior), c.TotalGapLength(side), strings.Join(spans, " "))
}
