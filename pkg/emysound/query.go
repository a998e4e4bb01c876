package emysound

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"emysound/pkg/models"

	"github.com/sirupsen/logrus"
)

// QueryOptions tunes a Query call.
type QueryOptions struct {
	// MinConfidence is the threshold sent as the minConfidence parameter.
	// It must lie in [0,1].
	MinConfidence float64

	// RegisterMatches controls whether the service records the query as a
	// match candidate. Nil means true.
	RegisterMatches *bool
}

func (o QueryOptions) params() url.Values {
	register := true
	if o.RegisterMatches != nil {
		register = *o.RegisterMatches
	}
	return url.Values{
		"mediaType":       {mediaTypeAudio},
		"minConfidence":   {strconv.FormatFloat(o.MinConfidence, 'f', -1, 64)},
		"registerMatches": {strconv.FormatBool(register)},
	}
}

// ValidateConfidence checks that a minimum confidence lies in [0,1].
func ValidateConfidence(minConfidence float64) error {
	if !(minConfidence >= 0 && minConfidence <= 1) {
		return fmt.Errorf("%w: minConfidence %v must be within [0,1]", ErrInvalidArgument, minConfidence)
	}
	return nil
}

// Query looks up tracks similar to src. An empty result is a successful
// "no match" answer.
func (c *Client) Query(ctx context.Context, src Source, minConfidence float64) ([]models.QueryResult, error) {
	return c.QueryWithOptions(ctx, src, QueryOptions{MinConfidence: minConfidence})
}

// QueryWithOptions is Query with explicit options.
func (c *Client) QueryWithOptions(ctx context.Context, src Source, opts QueryOptions) ([]models.QueryResult, error) {
	log := c.logger.WithField("operation", "query")

	if err := ValidateConfidence(opts.MinConfidence); err != nil {
		return nil, err
	}

	fileName, content, err := src.Resolve()
	if err != nil {
		log.WithError(err).Error("Can't resolve track source")
		return nil, err
	}
	log = log.WithField("file", fileName)

	resp, err := c.send(ctx, &submission{
		op:       "query",
		path:     queryEndpoint,
		params:   opts.params(),
		fileName: fileName,
		payload:  content,
	})
	if err != nil {
		log.WithError(err).Error("Query request failed")
		return nil, err
	}

	if resp.status != http.StatusOK {
		return nil, c.reject("query", resp)
	}

	results, err := decodeResults(resp.body)
	if err != nil {
		log.WithError(err).Error("Failed to decode query response")
		return nil, err
	}

	for _, r := range results {
		if err := r.Validate(); err != nil {
			log.WithFields(logrus.Fields{
				"match_id": r.ID,
				"track_id": r.Track.ID,
				"error":    err.Error(),
			}).Warn("Match coverage violates invariants")
		}
	}

	log.WithField("matches", len(results)).Debug("Query complete")
	return results, nil
}
