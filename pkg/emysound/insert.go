package emysound

import (
	"context"
	"net/http"

	"emysound/pkg/identity"

	"github.com/sirupsen/logrus"
)

// Insert registers src with the service under an identifier assigned by the
// client's identity policy and returns that identifier.
func (c *Client) Insert(ctx context.Context, src Source, in identity.Input) (identity.TrackID, error) {
	log := c.logger.WithFields(logrus.Fields{
		"operation": "insert",
		"artist":    in.Artist,
		"title":     in.Title,
	})

	fileName, content, err := src.Resolve()
	if err != nil {
		log.WithError(err).Error("Can't resolve track source")
		return identity.TrackID{}, err
	}

	trackID := c.identity.Assign(in)
	log.WithFields(logrus.Fields{
		"file":     fileName,
		"track_id": trackID.Value,
		"scheme":   c.identity.Scheme(),
	}).Debug("Assigned track id")

	resp, err := c.send(ctx, &submission{
		op:   "insert",
		path: tracksEndpoint,
		fields: []formField{
			{name: "Id", value: trackID.Value},
			{name: "Artist", value: in.Artist},
			{name: "Title", value: in.Title},
			{name: "MediaType", value: mediaTypeAudio},
		},
		fileName: fileName,
		payload:  content,
	})
	if err != nil {
		log.WithError(err).Error("Insert request failed")
		return identity.TrackID{}, err
	}

	if resp.status != http.StatusOK {
		return identity.TrackID{}, c.reject("insert", resp)
	}

	log.WithField("track_id", trackID.Value).Info("Track inserted")
	return trackID, nil
}
