// Package identity assigns the track identifiers sent with insertions.
//
// A deployment runs exactly one Scheme. The metadata scheme derives a
// version 5 UUID from artist, title and extra metadata, so re-submitting the
// same track produces the same identifier and the service can detect the
// duplicate. The random scheme draws a fresh version 4 UUID on every call.
// Mixing the two against one service breaks that idempotence.
package identity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Scheme names an identity assignment strategy.
type Scheme string

const (
	SchemeMetadata Scheme = "metadata"
	SchemeRandom   Scheme = "random"
)

// Namespace is the fixed UUID namespace for metadata-derived identifiers.
// Changing it changes every derived identifier.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://emysound.com/track"))

// fieldSeparator joins the hashed fields. It cannot occur in ordinary
// metadata, so ("ab", "c") and ("a", "bc") hash differently.
const fieldSeparator = "\x1f"

// Input is the caller-supplied metadata for an insertion.
type Input struct {
	Artist string
	Title  string
	Extra  string
}

// TrackID is the identifier assigned to an insertion. Value is the exact
// string sent in the Id field of the request.
type TrackID struct {
	UUID  uuid.UUID
	Value string
}

func (id TrackID) String() string {
	return id.Value
}

// Policy assigns track identifiers.
type Policy struct {
	scheme  Scheme
	compose bool
}

// NewPolicy builds the policy for a scheme. When compose is set, the
// identifier is sent as "<uuid>:<artist>:<title>".
func NewPolicy(scheme Scheme, compose bool) (*Policy, error) {
	switch scheme {
	case SchemeMetadata, SchemeRandom:
	default:
		return nil, fmt.Errorf("unknown identity scheme %q (must be %s or %s)", scheme, SchemeMetadata, SchemeRandom)
	}
	return &Policy{scheme: scheme, compose: compose}, nil
}

// Scheme returns the active scheme.
func (p *Policy) Scheme() Scheme {
	return p.scheme
}

// Composed reports whether identifiers carry the human-readable fields.
func (p *Policy) Composed() bool {
	return p.compose
}

// Assign returns the identifier for an insertion.
func (p *Policy) Assign(in Input) TrackID {
	var id uuid.UUID
	if p.scheme == SchemeRandom {
		id = uuid.New()
	} else {
		id = Derive(in.Artist, in.Title, in.Extra)
	}

	value := id.String()
	if p.compose {
		value = Compose(id, in.Artist, in.Title)
	}
	return TrackID{UUID: id, Value: value}
}

// Derive computes the deterministic identifier for a track.
func Derive(artist, title, extra string) uuid.UUID {
	name := strings.Join([]string{artist, title, extra}, fieldSeparator)
	return uuid.NewSHA1(Namespace, []byte(name))
}

// Compose renders an identifier together with its human-readable fields.
func Compose(id uuid.UUID, artist, title string) string {
	return id.String() + ":" + artist + ":" + title
}

// ParseComposed splits a composed identifier back into its parts. A bare
// UUID parses with empty artist and title. An artist containing ':' is not
// recoverable; the title keeps any remaining colons.
func ParseComposed(value string) (uuid.UUID, string, string, error) {
	head, rest, composed := strings.Cut(value, ":")
	id, err := uuid.Parse(head)
	if err != nil {
		return uuid.Nil, "", "", fmt.Errorf("invalid track identifier %q: %w", value, err)
	}
	if !composed {
		return id, "", "", nil
	}
	artist, title, _ := strings.Cut(rest, ":")
	return id, artist, title, nil
}
