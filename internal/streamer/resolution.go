package streamer

import (
	"errors"
	"fmt"
	"strings"
)

// Resolution is one of the fixed output renditions a stream can be published in.
type Resolution int

const (
	P360 Resolution = iota + 1
	P480
	P720
)

// ErrUnknownResolution is returned when parsing a resolution that is not supported.
var ErrUnknownResolution = errors.New("unknown resolution")

type encodeProfile struct {
	width, height int
	bitrateKbps   int
	label         string
}

var profiles = map[Resolution]encodeProfile{
	P360: {width: 640, height: 360, bitrateKbps: 800, label: "360"},
	P480: {width: 854, height: 480, bitrateKbps: 1400, label: "480"},
	P720: {width: 1280, height: 720, bitrateKbps: 2800, label: "720"},
}

// Resolutions returns every supported resolution, lowest first.
func Resolutions() []Resolution {
	return []Resolution{P360, P480, P720}
}

// Valid reports whether r is a supported resolution.
func (r Resolution) Valid() bool {
	_, ok := profiles[r]
	return ok
}

// Parameters returns the encode geometry and video bitrate (kbit/s) for r.
// Unsupported values yield zeros.
func (r Resolution) Parameters() (width, height, bitrateKbps int) {
	p := profiles[r]
	return p.width, p.height, p.bitrateKbps
}

// Label is the short form used in publish destinations ("360", "480", "720").
func (r Resolution) Label() string {
	if p, ok := profiles[r]; ok {
		return p.label
	}
	return fmt.Sprintf("invalid(%d)", int(r))
}

func (r Resolution) String() string {
	if !r.Valid() {
		return r.Label()
	}
	return r.Label() + "p"
}

// MarshalText encodes r as "360p", "480p" or "720p".
func (r Resolution) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownResolution, int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText accepts any form ParseResolution accepts.
func (r *Resolution) UnmarshalText(text []byte) error {
	parsed, err := ParseResolution(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseResolution accepts "360", "360p" and "P360" forms, case-insensitively.
func ParseResolution(s string) (Resolution, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.TrimPrefix(norm, "p")
	norm = strings.TrimSuffix(norm, "p")
	for _, r := range Resolutions() {
		if profiles[r].label == norm {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownResolution, s)
}

// ComposeDestination returns the publish address for one rendition of a stream:
// "{server}{prefix}-{streamID}_{label}". The publish endpoint derives playlist
// names from it, so the format must not change.
func ComposeDestination(server, prefix, streamID string, r Resolution) string {
	return server + prefix + "-" + streamID + "_" + r.Label()
}

// Destination holds the configured publish server and stream path prefix.
type Destination struct {
	Server string
	Prefix string
}

// NewDestination validates the publish configuration. Both values are required.
func NewDestination(server, prefix string) (Destination, error) {
	server = strings.TrimSpace(server)
	prefix = strings.TrimSpace(prefix)
	if server == "" || prefix == "" {
		return Destination{}, ErrDestinationNotConfigured
	}
	return Destination{Server: server, Prefix: prefix}, nil
}

// For composes the destination of streamID at resolution r.
func (d Destination) For(streamID string, r Resolution) string {
	return ComposeDestination(d.Server, d.Prefix, streamID, r)
}
