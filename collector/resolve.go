package collector

import (
	"errors"
	"net/url"
	"strings"

	"chantrack/storage"
)

// ErrNoIdentity indicates a roster row carries nothing a channel can be
// resolved from.
var ErrNoIdentity = errors.New("collector: no channel id, url, or handle")

// identity is a row's resolved or resolvable channel reference. Exactly one
// of channelID and handle is set.
type identity struct {
	channelID string
	handle    string
}

func (id identity) needsLookup() bool {
	return id.channelID == ""
}

// resolveIdentity derives a channel reference from a roster row without
// spending quota. Precedence: a stored channel ID, then an ID embedded in
// the URL, then the handle column, then a handle embedded in the URL. Only
// a bare handle forces a paid lookup.
func resolveIdentity(row storage.ChannelRow) (identity, error) {
	if row.ChannelID != "" {
		return identity{channelID: row.ChannelID}, nil
	}

	urlID, urlHandle := parseChannelURL(row.URL)
	if urlID != "" {
		return identity{channelID: urlID}, nil
	}
	if h := strings.TrimSpace(row.Handle); h != "" {
		return identity{handle: h}, nil
	}
	if urlHandle != "" {
		return identity{handle: urlHandle}, nil
	}

	return identity{}, ErrNoIdentity
}

// parseChannelURL extracts a channel ID or handle from a channel page URL.
// Recognized shapes: .../channel/UCxxxx, .../@handle, and a bare "@handle".
func parseChannelURL(raw string) (channelID, handle string) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "@") {
		return "", raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ""
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		return "", ""
	}
	segments := strings.Split(path, "/")

	switch {
	case segments[0] == "channel" && len(segments) > 1:
		if id := segments[1]; strings.HasPrefix(id, "UC") {
			return id, ""
		}
	case strings.HasPrefix(segments[0], "@"):
		return "", segments[0]
	}
	return "", ""
}
