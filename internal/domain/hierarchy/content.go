package hierarchy

import (
	"net/url"
	"regexp"
	"strings"
)

// ContentKind tags what a click on a node should open.
type ContentKind string

const (
	ContentNone         ContentKind = "none"
	ContentExternalLink ContentKind = "external-link"
	ContentMedia        ContentKind = "media"
)

// ContentRef is the resolved content behind a node. For media, MediaID holds
// the video id and URL keeps the original link.
type ContentRef struct {
	Kind    ContentKind `json:"kind"`
	URL     string      `json:"url,omitempty"`
	MediaID string      `json:"media_id,omitempty"`
}

var youtubeID = regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtube\.com/embed/|youtu\.be/)([a-zA-Z0-9_-]{11})`)

// ResolveContent classifies a node link.
func ResolveContent(link string) ContentRef {
	link = strings.TrimSpace(link)
	if link == "" {
		return ContentRef{Kind: ContentNone}
	}

	if m := youtubeID.FindStringSubmatch(link); m != nil {
		return ContentRef{Kind: ContentMedia, URL: link, MediaID: m[1]}
	}

	u, err := url.Parse(link)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ContentRef{Kind: ContentNone}
	}
	return ContentRef{Kind: ContentExternalLink, URL: link}
}
