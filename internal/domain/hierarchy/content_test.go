package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveContent(t *testing.T) {
	tests := []struct {
		name string
		link string
		want ContentRef
	}{
		{"empty", "  ", ContentRef{Kind: ContentNone}},
		{"watch", "https://www.youtube.com/watch?v=abcdefghijk&t=3",
			ContentRef{Kind: ContentMedia, URL: "https://www.youtube.com/watch?v=abcdefghijk&t=3", MediaID: "abcdefghijk"}},
		{"embed", "https://youtube.com/embed/ABCDEFGHIJK",
			ContentRef{Kind: ContentMedia, URL: "https://youtube.com/embed/ABCDEFGHIJK", MediaID: "ABCDEFGHIJK"}},
		{"short", "https://youtu.be/a_b-c_d-e_f",
			ContentRef{Kind: ContentMedia, URL: "https://youtu.be/a_b-c_d-e_f", MediaID: "a_b-c_d-e_f"}},
		{"article", "https://example.com/a", ContentRef{Kind: ContentExternalLink, URL: "https://example.com/a"}},
		{"relative", "/lessons/1", ContentRef{Kind: ContentNone}},
		{"script", "javascript:alert(1)", ContentRef{Kind: ContentNone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveContent(tt.link))
		})
	}
}
