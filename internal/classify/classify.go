// Package classify categorizes user-supplied source URLs and maps video
// URLs to provider embed players. Classification decides which backend
// endpoints and which UI panels a submission activates.
package classify

import (
	"net/url"
	"regexp"
	"strings"
)

// Kind is the category assigned to a source URL.
type Kind string

const (
	Invalid       Kind = "invalid"
	Video         Kind = "video"
	AudioFile     Kind = "audio_file"
	AudioPlatform Kind = "audio_platform"
	CloudDocument Kind = "cloud_document"
	Website       Kind = "website"
)

var videoHosts = []string{
	"youtube.com",
	"youtu.be",
	"vimeo.com",
	"ted.com",
	"instagram.com",
	"tiktok.com",
}

var audioExtensions = []string{
	".mp3", ".wav", ".m4a", ".aac", ".ogg", ".flac", ".wma", ".aiff", ".mp4",
}

var audioPlatforms = []string{
	"spotify.com", "soundcloud.com", "apple.co", "music.apple.com",
	"deezer.com", "tidal.com", "amazon.com/music", "youtube.com/music",
	"bandcamp.com", "audiomack.com", "reverbnation.com",
}

// DocumentExtensions are the uploaded-file extensions treated as documents
// rather than audio. Document uploads skip the transcript panel.
var DocumentExtensions = []string{".pdf", ".docx", ".doc", ".txt"}

// Classify inspects a raw URL string and returns its Kind. It never panics:
// anything that cannot be parsed as an http(s) URL is Invalid, and anything
// valid that matches no allowlist is a generic Website scrape target.
func Classify(raw string) Kind {
	u, ok := parse(raw)
	if !ok {
		return Invalid
	}

	if hostMatches(u.Hostname(), videoHosts) {
		return Video
	}
	if hasAudioExtension(u.Path) {
		return AudioFile
	}
	if isAudioPlatform(raw) {
		return AudioPlatform
	}
	if isDriveShare(u) {
		return CloudDocument
	}
	return Website
}

// IsDocumentFilename reports whether an uploaded file name has a document
// extension.
func IsDocumentFilename(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range DocumentExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// IsAudioFilename reports whether an uploaded file name has an audio or
// audio-container extension.
func IsAudioFilename(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range audioExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

var (
	tedTalkPattern       = regexp.MustCompile(`talks/([^/?]+)`)
	instagramReelPattern = regexp.MustCompile(`reel/([A-Za-z0-9_-]+)`)
	instagramPostPattern = regexp.MustCompile(`p/([A-Za-z0-9_-]+)`)
	tiktokVideoPattern   = regexp.MustCompile(`@[^/]+/video/(\d+)`)
	vimeoVideoPattern    = regexp.MustCompile(`/(\d+)`)
)

// Embeddable maps a Video URL to the provider's embeddable-player URL.
// It returns "" when the provider is unknown or no identifier can be
// extracted; malformed input yields "", never an error.
func Embeddable(raw string) string {
	u, ok := parse(raw)
	if !ok {
		return ""
	}

	host := u.Hostname()
	switch {
	case hostContains(host, "youtube.com") || hostContains(host, "youtu.be"):
		if id := VideoID(raw); id != "" {
			return "https://www.youtube.com/embed/" + id
		}
	case hostContains(host, "ted.com"):
		if m := tedTalkPattern.FindStringSubmatch(u.Path); m != nil {
			return "https://embed.ted.com/talks/" + m[1]
		}
	case hostContains(host, "instagram.com"):
		if m := instagramReelPattern.FindStringSubmatch(u.Path); m != nil {
			return "https://www.instagram.com/reel/" + m[1] + "/embed"
		}
		if m := instagramPostPattern.FindStringSubmatch(u.Path); m != nil {
			return "https://www.instagram.com/reel/" + m[1] + "/embed"
		}
	case hostContains(host, "tiktok.com"):
		if m := tiktokVideoPattern.FindStringSubmatch(u.Path); m != nil {
			return "https://www.tiktok.com/embed/" + m[1]
		}
	case hostContains(host, "vimeo.com"):
		if m := vimeoVideoPattern.FindStringSubmatch(u.Path); m != nil {
			return "https://player.vimeo.com/video/" + m[1]
		}
	}
	return ""
}

// VideoID extracts the platform identifier used to deduplicate
// video-summary fetches: the `v` query parameter when present, otherwise
// the last path segment. Returns "" for unparsable input.
func VideoID(raw string) string {
	u, ok := parse(raw)
	if !ok {
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}

func parse(raw string) (*url.URL, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return nil, false
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return nil, false
	}
	return u, true
}

func hostMatches(host string, allowlist []string) bool {
	for _, allowed := range allowlist {
		if hostContains(host, allowed) {
			return true
		}
	}
	return false
}

// hostContains matches a host against an allowlist entry, accepting
// subdomains (www.youtube.com matches youtube.com) but not lookalike
// domains (notyoutube.com does not).
func hostContains(host, allowed string) bool {
	host = strings.ToLower(host)
	return host == allowed || strings.HasSuffix(host, "."+allowed)
}

func hasAudioExtension(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range audioExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// isAudioPlatform matches against the full URL rather than just the host:
// two allowlist entries (amazon.com/music, youtube.com/music) include a
// path prefix.
func isAudioPlatform(raw string) bool {
	lower := strings.ToLower(raw)
	for _, platform := range audioPlatforms {
		if strings.Contains(lower, platform) {
			return true
		}
	}
	return false
}

func isDriveShare(u *url.URL) bool {
	if !hostContains(u.Hostname(), "drive.google.com") {
		return false
	}
	return strings.Contains(u.Path, "/file/d/") ||
		strings.Contains(u.Path, "/open") ||
		strings.Contains(u.Path, "/view")
}
