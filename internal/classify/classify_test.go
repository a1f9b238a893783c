package classify

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want Kind
	}{
		{"empty", "", Invalid},
		{"whitespace", "   ", Invalid},
		{"no scheme", "www.youtube.com/watch?v=abc", Invalid},
		{"ftp scheme", "ftp://example.com/file.mp3", Invalid},
		{"garbage", "http://", Invalid},
		{"youtube watch", "https://www.youtube.com/watch?v=abc12345678", Video},
		{"youtu.be short", "https://youtu.be/abc12345678", Video},
		{"vimeo", "https://vimeo.com/123456789", Video},
		{"ted talk", "https://www.ted.com/talks/great_talk", Video},
		{"instagram reel", "https://www.instagram.com/reel/Cabc123/", Video},
		{"tiktok", "https://www.tiktok.com/@user/video/7012345678901234567", Video},
		{"lookalike host", "https://notyoutube.com/watch?v=abc", Website},
		{"mp3 file", "https://cdn.example.com/episode.mp3", AudioFile},
		{"wav file uppercase", "https://cdn.example.com/TRACK.WAV", AudioFile},
		{"mp4 on generic host", "https://cdn.example.com/clip.mp4", AudioFile},
		{"mp4 on youtube stays video", "https://www.youtube.com/watch?v=clip.mp4", Video},
		{"spotify", "https://open.spotify.com/episode/xyz", AudioPlatform},
		{"soundcloud", "https://soundcloud.com/artist/track", AudioPlatform},
		{"apple music", "https://music.apple.com/us/album/xyz", AudioPlatform},
		{"drive file share", "https://drive.google.com/file/d/abc123/view", CloudDocument},
		{"drive open link", "https://drive.google.com/open?id=abc123", CloudDocument},
		{"drive root not a share", "https://drive.google.com/drive/my-drive", Website},
		{"news site", "https://example.com/articles/42", Website},
		{"blog with path", "http://blog.example.org/post", Website},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.url); got != tt.want {
				t.Fatalf("Classify(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestEmbeddable(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"youtube watch", "https://www.youtube.com/watch?v=abc12345678", "https://www.youtube.com/embed/abc12345678"},
		{"youtu.be", "https://youtu.be/abc12345678", "https://www.youtube.com/embed/abc12345678"},
		{"ted", "https://www.ted.com/talks/great_talk?language=en", "https://embed.ted.com/talks/great_talk"},
		{"instagram reel", "https://www.instagram.com/reel/Cabc123/", "https://www.instagram.com/reel/Cabc123/embed"},
		{"instagram post", "https://www.instagram.com/p/Cdef456/", "https://www.instagram.com/reel/Cdef456/embed"},
		{"tiktok", "https://www.tiktok.com/@user/video/7012345678901234567", "https://www.tiktok.com/embed/7012345678901234567"},
		{"vimeo", "https://vimeo.com/123456789", "https://player.vimeo.com/video/123456789"},
		{"unknown host", "https://example.com/watch?v=abc", ""},
		{"tiktok without video path", "https://www.tiktok.com/@user", ""},
		{"vimeo without id", "https://vimeo.com/about", ""},
		{"malformed", "https://", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Embeddable(tt.url); got != tt.want {
				t.Fatalf("Embeddable(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestVideoID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=abc12345678", "abc12345678"},
		{"https://youtu.be/xyz98765432", "xyz98765432"},
		{"https://www.youtube.com/embed/abc12345678", "abc12345678"},
		{"https://example.com/", ""},
		{"not-a-url", ""},
	}

	for _, tt := range tests {
		if got := VideoID(tt.url); got != tt.want {
			t.Fatalf("VideoID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestFilenameHelpers(t *testing.T) {
	if !IsDocumentFilename("Notes.PDF") {
		t.Fatal("expected Notes.PDF to be a document")
	}
	if IsDocumentFilename("lecture.mp3") {
		t.Fatal("lecture.mp3 is not a document")
	}
	if !IsAudioFilename("lecture.mp3") {
		t.Fatal("expected lecture.mp3 to be audio")
	}
	if IsAudioFilename("notes.txt") {
		t.Fatal("notes.txt is not audio")
	}
}
