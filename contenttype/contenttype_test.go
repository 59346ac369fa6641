package contenttype

import "testing"

func TestMimeType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"index.html", "text/html"},
		{"/project/css/site.CSS", "text/css"},
		{"app.js", "text/javascript"},
		{"data.json", "application/json"},
		{"photo.jpeg", "image/jpeg"},
		{"backup.tar.gz", "application/gzip"},
		{"notes.tar", "application/x-tar"},
		{"dir.v2/readme", OctetStream},
		{"Makefile", OctetStream},
		{"", OctetStream},
		{"archive.unknownext", OctetStream},
		{`C:\site\logo.svg`, "image/svg+xml"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := MimeType(tt.path); got != tt.want {
				t.Errorf("MimeType(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		path    string
		isMedia bool
		isImage bool
	}{
		{"song.mp3", true, false},
		{"clip.webm", true, false},
		{"radio.ogg", true, false},
		{"logo.png", false, true},
		{"icon.svg", false, true},
		{"page.html", false, false},
		{"blob", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsMedia(tt.path); got != tt.isMedia {
				t.Errorf("IsMedia(%q) = %v, want %v", tt.path, got, tt.isMedia)
			}
			if got := IsImage(tt.path); got != tt.isImage {
				t.Errorf("IsImage(%q) = %v, want %v", tt.path, got, tt.isImage)
			}
		})
	}
}

func TestNewWithExtra(t *testing.T) {
	r := New(map[string]string{
		".ts":    "application/typescript",
		"min.js": "application/x-minified",
	})

	if got := r.MimeType("main.ts"); got != "application/typescript" {
		t.Errorf("override not applied, got %q", got)
	}
	if got := r.MimeType("vendor.min.js"); got != "application/x-minified" {
		t.Errorf("longest suffix not preferred, got %q", got)
	}
	if got := r.MimeType("vendor.js"); got != TextJavaScript {
		t.Errorf("base table lost, got %q", got)
	}
	if got := Default().MimeType("main.ts"); got != "video/mp2t" {
		t.Errorf("default resolver mutated, got %q", got)
	}
}
