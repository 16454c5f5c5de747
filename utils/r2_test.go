package utils

import (
	"mime/multipart"
	"testing"
)

func TestEventImageKey(t *testing.T) {
	got := EventImageKey("robo-wars-ab12", "logo", "img1", "Team Logo.PNG")
	want := "events/robo-wars-ab12/event_logo/img1.png"
	if got != want {
		t.Errorf("EventImageKey = %q, want %q", got, want)
	}
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		base, key, want string
	}{
		{"https://cdn.example.com", "events/a.png", "https://cdn.example.com/events/a.png"},
		{"https://cdn.example.com/", "/events/a.png", "https://cdn.example.com/events/a.png"},
	}
	for _, tt := range tests {
		if got := PublicURL(tt.base, tt.key); got != tt.want {
			t.Errorf("PublicURL(%q, %q) = %q, want %q", tt.base, tt.key, got, tt.want)
		}
	}
}

func TestImageContentType(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int64
		want     string
		wantErr  bool
	}{
		{"png", "a.png", 10, "image/png", false},
		{"upper jpeg", "A.JPEG", 10, "image/jpeg", false},
		{"svg", "logo.svg", 10, "image/svg+xml", false},
		{"gif", "a.gif", 10, "", true},
		{"too large", "a.png", MaxImageSize + 1, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ImageContentType(&multipart.FileHeader{Filename: tt.filename, Size: tt.size})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("content type = %q, want %q", got, tt.want)
			}
		})
	}
}
