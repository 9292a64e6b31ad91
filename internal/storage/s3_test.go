package storage

import "testing"

func TestDownloadKey(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"raw/videos/a.mp4", "videos/a.mp4"},
		{"/raw/videos/a.mp4", "videos/a.mp4"},
		{"a.mp4", "a.mp4"},
	}
	for _, tt := range tests {
		if got := downloadKey(tt.path); got != tt.want {
			t.Errorf("downloadKey(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestUploadKey(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{"", "abc.mp4", "abc.mp4"},
		{"processed", "abc.mp4", "processed/abc.mp4"},
		{"processed/", "abc.mp4", "processed/abc.mp4"},
		{"processed", "/abc.mp4", "processed/abc.mp4"},
	}
	for _, tt := range tests {
		s := &S3Storage{prefix: tt.prefix}
		if got := s.uploadKey(tt.path); got != tt.want {
			t.Errorf("uploadKey(%q, prefix=%q) = %q, want %q", tt.path, tt.prefix, got, tt.want)
		}
	}
}
