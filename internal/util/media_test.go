package util

import (
	"mime"
	"testing"
)

func TestMediaTypeByExt(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		fallback string
		want     string
	}{
		{"a.PNG", "image/", "image/jpeg", "image/png"},
		{"a.jpg", "image/", "image/jpeg", "image/jpeg"},
		{"a.unknownext", "image/", "image/jpeg", "image/jpeg"},
		{"noext", "image/", "image/jpeg", "image/jpeg"},
		{"a.csv", "image/", "image/jpeg", "image/jpeg"},
		{"out.csv", "", "application/octet-stream", "text/csv"},
		{"out.json", "", "application/octet-stream", "application/json"},
	}
	for _, tc := range tests {
		if got := MediaTypeByExt(tc.name, tc.prefix, tc.fallback); got != tc.want {
			t.Fatalf("MediaTypeByExt(%q, %q) = %q, want %q", tc.name, tc.prefix, got, tc.want)
		}
	}
}

func TestFormFileHeaderEscapesFilename(t *testing.T) {
	h := FormFileHeader("image", `a"b\c.jpg`, "image/jpeg")
	_, params, err := mime.ParseMediaType(h.Get("Content-Disposition"))
	if err != nil {
		t.Fatalf("parse content disposition: %v", err)
	}
	if params["name"] != "image" || params["filename"] != `a"b\c.jpg` {
		t.Fatalf("unexpected params: %v", params)
	}
	if h.Get("Content-Type") != "image/jpeg" {
		t.Fatalf("unexpected content type: %q", h.Get("Content-Type"))
	}
}
