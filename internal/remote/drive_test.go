package remote

import (
	"testing"
	"time"

	drive "google.golang.org/api/drive/v3"
)

func TestRangeHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		offset, length int64
		want           string
	}{
		{0, -1, "bytes=0-"},
		{100, -1, "bytes=100-"},
		{0, 10, "bytes=0-9"},
		{5, 3, "bytes=5-7"},
	}
	for _, tt := range tests {
		if got := rangeHeader(tt.offset, tt.length); got != tt.want {
			t.Errorf("rangeHeader(%d, %d) = %q, want %q", tt.offset, tt.length, got, tt.want)
		}
	}
}

func TestEscapeQueryTerm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"it's", `it\'s`},
		{"''", `\'\'`},
	}
	for _, tt := range tests {
		if got := escapeQueryTerm(tt.in); got != tt.want {
			t.Errorf("escapeQueryTerm(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFromDriveFile(t *testing.T) {
	t.Parallel()

	f := &drive.File{
		Id:           "abc",
		Name:         "report.txt",
		MimeType:     "text/plain",
		Parents:      []string{"p1"},
		Size:         42,
		Version:      7,
		Md5Checksum:  "d41d8cd9",
		ModifiedTime: "2024-06-01T10:30:00Z",
	}
	obj := fromDriveFile(f)
	if obj.ID != "abc" || obj.Title != "report.txt" || obj.Size != 42 {
		t.Errorf("fromDriveFile = %+v", obj)
	}
	if obj.Version != "7" {
		t.Errorf("Version = %q, want \"7\"", obj.Version)
	}
	if obj.MD5Checksum != "d41d8cd9" {
		t.Errorf("MD5Checksum = %q", obj.MD5Checksum)
	}
	want := time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)
	if !obj.ModifiedTime.Equal(want) {
		t.Errorf("ModifiedTime = %v, want %v", obj.ModifiedTime, want)
	}
	if obj.IsFolder() {
		t.Error("text file reported as folder")
	}

	folder := fromDriveFile(&drive.File{Id: "d", MimeType: "application/vnd.google-apps.folder"})
	if !folder.IsFolder() {
		t.Error("folder mime type not detected")
	}
}
