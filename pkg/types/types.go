package types

import (
	"time"
)

// FolderMimeType is the reserved mime type Drive uses to mark folders.
const FolderMimeType = "application/vnd.google-apps.folder"

// Object represents a remote Drive object. The well-known fields are typed;
// any other Drive-defined properties live in Extra.
type Object struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	MimeType     string            `json:"mime_type"`
	Parents      []string          `json:"parents"`
	Trashed      bool              `json:"trashed"`
	Size         int64             `json:"size"`
	Version      string            `json:"version"`
	ModifiedTime time.Time         `json:"modified_time"`
	MD5Checksum  string            `json:"md5_checksum,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// IsFolder reports whether the object is a folder.
func (o *Object) IsFolder() bool {
	return o.MimeType == FolderMimeType
}

// GetExtra returns a Drive-defined property outside the well-known set.
func (o *Object) GetExtra(key string) (string, bool) {
	v, ok := o.Extra[key]
	return v, ok
}

// SetExtra records a Drive-defined property outside the well-known set.
func (o *Object) SetExtra(key, value string) {
	if o.Extra == nil {
		o.Extra = make(map[string]string)
	}
	o.Extra[key] = value
}

// HasParent reports whether parentID is among the object's parent references.
func (o *Object) HasParent(parentID string) bool {
	for _, p := range o.Parents {
		if p == parentID {
			return true
		}
	}
	return false
}

// DirEntry is one child observed while listing a directory.
type DirEntry struct {
	ParentID     string    `json:"parent_id"`
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	IsDir        bool      `json:"is_dir"`
	Size         int64     `json:"size"`
	ModifiedTime time.Time `json:"modified_time"`
}

// Patch describes a partial update to a remote object. Nil pointer fields
// are left untouched.
type Patch struct {
	Title         *string  `json:"title,omitempty"`
	AddParents    []string `json:"add_parents,omitempty"`
	RemoveParents []string `json:"remove_parents,omitempty"`
	Trashed       *bool    `json:"trashed,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Title == nil && p.Trashed == nil &&
		len(p.AddParents) == 0 && len(p.RemoveParents) == 0
}

// CacheStats represents resolver cache performance statistics.
type CacheStats struct {
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	Invalidations uint64  `json:"invalidations"`
	Directories   int     `json:"directories"`
	Paths         int     `json:"paths"`
	HitRate       float64 `json:"hit_rate"`
}
