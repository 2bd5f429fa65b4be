// Package models defines the domain types for Open Me.
package models

// LockType controls how a letter becomes readable.
type LockType string

const (
	// LockHonor letters open on the reader's own confirmation.
	LockHonor LockType = "honor"
	// LockTime letters open once wall-clock time passes UnlockAt.
	LockTime LockType = "time"
)

// Valid reports whether t is a known lock type.
func (t LockType) Valid() bool {
	return t == LockHonor || t == LockTime
}

// MediaKind is the type of an attached media block.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// Valid reports whether k is a known media kind.
func (k MediaKind) Valid() bool {
	return k == MediaImage || k == MediaAudio || k == MediaVideo
}

// MediaBlock is a single piece of media rendered alongside the letter body.
type MediaBlock struct {
	Kind MediaKind `json:"kind" yaml:"kind"`
	Src  string    `json:"src" yaml:"src"`
	Alt  string    `json:"alt,omitempty" yaml:"alt,omitempty"`
}

// Letter is a single time-locked or honor-locked letter.
//
// UnlockAt is an ISO-8601 timestamp and is set iff LockType is LockTime.
// UpdatedAt and UpdatedBy are stamped by the letter store on every upsert.
type Letter struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Preview   string       `json:"preview"`
	Content   string       `json:"content"`
	LockType  LockType     `json:"lockType"`
	UnlockAt  string       `json:"unlockAt,omitempty"`
	Media     []MediaBlock `json:"media,omitempty"`
	UpdatedAt string       `json:"updatedAt,omitempty"`
	UpdatedBy string       `json:"updatedBy,omitempty"`
}

// Clone returns a deep copy of l so callers never share the media slice.
func (l Letter) Clone() Letter {
	out := l
	if l.Media != nil {
		out.Media = make([]MediaBlock, len(l.Media))
		copy(out.Media, l.Media)
	}
	return out
}
