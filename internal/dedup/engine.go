// Package dedup classifies incoming annotation entries against the notes
// already stored for a book, so repeated imports of the same (or an updated)
// export never create duplicate records.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shelfmark/shelfmark/internal/clippings"
	"github.com/shelfmark/shelfmark/internal/entities"
)

type Class string

const (
	// ClassUnique means no existing record matches; insert as new.
	ClassUnique Class = "unique"
	// ClassExact means the composite key including the content hash matched;
	// nothing to write.
	ClassExact Class = "exact"
	// ClassUpdate means book+location+kind matched but the content differs;
	// replace the existing record's text.
	ClassUpdate Class = "update"
	// ClassManualReview means the entry has no location and its content
	// matches more than one stored record; routed to review, never merged
	// silently.
	ClassManualReview Class = "manual_review"
)

// Classification is the dedup verdict for one incoming entry.
type Classification struct {
	Class    Class
	Existing *entities.Note // set for ClassExact and ClassUpdate
}

// ContentHash returns the hash of the normalized body text: case-folded,
// whitespace collapsed. Used as the degraded dedup key when no location is
// available.
func ContentHash(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Index holds the per-book lookup structures, built once per import session
// so classification stays O(1) amortized per entry.
type Index struct {
	byLocation map[string]*entities.Note
	byContent  map[string][]*entities.Note
}

// NewIndex builds an index over the notes already persisted for one book.
func NewIndex(existing []*entities.Note) *Index {
	ix := &Index{
		byLocation: make(map[string]*entities.Note),
		byContent:  make(map[string][]*entities.Note),
	}
	for _, n := range existing {
		ix.add(n)
	}
	return ix
}

func (ix *Index) add(n *entities.Note) {
	if n.LocationStart != nil {
		ix.byLocation[locationKey(*n.LocationStart, n.Type)] = n
	}
	hash := n.ContentHash
	if hash == "" {
		hash = ContentHash(n.Text)
	}
	key := contentKey(n.Type, hash)
	ix.byContent[key] = append(ix.byContent[key], n)
}

// Classify compares one incoming entry against the index.
//
// With a location the composite key is (location start, kind): an identical
// content hash is an exact duplicate, a different one is a content update.
// Without a location the key degrades to (kind, content hash); a single hit
// is exact, multiple hits are ambiguous and go to manual review.
func (ix *Index) Classify(entry clippings.RawEntry) Classification {
	hash := ContentHash(entry.Text)

	if entry.Location != nil {
		if existing, ok := ix.byLocation[locationKey(entry.Location.Start, entry.Type)]; ok {
			existingHash := existing.ContentHash
			if existingHash == "" {
				existingHash = ContentHash(existing.Text)
			}
			if existingHash == hash {
				return Classification{Class: ClassExact, Existing: existing}
			}
			return Classification{Class: ClassUpdate, Existing: existing}
		}
		return Classification{Class: ClassUnique}
	}

	matches := ix.byContent[contentKey(entry.Type, hash)]
	switch len(matches) {
	case 0:
		return Classification{Class: ClassUnique}
	case 1:
		return Classification{Class: ClassExact, Existing: matches[0]}
	default:
		return Classification{Class: ClassManualReview}
	}
}

// Observe registers a freshly inserted note so later entries of the same
// import are deduplicated within the file as well.
func (ix *Index) Observe(n *entities.Note) {
	ix.add(n)
}

// Reindex moves an updated note from its previous content key to the one for
// its current text. oldHash is the hash the note was indexed under before the
// update; without this, later location-less entries would still match the
// replaced content.
func (ix *Index) Reindex(n *entities.Note, oldHash string) {
	key := contentKey(n.Type, oldHash)
	matches := ix.byContent[key]
	for i, m := range matches {
		if m == n {
			ix.byContent[key] = append(matches[:i], matches[i+1:]...)
			break
		}
	}
	if len(ix.byContent[key]) == 0 {
		delete(ix.byContent, key)
	}
	ix.add(n)
}

func locationKey(start int, kind entities.NoteType) string {
	return fmt.Sprintf("%d|%s", start, kind)
}

func contentKey(kind entities.NoteType, hash string) string {
	return string(kind) + "|" + hash
}
