// Package associate links note annotations to the highlights they comment
// on. The match is location adjacency, not file order: a note belongs to the
// highlight whose range ends exactly where the note starts.
package associate

import (
	"sort"

	"github.com/shelfmark/shelfmark/internal/entities"
)

// Result describes one association pass over a book's notes.
type Result struct {
	// Changed holds notes whose AssociatedHighlightID differs from before
	// the pass and need persisting.
	Changed []*entities.Note
	// Associated counts note-type records that ended the pass linked.
	Associated int
	// Standalone counts note-type records that ended the pass unlinked.
	Standalone int
}

// Resolve recomputes associations for all notes of one book, in place.
//
// A note matches the highlight whose location end (or start, when the range
// is open) equals the note's location start. Each highlight is claimed at
// most once per pass; notes are visited in location order, then insertion
// order, so the earliest note wins a contested highlight and later ones stay
// standalone. Notes without a location are unlinkable.
func Resolve(notes []*entities.Note) Result {
	var res Result

	// Highlights indexed by effective end position, earliest location first
	// so adjacency ties resolve deterministically.
	byEnd := make(map[int][]*entities.Note)
	for _, n := range notes {
		if n.Type != entities.NoteTypeHighlight || n.LocationStart == nil {
			continue
		}
		end := *n.LocationStart
		if n.LocationEnd != nil {
			end = *n.LocationEnd
		}
		byEnd[end] = append(byEnd[end], n)
	}
	for _, group := range byEnd {
		sort.Slice(group, func(i, j int) bool {
			if *group[i].LocationStart != *group[j].LocationStart {
				return *group[i].LocationStart < *group[j].LocationStart
			}
			return group[i].ID < group[j].ID
		})
	}

	var noteRecords []*entities.Note
	for _, n := range notes {
		if n.Type == entities.NoteTypeNote {
			noteRecords = append(noteRecords, n)
		}
	}
	sort.Slice(noteRecords, func(i, j int) bool {
		li, lj := noteRecords[i].LocationStart, noteRecords[j].LocationStart
		switch {
		case li == nil && lj == nil:
			return noteRecords[i].ID < noteRecords[j].ID
		case li == nil:
			return false
		case lj == nil:
			return true
		case *li != *lj:
			return *li < *lj
		default:
			return noteRecords[i].ID < noteRecords[j].ID
		}
	})

	claimed := make(map[uint]bool)
	for _, note := range noteRecords {
		prev := note.AssociatedHighlightID
		note.AssociatedHighlightID = nil

		if note.LocationStart != nil {
			for _, h := range byEnd[*note.LocationStart] {
				if h.ID == note.ID || claimed[h.ID] {
					continue
				}
				id := h.ID
				note.AssociatedHighlightID = &id
				claimed[h.ID] = true
				break
			}
		}

		if note.AssociatedHighlightID != nil {
			res.Associated++
		} else {
			res.Standalone++
		}
		if !sameRef(prev, note.AssociatedHighlightID) {
			res.Changed = append(res.Changed, note)
		}
	}

	return res
}

func sameRef(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
