package clippings

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shelfmark/shelfmark/internal/entities"
)

const entrySeparator = "=========="

// ErrBudgetExceeded is returned when the number of malformed blocks passes
// the configured error budget and the whole parse is rejected.
var ErrBudgetExceeded = fmt.Errorf("malformed entry budget exceeded")

// RawEntry is the ephemeral parse output for one annotation block. It is
// consumed by the association and dedup stages and never persisted directly.
type RawEntry struct {
	Title    string
	Author   string
	Type     entities.NoteType
	Page     *int
	Location *Location
	AddedAt  time.Time
	Text     string
	Seq      int
}

// BookKey returns the normalized grouping key for the entry's book.
func (e RawEntry) BookKey() string {
	return entities.BookKey(e.Title, e.Author)
}

// SkippedBlock describes one malformed block that was dropped with a warning.
type SkippedBlock struct {
	Index  int
	Reason string
}

// Result aggregates tokenizer output. For any input,
// len(Entries) + len(Skipped) == Blocks.
type Result struct {
	Entries  []RawEntry
	Skipped  []SkippedBlock
	Warnings []string
	Blocks   int
}

// Tokenizer splits a raw clippings export into RawEntry values.
//
// Each block is expected to look like:
//
//	Title (Author)
//	- Your Highlight on page 34 | location 512-514 | Added on Monday, January 1, 2024 10:00:00 AM
//
//	body text
//
// Looser fallback patterns absorb minor format drift in both the title line
// and the metadata line. Malformed blocks are skipped and counted, up to
// ErrorBudget; past the budget the whole parse fails.
type Tokenizer struct {
	// ErrorBudget is the number of malformed blocks tolerated before the
	// parse is rejected as a whole. Zero means no tolerance.
	ErrorBudget int

	// Now supplies the fallback timestamp for unparseable dates. Defaults
	// to time.Now.
	Now func() time.Time
}

func NewTokenizer(errorBudget int) *Tokenizer {
	return &Tokenizer{ErrorBudget: errorBudget, Now: time.Now}
}

var (
	// Strict metadata line:
	// "- Your Highlight on page 8 | location 64-64 | Added on Tuesday, April 15, 2025 10:16:21 PM"
	strictMetadataPattern = regexp.MustCompile(`^- Your (Highlight|Note|Bookmark) on page (\d+)(?:-\d+)? \| locations? (\d+(?:-\d+)?) \| Added on (.+)$`)

	// Loose fallbacks, matched independently:
	// "- Your Bookmark at location 346 | Added on Saturday, 26 March 2016 15:46:21"
	kindPattern     = regexp.MustCompile(`(?i)^- Your (Highlight|Note|Bookmark)`)
	pagePattern     = regexp.MustCompile(`(?i)(?:on )?page (\d+)(?:-(\d+))?`)
	locationPattern = regexp.MustCompile(`(?i)(?:at )?locations? (\d+(?:-\d+)?)`)
	addedOnPattern  = regexp.MustCompile(`(?i)added on (.+)$`)

	// "Book Title (Author Name)". Some books carry no author parentheses.
	titleAuthorPattern = regexp.MustCompile(`^(.+?)\s*\(([^)]+)\)\s*$`)
)

// Tokenize reads the export and produces one RawEntry per well-formed block.
// Only an I/O error or an exceeded error budget fails the parse.
func (t *Tokenizer) Tokenize(r io.Reader) (*Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	res := &Result{}
	var block []string

	flush := func() {
		if len(block) == 0 {
			return
		}
		res.Blocks++
		entry, warnings, err := t.parseBlock(block, res.Blocks-1)
		if err != nil {
			res.Skipped = append(res.Skipped, SkippedBlock{Index: res.Blocks - 1, Reason: err.Error()})
		} else {
			res.Entries = append(res.Entries, *entry)
		}
		res.Warnings = append(res.Warnings, warnings...)
		block = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == entrySeparator {
			flush()
			continue
		}
		// Leading blank lines between separator and title are not content.
		if len(block) == 0 && strings.TrimSpace(line) == "" {
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read clippings: %w", err)
	}
	// The last block when the file does not end with a separator.
	flush()

	if len(res.Skipped) > t.ErrorBudget {
		return nil, fmt.Errorf("%w: %d malformed blocks (budget %d): first: %s",
			ErrBudgetExceeded, len(res.Skipped), t.ErrorBudget, res.Skipped[0].Reason)
	}

	return res, nil
}

func (t *Tokenizer) parseBlock(lines []string, seq int) (*RawEntry, []string, error) {
	if len(lines) < 2 {
		return nil, nil, fmt.Errorf("block %d: too short", seq)
	}

	titleLine := strings.TrimSpace(lines[0])
	if titleLine == "" {
		return nil, nil, fmt.Errorf("block %d: empty title line", seq)
	}
	title, author := parseTitleAuthor(titleLine)

	metadataLine := strings.TrimSpace(lines[1])
	entry, warnings, err := t.parseMetadata(metadataLine, seq)
	if err != nil {
		return nil, nil, err
	}
	entry.Title = title
	entry.Author = author
	entry.Seq = seq

	entry.Text = collectBody(lines[2:])
	if entry.Text == "" && entry.Type != entities.NoteTypeBookmark {
		return nil, warnings, fmt.Errorf("block %d: empty body for %s", seq, entry.Type)
	}

	return entry, warnings, nil
}

// parseMetadata extracts kind, page, location and timestamp. The strict
// pattern is tried first; on miss the loose component patterns take over so
// that format drift degrades the fields rather than the block.
func (t *Tokenizer) parseMetadata(line string, seq int) (*RawEntry, []string, error) {
	var warnings []string
	entry := &RawEntry{}

	if m := strictMetadataPattern.FindStringSubmatch(line); m != nil {
		entry.Type = kindFromString(m[1])
		if page, err := strconv.Atoi(m[2]); err == nil {
			entry.Page = &page
		}
		entry.Location = ParseLocationRange(m[3])
		entry.AddedAt, warnings = t.parseDate(m[4], seq, warnings)
		return entry, warnings, nil
	}

	km := kindPattern.FindStringSubmatch(line)
	if km == nil {
		return nil, nil, fmt.Errorf("block %d: unrecognized metadata line", seq)
	}
	entry.Type = kindFromString(km[1])

	if pm := pagePattern.FindStringSubmatch(line); pm != nil {
		if page, err := strconv.Atoi(pm[1]); err == nil {
			entry.Page = &page
		}
	}
	if lm := locationPattern.FindStringSubmatch(line); lm != nil {
		entry.Location = ParseLocationRange(lm[1])
	}
	if entry.Location == nil {
		warnings = append(warnings, fmt.Sprintf("block %d: no usable location", seq))
	}

	dateText := ""
	if am := addedOnPattern.FindStringSubmatch(line); am != nil {
		dateText = am[1]
	}
	entry.AddedAt, warnings = t.parseDate(dateText, seq, warnings)

	return entry, warnings, nil
}

func (t *Tokenizer) parseDate(s string, seq int, warnings []string) (time.Time, []string) {
	if ts, ok := ParseAddedDate(s); ok {
		return ts, warnings
	}
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	warnings = append(warnings, fmt.Sprintf("block %d: unparseable date %q, using processing time", seq, s))
	return now(), warnings
}

func parseTitleAuthor(line string) (title, author string) {
	if m := titleAuthorPattern.FindStringSubmatch(line); len(m) == 3 {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	// Loose fallback: whole line is the title.
	return strings.TrimSpace(line), ""
}

func kindFromString(s string) entities.NoteType {
	switch strings.ToLower(s) {
	case "note":
		return entities.NoteTypeNote
	case "bookmark":
		return entities.NoteTypeBookmark
	default:
		return entities.NoteTypeHighlight
	}
}

// collectBody joins the content lines after the metadata line. The first
// blank line separates metadata from content; everything after it is body.
func collectBody(lines []string) string {
	var textLines []string
	started := false
	for _, line := range lines {
		if !started && strings.TrimSpace(line) == "" {
			started = true
			continue
		}
		if started || strings.TrimSpace(line) != "" {
			started = true
			textLines = append(textLines, line)
		}
	}
	return strings.TrimSpace(strings.Join(textLines, "\n"))
}
