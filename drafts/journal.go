package drafts

import (
	"bufio"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	perrors "wooden_dutch/errors"
)

// JournalEntry records a CMS publish that happened before the draft was archived.
type JournalEntry struct {
	DraftID     string    `json:"draftId"`
	Filename    string    `json:"filename"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

func (s *Store) journalPath() string {
	return filepath.Join(s.Dir, journalName)
}

// AppendJournal appends e as one JSON line and syncs the file.
func (s *Store) AppendJournal(e JournalEntry) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return perrors.NewPersistence("publish journal", err)
	}
	f, err := os.OpenFile(s.journalPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return perrors.NewPersistence("publish journal", err)
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return perrors.NewPersistence("publish journal", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return perrors.NewPersistence("publish journal", err)
	}
	if err := f.Sync(); err != nil {
		return perrors.NewPersistence("publish journal", err)
	}
	return nil
}

// JournalLookup returns the latest journal entry for draftID.
func (s *Store) JournalLookup(draftID string) (*JournalEntry, bool, error) {
	f, err := os.Open(s.journalPath())
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var found *JournalEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// a torn final line from a crash mid-append
			continue
		}
		if e.DraftID == draftID {
			entry := e
			found = &entry
		}
	}
	if err := sc.Err(); err != nil {
		return nil, false, err
	}
	return found, found != nil, nil
}
