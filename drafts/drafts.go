package drafts

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	perrors "wooden_dutch/errors"
	"wooden_dutch/fsutil"
	"wooden_dutch/generator"
)

// Status of a draft record. A draft only ever moves draft -> published.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// MatchAll selects every active draft.
const MatchAll = "all"

const (
	maxSlugLen  = 60
	journalName = "publish-journal.jsonl"
)

// Draft is a saved article awaiting publication.
type Draft struct {
	ID          string            `json:"id"`
	GeneratedAt time.Time         `json:"generatedAt"`
	Topic       generator.Topic   `json:"topic"`
	Article     generator.Article `json:"article"`
	Status      Status            `json:"status"`
	PublishedAt *time.Time        `json:"publishedAt"`
	GhostURL    *string           `json:"ghostUrl"`
}

// Entry pairs a draft with its file name.
type Entry struct {
	Filename string
	Draft    Draft
}

// Store keeps drafts as JSON files. Active drafts live in Dir, archived
// ones in PublishedDir, staged images in ImagesDir.
type Store struct {
	Dir          string
	PublishedDir string
	ImagesDir    string

	now func() time.Time
}

// NewStore lays the store out under draftsDir.
func NewStore(draftsDir string) *Store {
	return &Store{
		Dir:          draftsDir,
		PublishedDir: filepath.Join(draftsDir, "published"),
		ImagesDir:    filepath.Join(draftsDir, "images"),
		now:          time.Now,
	}
}

// WithClock overrides the time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases text, collapses runs of other characters into a single
// dash, trims dashes and caps the result at 60 characters.
func Slugify(text string) string {
	slug := nonSlug.ReplaceAllString(strings.ToLower(text), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	return slug
}

// StagedImagePath is where save-only runs stage a feature image for title.
func (s *Store) StagedImagePath(title string) string {
	return filepath.Join(s.ImagesDir, Slugify(title)+".jpg")
}

// Save writes a new draft record, plus a companion .jpg when image is
// non-empty, and returns the record's file name.
func (s *Store) Save(topic generator.Topic, article generator.Article, image []byte) (string, error) {
	now := s.now().UTC()
	d := Draft{
		ID:          uuid.NewString(),
		GeneratedAt: now,
		Topic:       topic,
		Article:     article,
		Status:      StatusDraft,
	}

	slug := Slugify(article.Title)
	if slug == "" {
		slug = "untitled"
	}
	base := fmt.Sprintf("%s_%s", now.Format("2006-01-02"), slug)
	filename := base + ".json"
	for n := 2; s.exists(filename); n++ {
		filename = fmt.Sprintf("%s-%d.json", base, n)
	}

	if err := s.write(filepath.Join(s.Dir, filename), d); err != nil {
		return "", perrors.NewPersistence("draft "+filename, err)
	}
	if len(image) > 0 {
		if err := fsutil.WriteFileAtomic(s.companionPath(filename), image, 0o644); err != nil {
			return filename, perrors.NewPersistence("draft image", err)
		}
	}
	return filename, nil
}

// exists reports whether filename is taken by an active or archived draft.
func (s *Store) exists(filename string) bool {
	for _, dir := range []string{s.Dir, s.PublishedDir} {
		if _, err := os.Stat(filepath.Join(dir, filename)); err == nil {
			return true
		}
	}
	return false
}

// archiveName picks the archive file name for d. An archived record with the
// same id is replaced; a different draft under that name is never overwritten.
func (s *Store) archiveName(filename string, d *Draft) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	name := filename
	for n := 2; ; n++ {
		path := filepath.Join(s.PublishedDir, name)
		if _, err := os.Stat(path); err != nil {
			return name
		}
		if prev, err := readDraft(path); err == nil && prev.ID == d.ID {
			return name
		}
		name = fmt.Sprintf("%s-%d.json", base, n)
	}
}

func (s *Store) write(path string, d Draft) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// List returns active drafts, newest file name first. Unreadable records are skipped.
func (s *Store) List() ([]Entry, error) {
	return s.list(s.Dir)
}

// ListPublished returns archived drafts, newest file name first.
func (s *Store) ListPublished() ([]Entry, error) {
	return s.list(s.PublishedDir)
}

func (s *Store) list(dir string) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		names = append(names, f.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		d, err := readDraft(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Filename: name, Draft: *d})
	}
	return entries, nil
}

func readDraft(path string) (*Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &d, nil
}

// Load reads one active draft by file name.
func (s *Store) Load(filename string) (*Draft, error) {
	if filename != filepath.Base(filename) {
		return nil, perrors.NewInvalidRequest(fmt.Sprintf("invalid draft file name %q", filename))
	}
	d, err := readDraft(filepath.Join(s.Dir, filename))
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, perrors.NewNotFound(filename)
		}
		return nil, err
	}
	return d, nil
}

// Find selects active drafts matching pattern: "all", an exact file name,
// a file name substring, or an id prefix.
func (s *Store) Find(pattern string) ([]Entry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	if pattern == MatchAll {
		return entries, nil
	}
	if pattern == "" {
		return nil, nil
	}
	var out []Entry
	for _, e := range entries {
		if e.Filename == pattern || strings.Contains(e.Filename, pattern) || strings.HasPrefix(e.Draft.ID, pattern) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) companionPath(filename string) string {
	return filepath.Join(s.Dir, strings.TrimSuffix(filename, filepath.Ext(filename))+".jpg")
}

// CompanionImage returns the feature image saved alongside filename, if any.
func (s *Store) CompanionImage(filename string) ([]byte, bool) {
	data, err := os.ReadFile(s.companionPath(filename))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// MarkPublished stamps the draft as published, writes it to the archive
// (under a suffixed name if another draft already holds filename there),
// then removes the active record, its companion image and any staged image.
// The archive write happens first so a failure leaves the active record intact.
func (s *Store) MarkPublished(filename, url string, publishedAt time.Time) error {
	d, err := s.Load(filename)
	if err != nil {
		return err
	}
	if d.Status == StatusPublished {
		return perrors.NewInvalidRequest(fmt.Sprintf("draft %s is already published", filename))
	}

	at := publishedAt.UTC()
	d.Status = StatusPublished
	d.PublishedAt = &at
	d.GhostURL = &url

	archived := s.archiveName(filename, d)
	if err := s.write(filepath.Join(s.PublishedDir, archived), *d); err != nil {
		return perrors.NewPersistence("archived draft "+archived, err)
	}
	if err := os.Remove(filepath.Join(s.Dir, filename)); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return perrors.NewPersistence("active draft removal "+filename, err)
	}
	// images are best effort once the record has moved
	_ = os.Remove(s.companionPath(filename))
	_ = os.Remove(s.StagedImagePath(d.Article.Title))
	return nil
}
