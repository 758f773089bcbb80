package drafts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "wooden_dutch/errors"
	"wooden_dutch/generator"
)

func fixedClock(ts string) func() time.Time {
	t, _ := time.Parse(time.RFC3339, ts)
	return func() time.Time { return t }
}

func newTestStore(t *testing.T, ts string) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "drafts")).WithClock(fixedClock(ts))
}

func sampleArticle(title string) (generator.Topic, generator.Article) {
	topic := generator.Topic{Headline: title, Subheadline: "sub", Angle: "angle", Tags: []string{"ports"}}
	article := generator.Article{
		Title:           title,
		HTML:            "<p>body</p>",
		MetaTitle:       title,
		MetaDescription: "sub",
		Tags:            []string{"ports"},
		AuthorName:      "Harrison Blake",
		AuthorSlug:      "harrison-blake",
	}
	return topic, article
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "port-of-l-a-declares-war-on-chassis", Slugify("Port of L.A. Declares War on Chassis!"))
	assert.Equal(t, "demurrage-2-0", Slugify("  --Demurrage 2.0--  "))
	assert.Equal(t, "", Slugify("!!!"))
	assert.Len(t, Slugify(strings.Repeat("abc ", 40)), 60)
}

func TestSave_WritesRecordAndCompanion(t *testing.T) {
	s := newTestStore(t, "2026-03-04T08:00:00Z")
	topic, article := sampleArticle("Carrier Blanks Itself")

	name, err := s.Save(topic, article, []byte{0xFF, 0xD8, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-04_carrier-blanks-itself.json", name)

	raw, err := os.ReadFile(filepath.Join(s.Dir, name))
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "draft", fields["status"])
	assert.Nil(t, fields["publishedAt"])
	assert.Nil(t, fields["ghostUrl"])
	assert.NotEmpty(t, fields["id"])

	img, ok := s.CompanionImage(name)
	require.True(t, ok)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, img)
}

func TestSave_NameCollisionGetsSuffix(t *testing.T) {
	s := newTestStore(t, "2026-03-04T08:00:00Z")
	topic, article := sampleArticle("Same Title")

	first, err := s.Save(topic, article, nil)
	require.NoError(t, err)
	second, err := s.Save(topic, article, nil)
	require.NoError(t, err)

	assert.Equal(t, "2026-03-04_same-title.json", first)
	assert.Equal(t, "2026-03-04_same-title-2.json", second)
	_, ok := s.CompanionImage(first)
	assert.False(t, ok)
}

func TestList_NewestFirstSkipsJunk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "drafts")
	s := NewStore(dir)
	for _, ts := range []string{"2026-01-01T00:00:00Z", "2026-02-01T00:00:00Z"} {
		topic, article := sampleArticle("Story " + ts[:7])
		_, err := s.WithClock(fixedClock(ts)).Save(topic, article, nil)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, strings.HasPrefix(entries[0].Filename, "2026-02-01_"))
	assert.True(t, strings.HasPrefix(entries[1].Filename, "2026-01-01_"))
}

func TestList_MissingDirIsEmpty(t *testing.T) {
	entries, err := NewStore(filepath.Join(t.TempDir(), "nope")).List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFind(t *testing.T) {
	s := newTestStore(t, "2026-03-04T08:00:00Z")
	a1, a2 := "Rail Strike Ends", "Rail Strike Resumes"
	ta, aa := sampleArticle(a1)
	tb, ab := sampleArticle(a2)
	n1, err := s.Save(ta, aa, nil)
	require.NoError(t, err)
	_, err = s.Save(tb, ab, nil)
	require.NoError(t, err)

	all, err := s.Find(MatchAll)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byName, err := s.Find(n1)
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, a1, byName[0].Draft.Article.Title)

	bySubstring, err := s.Find("rail-strike")
	require.NoError(t, err)
	assert.Len(t, bySubstring, 2)

	byID, err := s.Find(byName[0].Draft.ID[:8])
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, n1, byID[0].Filename)

	none, err := s.Find("zzz-no-match")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLoad(t *testing.T) {
	s := newTestStore(t, "2026-03-04T08:00:00Z")

	_, err := s.Load("missing.json")
	assert.True(t, perrors.Is(err, perrors.ErrNotFound))

	_, err = s.Load("../escape.json")
	assert.True(t, perrors.Is(err, perrors.ErrInvalidRequest))
}

func TestMarkPublished_MovesRecordAndImages(t *testing.T) {
	s := newTestStore(t, "2026-03-04T08:00:00Z")
	topic, article := sampleArticle("Quay Crane Unionises")
	name, err := s.Save(topic, article, []byte("jpeg"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(s.ImagesDir, 0o755))
	staged := s.StagedImagePath(article.Title)
	require.NoError(t, os.WriteFile(staged, []byte("jpeg"), 0o644))

	at := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkPublished(name, "https://news.example.com/quay/", at))

	active, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, active)
	_, ok := s.CompanionImage(name)
	assert.False(t, ok)
	assert.NoFileExists(t, staged)

	published, err := s.ListPublished()
	require.NoError(t, err)
	require.Len(t, published, 1)
	d := published[0].Draft
	assert.Equal(t, StatusPublished, d.Status)
	require.NotNil(t, d.PublishedAt)
	assert.True(t, at.Equal(*d.PublishedAt))
	require.NotNil(t, d.GhostURL)
	assert.Equal(t, "https://news.example.com/quay/", *d.GhostURL)

	err = s.MarkPublished(name, "x", at)
	assert.True(t, perrors.Is(err, perrors.ErrNotFound))
}

func TestMarkPublished_ArchiveFailureKeepsActive(t *testing.T) {
	s := newTestStore(t, "2026-03-04T08:00:00Z")
	topic, article := sampleArticle("Archive Blocked")
	name, err := s.Save(topic, article, nil)
	require.NoError(t, err)
	// a regular file where the archive directory should be
	require.NoError(t, os.WriteFile(s.PublishedDir, []byte("not a dir"), 0o644))

	err = s.MarkPublished(name, "https://x/", time.Now())
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrPersistence))

	d, err := s.Load(name)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, d.Status)
}

func TestSave_AvoidsArchivedNames(t *testing.T) {
	s := newTestStore(t, "2026-10-18T08:00:00Z")
	topic, article := sampleArticle("Same Title")
	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	first, err := s.Save(topic, article, nil)
	require.NoError(t, err)
	firstDraft, err := s.Load(first)
	require.NoError(t, err)
	require.NoError(t, s.MarkPublished(first, "https://news.example.com/one/", at))

	second, err := s.Save(topic, article, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	require.NoError(t, s.MarkPublished(second, "https://news.example.com/two/", at))

	published, err := s.ListPublished()
	require.NoError(t, err)
	require.Len(t, published, 2)
	ids := []string{published[0].Draft.ID, published[1].Draft.ID}
	assert.Contains(t, ids, firstDraft.ID)
}

func TestMarkPublished_NeverOverwritesAnotherArchivedDraft(t *testing.T) {
	s := newTestStore(t, "2026-10-18T08:00:00Z")
	topic, article := sampleArticle("Same Title")
	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	name, err := s.Save(topic, article, nil)
	require.NoError(t, err)
	// an older archived record already sits under the same name
	require.NoError(t, os.MkdirAll(s.PublishedDir, 0o755))
	old := Draft{ID: "older-draft", Article: article, Status: StatusPublished}
	require.NoError(t, s.write(filepath.Join(s.PublishedDir, name), old))

	require.NoError(t, s.MarkPublished(name, "https://news.example.com/new/", at))

	kept, err := readDraft(filepath.Join(s.PublishedDir, name))
	require.NoError(t, err)
	assert.Equal(t, "older-draft", kept.ID)

	suffixed := strings.TrimSuffix(name, ".json") + "-2.json"
	moved, err := readDraft(filepath.Join(s.PublishedDir, suffixed))
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, moved.Status)
	require.NotNil(t, moved.GhostURL)
	assert.Equal(t, "https://news.example.com/new/", *moved.GhostURL)
}

func TestJournal(t *testing.T) {
	s := newTestStore(t, "2026-03-04T08:00:00Z")

	_, ok, err := s.JournalLookup("abc")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendJournal(JournalEntry{DraftID: "abc", Filename: "a.json", URL: "https://one/", PublishedAt: at}))
	require.NoError(t, s.AppendJournal(JournalEntry{DraftID: "def", Filename: "d.json", URL: "https://two/", PublishedAt: at}))

	// torn trailing line
	f, err := os.OpenFile(filepath.Join(s.Dir, journalName), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"draftId":"abc","url":`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	e, ok, err := s.JournalLookup("abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://one/", e.URL)
	assert.Equal(t, "a.json", e.Filename)

	entries, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, entries, "journal is not a draft")
}
