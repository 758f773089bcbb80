package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"wooden_dutch/drafts"
	"wooden_dutch/generator"
	"wooden_dutch/history"
	"wooden_dutch/imagegen"
	"wooden_dutch/metrics"
	"wooden_dutch/persona"
	"wooden_dutch/publisher"
)

const (
	candidatesJSON = `{"candidates":[
 {"headline":"Port Of Rotterdam Announces Fourth Consecutive 'Temporary' Surcharge","subheadline":"Fourth time lucky","angle":"A surcharge that never ends.","tags":["ports","surcharges"]},
 {"headline":"Forwarder Replaces Tracking Page With Horoscope","subheadline":"Stars align for Q3","angle":"Visibility through astrology.","tags":["visibility"]},
 {"headline":"Shipping Line Declares Blank Sailing Its Most Reliable Service","subheadline":"","angle":"Schedule reliability reaches 100 percent by not sailing.","tags":["liner","reliability"]}]}`
	assignJSON  = `{"authorId":"dakota-chen","reasoning":"tech beat"}`
	articleHTML = "<p>ROTTERDAM - Something happened.</p>\n<p>It kept happening.</p>"
)

func selectJSON(i int) string {
	return fmt.Sprintf(`{"selectedIndex":%d,"reasoning":"freshest"}`, i)
}

func reviewJSON(score int) string {
	q := "good"
	if score < ApprovalScore {
		q = "weak"
	}
	return fmt.Sprintf(`{"score":%d,"toneCorrect":true,"wordCountOk":true,"satireQuality":%q,"htmlValid":true,"feedback":"tighten the kicker"}`, score, q)
}

// scriptedLLM replays canned responses per contract name; "" is free text.
// An exhausted queue repeats its last response.
type scriptedLLM struct {
	mu        sync.Mutex
	responses map[string][]string
	calls     map[string]int
	prompts   []generator.Prompt
}

func newScriptedLLM(responses map[string][]string) *scriptedLLM {
	return &scriptedLLM{responses: responses, calls: map[string]int{}}
}

func (s *scriptedLLM) next(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
	queue := s.responses[name]
	switch len(queue) {
	case 0:
		return ""
	case 1:
		return queue[0]
	}
	s.responses[name] = queue[1:]
	return queue[0]
}

func (s *scriptedLLM) Complete(_ context.Context, p generator.Prompt) (string, error) {
	s.prompts = append(s.prompts, p)
	return s.next(""), nil
}

func (s *scriptedLLM) CompleteStructured(_ context.Context, p generator.Prompt, c generator.Contract) ([]byte, error) {
	s.prompts = append(s.prompts, p)
	return []byte(s.next(c.Name)), nil
}

func happyScript(review ...string) map[string][]string {
	if len(review) == 0 {
		review = []string{reviewJSON(8)}
	}
	return map[string][]string{
		"TopicCandidates":  {candidatesJSON},
		"TopicSelection":   {selectJSON(1)},
		"AuthorAssignment": {assignJSON},
		"EditorialReview":  review,
		"":                 {articleHTML},
	}
}

type fakeCMS struct {
	mu         sync.Mutex
	published  []generator.Article
	uploads    int
	publishErr error
	uploadErr  error
	tested     int
}

func (f *fakeCMS) TestConnection(context.Context) (*publisher.Site, error) {
	f.tested++
	return &publisher.Site{Title: "The Wooden Dutch"}, nil
}

func (f *fakeCMS) PublishArticle(_ context.Context, a generator.Article) (*publisher.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.published = append(f.published, a)
	return &publisher.Post{ID: "p1", URL: "http://ghost.test/" + drafts.Slugify(a.Title) + "/"}, nil
}

func (f *fakeCMS) UploadImage(_ context.Context, _ []byte, filename string) (string, error) {
	f.uploads++
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "http://ghost.test/content/images/" + filename, nil
}

type fakeImages struct {
	data []byte
	err  error
}

func (f fakeImages) Generate(context.Context, string) ([]byte, error) {
	return f.data, f.err
}

type staticResearch []string

func (s staticResearch) Fetch(context.Context) []string { return s }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type harness struct {
	orch    *Orchestrator
	llm     *scriptedLLM
	cms     *fakeCMS
	store   *drafts.Store
	topics  *history.Queue
	authors *history.Queue
	out     *bytes.Buffer
	hook    *test.Hook
	metrics *metrics.Metrics
	dir     string
}

func newHarness(t *testing.T, script map[string][]string, images imagegen.Generator) *harness {
	t.Helper()
	dir := t.TempDir()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	llm := newScriptedLLM(script)
	agent, err := generator.NewAgent(llm)
	require.NoError(t, err)

	h := &harness{
		llm:     llm,
		cms:     &fakeCMS{},
		store:   drafts.NewStore(dir + "/drafts"),
		topics:  history.NewFileQueue("topics", dir+"/topics-used.json", history.TopicsCap),
		authors: history.NewFileQueue("authors", dir+"/authors-recent.json", history.AuthorsCap),
		out:     &bytes.Buffer{},
		hook:    hook,
		metrics: metrics.New(),
		dir:     dir,
	}
	h.orch, err = New(Deps{
		Agent:    agent,
		Personas: persona.Default(),
		Research: staticResearch{"Rates slide again (The Loadstar)"},
		Topics:   h.topics,
		Authors:  h.authors,
		Drafts:   h.store,
		Images:   images,
		CMS:      h.cms,
		Metrics:  h.metrics,
		Logger:   logger,
		Out:      h.out,
	})
	require.NoError(t, err)
	h.orch.InterRunDelay = 0
	return h
}

func (h *harness) warnings() []string {
	var out []string
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			out = append(out, e.Message)
		}
	}
	return out
}

var errBoom = errors.New("boom")
