package research

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultPerSourceCap = 5
	maxBodyBytes        = 4 << 20
	userAgent           = "WoodenDutchNewsroom/1.0 (+https://thewoodendutch.com)"
)

// Source is one external headline feed. Primary is tried first; Fallback
// only when Primary yields nothing. Each pattern's first group is the headline.
type Source struct {
	Name     string
	URL      string
	Label    string
	Primary  *regexp.Regexp
	Fallback *regexp.Regexp
}

// DefaultSources are the industry outlets the newsroom reads.
func DefaultSources() []Source {
	return []Source{
		{
			Name:     "Loadstar",
			URL:      "https://theloadstar.com/feed/",
			Label:    "The Loadstar",
			Primary:  regexp.MustCompile(`<item>[\s\S]*?<title><!\[CDATA\[(.*?)\]\]></title>`),
			Fallback: regexp.MustCompile(`<item>[\s\S]*?<title>(.*?)</title>`),
		},
		{
			Name:     "DCN",
			URL:      "https://www.thedcn.com.au/news/",
			Label:    "DCN",
			Primary:  regexp.MustCompile(`(?i)<h[23][^>]*class="[^"]*entry-title[^"]*"[^>]*>\s*<a[^>]*>(.*?)</a>`),
			Fallback: regexp.MustCompile(`(?i)<h[23][^>]*>\s*<a[^>]*>(.*?)</a>`),
		},
		{
			Name:     "FTA",
			URL:      "https://www.ftalliance.com.au/news/",
			Label:    "FTA",
			Primary:  regexp.MustCompile(`(?i)<h[23][^>]*>\s*<a[^>]*>(.*?)</a>`),
			Fallback: regexp.MustCompile(`(?i)<h[234][^>]*>(.*?)</h[234]>`),
		},
	}
}

// Aggregator fetches headlines from every source concurrently.
type Aggregator struct {
	Sources      []Source
	Client       *http.Client
	Timeout      time.Duration
	PerSourceCap int
	Logger       logrus.FieldLogger
	// OnSource, if set, observes each source's outcome.
	OnSource func(source string, headlines int, err error)
}

// NewAggregator uses the default sources, timeout and cap.
func NewAggregator(logger logrus.FieldLogger) *Aggregator {
	return &Aggregator{
		Sources:      DefaultSources(),
		Client:       &http.Client{},
		Timeout:      DefaultTimeout,
		PerSourceCap: DefaultPerSourceCap,
		Logger:       logger,
	}
}

// Fetch returns every headline that could be collected, labelled with its
// source and grouped in source order. It never fails; a source that errors,
// times out or parses to nothing contributes nothing.
func (a *Aggregator) Fetch(ctx context.Context) []string {
	results := make([][]string, len(a.Sources))

	var g errgroup.Group
	for i, src := range a.Sources {
		g.Go(func() error {
			headlines, err := a.fetchOne(ctx, src)
			if a.OnSource != nil {
				a.OnSource(src.Name, len(headlines), err)
			}
			if err != nil {
				a.logger().WithError(err).WithField("source", src.Name).Warn("research source failed")
				return nil
			}
			if len(headlines) == 0 {
				a.logger().WithField("source", src.Name).Warn("research source yielded no headlines")
			}
			results[i] = headlines
			return nil
		})
	}
	_ = g.Wait()

	var all []string
	for _, r := range results {
		all = append(all, r...)
	}
	a.logger().WithField("headlines", len(all)).Info("research complete")
	return all
}

func (a *Aggregator) fetchOne(ctx context.Context, src Source) ([]string, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: status %d", src.URL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return Extract(src, string(body), a.capacity()), nil
}

func (a *Aggregator) capacity() int {
	if a.PerSourceCap > 0 {
		return a.PerSourceCap
	}
	return DefaultPerSourceCap
}

func (a *Aggregator) logger() logrus.FieldLogger {
	if a.Logger == nil {
		return logrus.StandardLogger()
	}
	return a.Logger
}

var (
	innerTag = regexp.MustCompile(`<[^>]+>`)
	cdata    = regexp.MustCompile(`<!\[CDATA\[|\]\]>`)
)

// Extract applies src's patterns to body and returns at most limit
// labelled headlines.
func Extract(src Source, body string, limit int) []string {
	out := match(src.Primary, src.Label, body, limit)
	if len(out) == 0 && src.Fallback != nil {
		out = match(src.Fallback, src.Label, body, limit)
	}
	return out
}

func match(re *regexp.Regexp, label, body string, limit int) []string {
	if re == nil {
		return nil
	}
	var out []string
	for _, m := range re.FindAllStringSubmatch(body, -1) {
		if len(out) >= limit {
			break
		}
		if len(m) < 2 {
			continue
		}
		text := cdata.ReplaceAllString(m[1], "")
		text = innerTag.ReplaceAllString(text, "")
		text = strings.TrimSpace(html.UnescapeString(text))
		if text == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%s (%s)", text, label))
	}
	return out
}
