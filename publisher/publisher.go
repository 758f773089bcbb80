package publisher

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	perrors "wooden_dutch/errors"
	"wooden_dutch/generator"
)

const (
	adminPath     = "/ghost/api/admin"
	acceptVersion = "v5.0"
	tokenTTL      = 5 * time.Minute
)

// Config holds the Ghost admin API credentials and publishing flags.
type Config struct {
	URL           string
	AdminAPIKey   string // "<id>:<hex secret>"
	AutoPublish   bool
	AssignAuthors bool
}

// Site is the subset of Ghost site metadata used for connection checks.
type Site struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Version string `json:"version"`
}

// Post is the subset of a created Ghost post the pipeline needs.
type Post struct {
	ID     string `json:"id"`
	UUID   string `json:"uuid"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

type tag struct {
	Name string `json:"name"`
}

type author struct {
	Slug string `json:"slug"`
}

type postPayload struct {
	Title           string   `json:"title"`
	HTML            string   `json:"html"`
	MetaTitle       string   `json:"meta_title,omitempty"`
	MetaDescription string   `json:"meta_description,omitempty"`
	Tags            []tag    `json:"tags,omitempty"`
	Authors         []author `json:"authors,omitempty"`
	Status          string   `json:"status"`
	FeatureImage    string   `json:"feature_image,omitempty"`
	FeatureImageAlt string   `json:"feature_image_alt,omitempty"`
}

type ghostErrors struct {
	Errors []struct {
		Message string `json:"message"`
		Context string `json:"context"`
		Type    string `json:"type"`
	} `json:"errors"`
}

// Publisher talks to the Ghost admin API.
type Publisher struct {
	cfg      Config
	keyID    string
	secret   []byte
	client   *http.Client
	executor failsafe.Executor[*http.Response]
	logger   logrus.FieldLogger
	now      func() time.Time
}

// Option customises a Publisher.
type Option func(*Publisher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) {
		if c != nil {
			p.client = c
		}
	}
}

// WithRetry replaces the retry settings.
func WithRetry(cfg RetryConfig) Option {
	return func(p *Publisher) {
		p.executor = NewExecutor(cfg)
	}
}

// WithClock overrides the time source used for admin tokens.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// New validates the admin key and builds a Publisher. No request is made.
func New(cfg Config, logger logrus.FieldLogger, opts ...Option) (*Publisher, error) {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.URL == "" {
		return nil, perrors.NewConfig("ghost url is required")
	}
	id, secretHex, ok := strings.Cut(cfg.AdminAPIKey, ":")
	if !ok || id == "" || secretHex == "" {
		return nil, perrors.NewConfig("ghost admin api key must have the form <id>:<secret>")
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, perrors.NewConfig("ghost admin api key secret is not hex")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	p := &Publisher{
		cfg:      cfg,
		keyID:    id,
		secret:   secret,
		client:   &http.Client{Timeout: 60 * time.Second},
		executor: NewExecutor(DefaultRetryConfig()),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// token signs a short-lived admin JWT.
func (p *Publisher) token() (string, error) {
	now := p.now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		Audience:  jwt.ClaimStrings{"/admin/"},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = p.keyID
	return t.SignedString(p.secret)
}

// do sends one admin API request through the retry executor and decodes a
// 2xx JSON body into out.
func (p *Publisher) do(ctx context.Context, method, path string, contentType string, body []byte, out any) error {
	url := p.cfg.URL + adminPath + path

	var data []byte
	_, err := p.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		token, err := p.token()
		if err != nil {
			return nil, err
		}
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Ghost "+token)
		req.Header.Set("Accept-Version", acceptVersion)
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			p.logger.WithError(err).WithField("path", path).Debug("ghost request failed")
			return nil, err
		}
		defer resp.Body.Close()
		payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			se := &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: errorMessage(payload)}
			p.logger.WithField("status", resp.StatusCode).WithField("path", path).Debug("ghost request rejected")
			return nil, se
		}
		data = payload
		return resp, nil
	})
	if err != nil {
		return perrors.NewUpstream("ghost", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return perrors.NewUpstream("ghost", fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}

func errorMessage(body []byte) string {
	var ge ghostErrors
	if err := json.Unmarshal(body, &ge); err == nil && len(ge.Errors) > 0 {
		msgs := make([]string, 0, len(ge.Errors))
		for _, e := range ge.Errors {
			m := e.Message
			if e.Context != "" {
				m += ": " + e.Context
			}
			msgs = append(msgs, m)
		}
		return strings.Join(msgs, "; ")
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// TestConnection reads the site metadata with the configured credentials.
func (p *Publisher) TestConnection(ctx context.Context) (*Site, error) {
	var out struct {
		Site Site `json:"site"`
	}
	if err := p.do(ctx, http.MethodGet, "/site/", "", nil, &out); err != nil {
		return nil, err
	}
	p.logger.WithField("site", out.Site.Title).Debug("ghost connection ok")
	return &out.Site, nil
}

// PublishArticle creates a post from article's HTML. The post is live when
// AutoPublish is set, otherwise it is a CMS draft.
func (p *Publisher) PublishArticle(ctx context.Context, article generator.Article) (*Post, error) {
	status := "draft"
	if p.cfg.AutoPublish {
		status = "published"
	}
	post := postPayload{
		Title:           article.Title,
		HTML:            article.HTML,
		MetaTitle:       article.MetaTitle,
		MetaDescription: article.MetaDescription,
		Status:          status,
		FeatureImage:    article.FeatureImageURL,
	}
	if article.FeatureImageURL != "" {
		post.FeatureImageAlt = article.Title
	}
	for _, t := range article.Tags {
		post.Tags = append(post.Tags, tag{Name: t})
	}
	if p.cfg.AssignAuthors && article.AuthorSlug != "" {
		post.Authors = []author{{Slug: article.AuthorSlug}}
	}

	body, err := json.Marshal(map[string][]postPayload{"posts": {post}})
	if err != nil {
		return nil, err
	}
	var out struct {
		Posts []Post `json:"posts"`
	}
	if err := p.do(ctx, http.MethodPost, "/posts/?source=html", "application/json", body, &out); err != nil {
		return nil, err
	}
	if len(out.Posts) == 0 {
		return nil, perrors.NewUpstream("ghost", errors.New("post created but response was empty"))
	}
	created := out.Posts[0]
	if created.URL == "" && created.UUID != "" {
		created.URL = fmt.Sprintf("%s/p/%s", p.cfg.URL, created.UUID)
	}
	p.logger.WithFields(logrus.Fields{"url": created.URL, "status": created.Status}).Info("ghost post created")
	return &created, nil
}

// UploadImage stores data in the Ghost media library and returns its URL.
func (p *Publisher) UploadImage(ctx context.Context, data []byte, filename string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	h.Set("Content-Type", contentTypeFor(filename))
	part, err := writer.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.WriteField("purpose", "image"); err != nil {
		return "", err
	}
	if err := writer.WriteField("ref", filepath.Base(filename)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	var out struct {
		Images []struct {
			URL string `json:"url"`
			Ref string `json:"ref"`
		} `json:"images"`
	}
	if err := p.do(ctx, http.MethodPost, "/images/upload/", writer.FormDataContentType(), buf.Bytes(), &out); err != nil {
		return "", err
	}
	if len(out.Images) == 0 || out.Images[0].URL == "" {
		return "", perrors.NewUpstream("ghost", errors.New("image upload returned no url"))
	}
	p.logger.WithField("url", out.Images[0].URL).Debug("ghost image uploaded")
	return out.Images[0].URL, nil
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
