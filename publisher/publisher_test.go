package publisher

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "wooden_dutch/errors"
	"wooden_dutch/generator"
	"wooden_dutch/logging"
)

const testKey = "64f0c0ffee:0123456789abcdef0123456789abcdef"

func fastRetry() Option {
	return WithRetry(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
}

func newTestPublisher(t *testing.T, url string, cfg Config) *Publisher {
	t.Helper()
	cfg.URL = url
	if cfg.AdminAPIKey == "" {
		cfg.AdminAPIKey = testKey
	}
	p, err := New(cfg, logging.Discard(), fastRetry())
	require.NoError(t, err)
	return p
}

func sampleArticle() generator.Article {
	return generator.Article{
		Title:           "Port Of Rotterdam Installs Mood Lighting",
		HTML:            "<p>Cranes now glow.</p>",
		MetaTitle:       "Port Of Rotterdam Installs Mood Lighting",
		MetaDescription: "Cranes now glow.",
		Tags:            []string{"satire", "logistics"},
		AuthorName:      "Henk",
		AuthorSlug:      "henk",
	}
}

func TestNew_RejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "nocolon", "id:", ":abcd", "id:not-hex"} {
		_, err := New(Config{URL: "http://ghost", AdminAPIKey: key}, logging.Discard())
		require.Error(t, err, key)
		assert.True(t, perrors.Is(err, perrors.ErrConfig), key)
	}
	_, err := New(Config{AdminAPIKey: testKey}, logging.Discard())
	assert.True(t, perrors.Is(err, perrors.ErrConfig))
}

func TestTestConnection_SendsSignedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ghost/api/admin/site/", r.URL.Path)
		assert.Equal(t, "v5.0", r.Header.Get("Accept-Version"))

		auth := r.Header.Get("Authorization")
		require.True(t, strings.HasPrefix(auth, "Ghost "))
		tok, err := jwt.Parse(strings.TrimPrefix(auth, "Ghost "), func(tok *jwt.Token) (any, error) {
			assert.Equal(t, "64f0c0ffee", tok.Header["kid"])
			return []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}, nil
		}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithAudience("/admin/"))
		require.NoError(t, err)
		assert.True(t, tok.Valid)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"site":{"title":"The Wooden Dutch","url":"http://ghost/","version":"5.82"}}`))
	}))
	defer srv.Close()

	site, err := newTestPublisher(t, srv.URL, Config{}).TestConnection(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "The Wooden Dutch", site.Title)
	assert.Equal(t, "5.82", site.Version)
}

func TestPublishArticle_Payload(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantStatus  string
		wantAuthors bool
	}{
		{name: "draft without authors", cfg: Config{}, wantStatus: "draft"},
		{name: "live with authors", cfg: Config{AutoPublish: true, AssignAuthors: true}, wantStatus: "published", wantAuthors: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got struct {
				Posts []map[string]any `json:"posts"`
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/ghost/api/admin/posts/", r.URL.Path)
				assert.Equal(t, "html", r.URL.Query().Get("source"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(`{"posts":[{"id":"p1","uuid":"u-1","url":"http://ghost/mood-lighting/","status":"` + tt.wantStatus + `"}]}`))
			}))
			defer srv.Close()

			post, err := newTestPublisher(t, srv.URL, tt.cfg).PublishArticle(t.Context(), sampleArticle())
			require.NoError(t, err)
			assert.Equal(t, "http://ghost/mood-lighting/", post.URL)

			require.Len(t, got.Posts, 1)
			p := got.Posts[0]
			assert.Equal(t, tt.wantStatus, p["status"])
			assert.Equal(t, "<p>Cranes now glow.</p>", p["html"])
			assert.Equal(t, "Cranes now glow.", p["meta_description"])
			assert.Len(t, p["tags"], 2)
			if tt.wantAuthors {
				assert.Equal(t, []any{map[string]any{"slug": "henk"}}, p["authors"])
			} else {
				assert.NotContains(t, p, "authors")
			}
			assert.NotContains(t, p, "feature_image")
		})
	}
}

func TestPublishArticle_URLFallsBackToUUID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"posts":[{"id":"p1","uuid":"abc-123","status":"draft"}]}`))
	}))
	defer srv.Close()

	post, err := newTestPublisher(t, srv.URL+"/", Config{}).PublishArticle(t.Context(), sampleArticle())
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/p/abc-123", post.URL)
}

func TestPublishArticle_FeatureImage(t *testing.T) {
	var got struct {
		Posts []map[string]any `json:"posts"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"posts":[{"id":"p1","url":"http://ghost/x/"}]}`))
	}))
	defer srv.Close()

	a := sampleArticle()
	a.FeatureImageURL = "http://ghost/content/images/crane.jpg"
	_, err := newTestPublisher(t, srv.URL, Config{}).PublishArticle(t.Context(), a)
	require.NoError(t, err)
	assert.Equal(t, a.FeatureImageURL, got.Posts[0]["feature_image"])
	assert.Equal(t, a.Title, got.Posts[0]["feature_image_alt"])
}

func TestDo_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"site":{"title":"ok"}}`))
	}))
	defer srv.Close()

	site, err := newTestPublisher(t, srv.URL, Config{}).TestConnection(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "ok", site.Title)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDo_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestPublisher(t, srv.URL, Config{}).TestConnection(t.Context())
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrUpstream))
	assert.EqualValues(t, 3, calls.Load())
}

func TestDo_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"message":"Validation error","context":"Title is required"}]}`))
	}))
	defer srv.Close()

	_, err := newTestPublisher(t, srv.URL, Config{}).PublishArticle(t.Context(), sampleArticle())
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrUpstream))
	assert.Contains(t, err.Error(), "Title is required")
	assert.EqualValues(t, 1, calls.Load())
}

func TestUploadImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ghost/api/admin/images/upload/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "image", r.FormValue("purpose"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "crane.jpg", hdr.Filename)
		assert.Equal(t, "image/jpeg", hdr.Header.Get("Content-Type"))
		data, _ := io.ReadAll(f)
		assert.Equal(t, []byte("jpegbytes"), data)
		w.Write([]byte(`{"images":[{"url":"http://ghost/content/images/crane.jpg","ref":"crane.jpg"}]}`))
	}))
	defer srv.Close()

	url, err := newTestPublisher(t, srv.URL, Config{}).UploadImage(t.Context(), []byte("jpegbytes"), "drafts/crane.jpg")
	require.NoError(t, err)
	assert.Equal(t, "http://ghost/content/images/crane.jpg", url)
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(nil, nil))
	assert.True(t, ShouldRetry(nil, io.ErrUnexpectedEOF))
	assert.True(t, ShouldRetry(nil, &StatusError{Code: 429}))
	assert.True(t, ShouldRetry(nil, &StatusError{Code: 500}))
	assert.False(t, ShouldRetry(nil, &StatusError{Code: 404}))
	assert.False(t, ShouldRetry(nil, &StatusError{Code: 401}))
}
