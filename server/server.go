package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"wooden_dutch/drafts"
	perrors "wooden_dutch/errors"
	"wooden_dutch/metrics"
	"wooden_dutch/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

// Publisher publishes one saved draft by exact file name.
type Publisher interface {
	PublishDraft(ctx context.Context, filename string) (*pipeline.PublishReport, error)
}

// Server is the drafts desk: it lists saved drafts, previews them and
// publishes them on request.
type Server struct {
	store     *drafts.Store
	publisher Publisher
	metrics   *metrics.Metrics
	logger    logrus.FieldLogger
	pages     *template.Template

	// publishes are serialised; the draft store has no cross-request locking
	publishMu sync.Mutex
}

func New(store *drafts.Store, pub Publisher, m *metrics.Metrics, logger logrus.FieldLogger) (*Server, error) {
	if store == nil {
		return nil, errors.New("draft store required")
	}
	if pub == nil {
		return nil, errors.New("publisher required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	pages, err := template.New("desk").Funcs(template.FuncMap{
		"markdown":   renderMarkdown,
		"deskNote":   deskNote,
		"safeHTML":   func(s string) template.HTML { return template.HTML(s) },
		"formatTime": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04") },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{
		store:     store,
		publisher: pub,
		metrics:   m,
		logger:    logger,
		pages:     pages,
	}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logMiddleware(s.logger))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/drafts", func(r chi.Router) {
		r.Get("/", s.handleDraftList)
		r.Get("/{filename}", s.handleDraft)
		r.Post("/{filename}/publish", s.handlePublish)
	})
	r.Get("/published", s.handlePublishedList)
	return r
}

// --- Handlers ---

type draftSummary struct {
	Filename    string     `json:"filename"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	Status      string     `json:"status"`
	GeneratedAt time.Time  `json:"generatedAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	URL         string     `json:"url,omitempty"`
	HasImage    bool       `json:"hasImage"`
}

func (s *Server) summarise(entries []drafts.Entry) []draftSummary {
	out := make([]draftSummary, 0, len(entries))
	for _, e := range entries {
		sum := draftSummary{
			Filename:    e.Filename,
			ID:          e.Draft.ID,
			Title:       e.Draft.Article.Title,
			Author:      e.Draft.Article.AuthorName,
			Status:      string(e.Draft.Status),
			GeneratedAt: e.Draft.GeneratedAt,
			PublishedAt: e.Draft.PublishedAt,
		}
		if e.Draft.GhostURL != nil {
			sum.URL = *e.Draft.GhostURL
		}
		if e.Draft.Status == drafts.StatusDraft {
			_, sum.HasImage = s.store.CompanionImage(e.Filename)
		}
		out = append(out, sum)
	}
	return out
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List()
	if err != nil {
		s.writeError(w, r, perrors.NewPersistence("draft listing", err))
		return
	}
	s.renderPage(w, "index.html", map[string]any{"Entries": entries})
}

func (s *Server) handleDraftList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List()
	if err != nil {
		s.writeError(w, r, perrors.NewPersistence("draft listing", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": s.summarise(entries)})
}

func (s *Server) handlePublishedList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListPublished()
	if err != nil {
		s.writeError(w, r, perrors.NewPersistence("archive listing", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"published": s.summarise(entries)})
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	d, err := s.store.Load(filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, d)
		return
	}
	s.renderPage(w, "draft.html", map[string]any{"Filename": filename, "Draft": d})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if _, err := s.store.Load(filename); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Minute)
	defer cancel()
	report, err := s.publisher.PublishDraft(ctx, filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"published":  report.Published,
		"skipped":    report.Skipped,
		"reconciled": report.Reconciled,
		"urls":       report.URLs,
	})
}

// --- Helpers ---

func wantsJSON(r *http.Request) bool {
	if r.URL.Query().Get("format") == "json" {
		return true
	}
	accept := r.Header.Get("Accept")
	return accept == "application/json"
}

func statusFor(code perrors.ErrorCode) int {
	switch code {
	case perrors.ErrNotFound:
		return http.StatusNotFound
	case perrors.ErrInvalidRequest:
		return http.StatusBadRequest
	case perrors.ErrConfig:
		return http.StatusServiceUnavailable
	case perrors.ErrUpstream, perrors.ErrPartialPublish:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := perrors.CodeOf(err)
	status := statusFor(code)
	if status >= 500 {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	body := map[string]any{"code": string(code), "message": err.Error()}
	var pe *perrors.PipelineError
	if errors.As(err, &pe) && len(pe.Details) > 0 {
		body["details"] = pe.Details
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func (s *Server) renderPage(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.WithError(err).WithField("template", name).Error("template execution failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func logMiddleware(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}
