package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/form"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
	"github.com/Adda-Baaj/khobor-desk/internal/listing"
	"github.com/Adda-Baaj/khobor-desk/internal/logger"
	"github.com/Adda-Baaj/khobor-desk/internal/render"
	"github.com/Adda-Baaj/khobor-desk/internal/storage"
)

// StoryService is the listing behaviour the HTTP layer exposes.
type StoryService interface {
	Search(ctx context.Context, q listing.Query) (listing.Page, error)
	Get(ctx context.Context, id int64) (listing.Detail, error)
	Delete(ctx context.Context, id int64) error
	Update(ctx context.Context, id int64, form listing.EditForm, editor string) (domain.Story, error)
}

// Options tunes the HTTP server.
type Options struct {
	Addr            string
	Editor          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the story pages, fragments and JSON endpoint.
type Server struct {
	svc     StoryService
	html    *render.HTMLRenderer
	log     logger.Logger
	opts    Options
	decoder *form.Decoder
	router  *mux.Router
}

// New wires the routes.
func New(svc StoryService, html *render.HTMLRenderer, log logger.Logger, opts Options) *Server {
	if opts.Editor == "" {
		opts.Editor = "web"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		svc:     svc,
		html:    html,
		log:     logger.Ensure(log),
		opts:    opts,
		decoder: form.NewDecoder(),
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/", http.RedirectHandler(render.ListPath, http.StatusFound)).Methods(http.MethodGet)

	r.HandleFunc(render.ListPath, instrument("list_page", s.handleListPage)).Methods(http.MethodGet)
	r.HandleFunc(render.JSONPath, instrument("list_json", s.handleListJSON)).Methods(http.MethodGet)
	r.HandleFunc(render.CardsPath, instrument("list_cards", s.handleCards)).Methods(http.MethodGet)
	r.HandleFunc("/story/{id:[0-9]+}/", instrument("story_detail", s.handleDetail)).Methods(http.MethodGet)
	r.HandleFunc("/story/edit/{id:[0-9]+}/", instrument("story_edit_form", s.handleEditForm)).Methods(http.MethodGet)
	r.HandleFunc("/story/edit/{id:[0-9]+}/", instrument("story_edit", s.handleEdit)).Methods(http.MethodPost)
	r.HandleFunc("/story/delete/{id:[0-9]+}/", instrument("story_delete", s.handleDelete)).Methods(http.MethodPost)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("http server listening", "http_listen", map[string]any{"addr": s.opts.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	s.log.InfoObj("http server shutting down", "http_shutdown", nil)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

type listParams struct {
	Q    string `form:"q"`
	Date string `form:"date"`
	Page string `form:"page"`
}

// parseQuery reads q, date and page. A missing or malformed page means page 1.
func (s *Server) parseQuery(r *http.Request) (listing.Query, error) {
	var p listParams
	if err := s.decoder.Decode(&p, r.URL.Query()); err != nil {
		return listing.Query{}, fmt.Errorf("%w: %v", listing.ErrInvalidQuery, err)
	}
	page, err := strconv.Atoi(strings.TrimSpace(p.Page))
	if err != nil {
		page = 1
	}
	return listing.Query{Q: p.Q, Date: p.Date, Page: page}.Normalize(), nil
}

func (s *Server) search(r *http.Request) (listing.Page, error) {
	q, err := s.parseQuery(r)
	if err != nil {
		return listing.Page{}, err
	}
	return s.svc.Search(r.Context(), q)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleListJSON(w http.ResponseWriter, r *http.Request) {
	page, err := s.search(r)
	if err != nil {
		s.writeJSONError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleListPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.search(r)
	if err != nil {
		s.writeHTMLError(w, r, err)
		return
	}
	s.writeHTML(w, r, http.StatusOK, func(buf *strings.Builder) error {
		return s.html.ListPage(buf, render.NewListView(render.ListPath, page))
	})
}

func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	page, err := s.search(r)
	if err != nil {
		s.writeHTMLError(w, r, err)
		return
	}
	s.writeHTML(w, r, http.StatusOK, func(buf *strings.Builder) error {
		return s.html.Cards(buf, render.NewListView(render.CardsPath, page))
	})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := storyID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	detail, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.writeHTMLError(w, r, err)
		return
	}
	s.writeHTML(w, r, http.StatusOK, func(buf *strings.Builder) error {
		return s.html.Detail(buf, render.NewDetailView(detail))
	})
}

func (s *Server) handleEditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := storyID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	detail, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.writeHTMLError(w, r, err)
		return
	}
	s.writeHTML(w, r, http.StatusOK, func(buf *strings.Builder) error {
		return s.html.Edit(buf, render.EditView{ID: id, Form: listing.FormFromStory(detail.Story.Story)})
	})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := storyID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}
	var f listing.EditForm
	if err := s.decoder.Decode(&f, r.PostForm); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}

	_, err := s.svc.Update(r.Context(), id, f, s.opts.Editor)
	var ferrs listing.FieldErrors
	switch {
	case errors.As(err, &ferrs):
		s.writeHTML(w, r, http.StatusUnprocessableEntity, func(buf *strings.Builder) error {
			return s.html.Edit(buf, render.EditView{ID: id, Form: f, Errors: ferrs})
		})
	case errors.Is(err, storage.ErrDuplicateStory):
		s.writeHTML(w, r, http.StatusConflict, func(buf *strings.Builder) error {
			return s.html.Edit(buf, render.EditView{ID: id, Form: f, Errors: listing.FieldErrors{
				"article_url": "another story of this company already uses this URL",
			}})
		})
	case err != nil:
		s.writeHTMLError(w, r, err)
	default:
		http.Redirect(w, r, render.ListPath, http.StatusSeeOther)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := storyID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := s.svc.Delete(r.Context(), id); err != nil {
		s.writeHTMLError(w, r, err)
		return
	}
	http.Redirect(w, r, render.ListPath, http.StatusSeeOther)
}

func storyID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, listing.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) logFailure(r *http.Request, status int, err error) {
	if status < http.StatusInternalServerError {
		return
	}
	s.log.ErrorObj("story request failed", "http_error", map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
		"error":  err.Error(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func (s *Server) writeJSONError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.logFailure(r, status, err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = render.LoadFailed
	}
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeHTMLError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.logFailure(r, status, err)
	msg := render.LoadFailed
	switch status {
	case http.StatusBadRequest:
		msg = err.Error()
	case http.StatusNotFound:
		msg = "Story not found."
	}
	s.writeHTML(w, r, status, func(buf *strings.Builder) error {
		return s.html.Error(buf, msg)
	})
}

func (s *Server) writeHTML(w http.ResponseWriter, r *http.Request, status int, fn func(*strings.Builder) error) {
	var buf strings.Builder
	if err := fn(&buf); err != nil {
		s.logFailure(r, http.StatusInternalServerError, err)
		http.Error(w, render.LoadFailed, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(buf.String()))
}
