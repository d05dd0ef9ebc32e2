// Package server exposes the image store and the crop engine as a JSON HTTP
// API. It is the contract a browser UI works against.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net"
	"net/http"
	"time"

	"github.com/sebnyberg/pixelpruner"
	"github.com/sebnyberg/pixelpruner/engine"
	"github.com/sebnyberg/pixelpruner/export"
	"github.com/sebnyberg/pixelpruner/log"
	"github.com/sebnyberg/pixelpruner/store"
)

const (
	defaultMaxUpload = 256 << 20
	defaultCacheSize = 512
	shutdownTimeout  = 10 * time.Second
)

// Options configures a Server.
type Options struct {
	OutputDir   string
	WebP        bool
	Backend     engine.Backend
	Compression png.CompressionLevel
	// Display is the display size used when a request names none.
	Display string
	// Preset and Zoom are the defaults of click-centred crops.
	Preset string
	Zoom   float64
	// MaxUpload limits the body of an upload request in bytes.
	MaxUpload int64
	// CacheSize is the number of renders kept in memory.
	CacheSize int
	Logger    log.Logger
}

type Server struct {
	opts     Options
	log      log.Logger
	sessions *registry
	renders  *renderCache
	mux      *http.ServeMux
}

func New(opts Options) (*Server, error) {
	if opts.OutputDir == "" {
		return nil, errors.New("output dir is required")
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = defaultMaxUpload
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.Zoom == 0 {
		opts.Zoom = 1
	}
	if opts.Preset == "" {
		opts.Preset = "512x512"
	}
	if _, err := pixelpruner.LookupPreset(opts.Preset); err != nil {
		return nil, err
	}
	if _, err := pixelpruner.LookupDisplay(opts.Display); err != nil {
		return nil, err
	}
	renders, err := newRenderCache(opts.CacheSize)
	if err != nil {
		return nil, err
	}
	s := &Server{
		opts:     opts,
		log:      log.OrNoop(opts.Logger),
		sessions: newRegistry(),
		renders:  renders,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/sessions", s.createSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.deleteSession)

	s.mux.HandleFunc("POST /api/sessions/{id}/images", s.withSession(s.uploadImages))
	s.mux.HandleFunc("GET /api/sessions/{id}/images", s.withSession(s.listImages))
	s.mux.HandleFunc("DELETE /api/sessions/{id}/images/{index}", s.withSession(s.removeImage))
	s.mux.HandleFunc("GET /api/sessions/{id}/images/{index}/thumbnail", s.withSession(s.thumbnail))
	s.mux.HandleFunc("GET /api/sessions/{id}/images/{index}/display", s.withSession(s.display))

	s.mux.HandleFunc("POST /api/sessions/{id}/crops", s.withSession(s.crop))
	s.mux.HandleFunc("POST /api/sessions/{id}/crops/at", s.withSession(s.cropAt))
	s.mux.HandleFunc("POST /api/sessions/{id}/batch", s.withSession(s.batch))

	s.mux.HandleFunc("GET /api/outputs", s.listOutputs)
	s.mux.HandleFunc("DELETE /api/outputs", s.deleteOutputs)
	s.mux.HandleFunc("GET /api/outputs/archive", s.archive)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.Debug("request",
		log.String("method", r.Method),
		log.String("path", r.URL.Path),
		log.Int("status", rec.status),
		log.Any("elapsed", time.Since(start)),
	)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %q err, %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("serving", log.String("addr", ln.Addr().String()), log.String("output_dir", s.opts.OutputDir))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) newSession(id string) *session {
	st := store.New(store.WithWebP(s.opts.WebP), store.WithLogger(s.log))
	return &session{
		id:    id,
		store: st,
		engine: engine.New(st, s.opts.OutputDir,
			engine.WithBackend(s.opts.Backend),
			engine.WithCompression(s.opts.Compression),
			engine.WithLogger(s.log),
		),
	}
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session)

// withSession resolves the {id} path value and runs h holding the session
// lock.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.get(r.PathValue("id"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()
		h(w, r, sess)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusOf maps an error to its HTTP status code.
func statusOf(err error) int {
	switch {
	case errors.Is(err, pixelpruner.ErrEmptySelection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pixelpruner.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, pixelpruner.ErrIndexOutOfRange), errors.Is(err, errSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, pixelpruner.ErrInvalidDisplay),
		errors.Is(err, pixelpruner.ErrInvalidPreset),
		errors.Is(err, export.ErrInvalidName),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", log.Err(err))
	}
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response", log.Err(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}
