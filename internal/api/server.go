// Package api provides the HTTP server and handlers.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/zipstream/internal/archive"
	"github.com/fruitsalade/zipstream/internal/auth"
	"github.com/fruitsalade/zipstream/internal/config"
	"github.com/fruitsalade/zipstream/internal/logging"
	"github.com/fruitsalade/zipstream/internal/metrics"
	"github.com/fruitsalade/zipstream/internal/provider"
	"github.com/fruitsalade/zipstream/internal/quota"
)

// maxRequestBody bounds POST download bodies.
const maxRequestBody = 1 << 20

// Server is the HTTP server.
type Server struct {
	discovery   provider.Discovery
	aggregator  *archive.Aggregator
	auth        *auth.Auth
	rateLimiter *quota.RateLimiter
	config      *config.Config
}

// NewServer creates a new server. authHandler and rateLimiter may be nil.
func NewServer(
	cfg *config.Config,
	discovery provider.Discovery,
	aggregator *archive.Aggregator,
	authHandler *auth.Auth,
	rateLimiter *quota.RateLimiter,
) *Server {
	return &Server{
		discovery:   discovery,
		aggregator:  aggregator,
		auth:        authHandler,
		rateLimiter: rateLimiter,
		config:      cfg,
	}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/v1/download", s.handleDownload)
	protected.HandleFunc("POST /api/v1/download", s.handleDownload)
	protected.HandleFunc("GET /api/v1/providers", s.handleProviders)

	// Auth first so the rate limiter can key on the user.
	var api http.Handler = protected
	if s.rateLimiter != nil {
		api = s.rateLimiter.Middleware(api)
	}
	if s.auth != nil {
		api = s.auth.Middleware(api)
	}
	mux.Handle("/api/v1/", api)

	// Apply logging and metrics middleware
	return metrics.Middleware(logging.Middleware(mux))
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ─── Providers ──────────────────────────────────────────────────────────────

type providerInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	regs, err := s.discovery.Providers(r.Context())
	if err != nil {
		logging.WithContext(r.Context()).Error("provider discovery failed", zap.Error(err))
		s.sendError(w, http.StatusServiceUnavailable, "providers unavailable")
		return
	}

	out := make([]providerInfo, len(regs))
	for i, reg := range regs {
		out[i] = providerInfo{Name: reg.Name, Type: reg.Type}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"providers": out})
}

// ─── Download ───────────────────────────────────────────────────────────────

type downloadRequest struct {
	Files  []string `json:"files"`
	Format string   `json:"format"`
	Name   string   `json:"name"`
}

func (s *Server) parseDownload(r *http.Request) (downloadRequest, int, error) {
	var req downloadRequest

	if r.Method == http.MethodPost {
		body := http.MaxBytesReader(nil, r.Body, maxRequestBody)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return req, http.StatusRequestEntityTooLarge, errors.New("request body too large")
			}
			return req, http.StatusBadRequest, errors.New("invalid request body")
		}
	} else {
		q := r.URL.Query()
		if files := q.Get("files"); files != "" {
			if err := json.Unmarshal([]byte(files), &req.Files); err != nil {
				return req, http.StatusBadRequest, errors.New("files must be a JSON array of strings")
			}
		}
		req.Format = q.Get("format")
		req.Name = q.Get("name")
	}

	if len(req.Files) > s.config.MaxPaths {
		return req, http.StatusRequestEntityTooLarge, errors.New("too many files requested")
	}
	for _, f := range req.Files {
		if err := validatePath(f); err != nil {
			return req, http.StatusBadRequest, err
		}
	}
	return req, 0, nil
}

func validatePath(p string) error {
	switch {
	case strings.TrimSpace(p) == "":
		return errors.New("empty path")
	case strings.ContainsRune(p, 0):
		return errors.New("path contains NUL byte")
	case strings.Contains(p, "\\"):
		return errors.New("path contains backslash")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return errors.New("path contains dot segments")
		}
	}
	return nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.WithContext(ctx)

	req, status, err := s.parseDownload(r)
	if err != nil {
		s.sendError(w, status, err.Error())
		return
	}

	formatName := req.Format
	if formatName == "" {
		formatName = s.config.ArchiveFormat
	}
	format, err := archive.ParseFormat(formatName)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := &trackingWriter{w: w}
	sink, err := archive.NewSink(format, out)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "failed to create archive")
		return
	}

	filename := archiveFilename(req.Name, s.config.ArchiveName, format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	start := time.Now()
	stats, err := s.aggregator.Build(ctx, req.Files, sink)
	if err != nil {
		metrics.RecordArchive(string(format), false)

		if out.n == 0 {
			w.Header().Del("Content-Disposition")
			code := http.StatusInternalServerError
			msg := "failed to build archive"
			switch {
			case errors.Is(err, provider.ErrProviderDiscovery):
				code, msg = http.StatusServiceUnavailable, "providers unavailable"
			case errors.Is(err, archive.ErrMaxDepth):
				code, msg = http.StatusUnprocessableEntity, "directory nesting too deep"
			case ctx.Err() != nil:
				logger.Info("download cancelled before output", zap.Error(err))
				return
			}
			logger.Error("archive build failed", zap.Error(err))
			s.sendError(w, code, msg)
			return
		}

		// Part of the archive is already on the wire. Abort the connection so
		// the client sees a truncated transfer rather than a clean EOF.
		logger.Error("archive stream aborted",
			zap.Error(err),
			zap.Int64("bytes_sent", out.n),
			zap.Int("entries", stats.Entries))
		panic(http.ErrAbortHandler)
	}

	if out.n == 0 {
		// Nothing written by the sink; make sure headers go out.
		w.WriteHeader(http.StatusOK)
	}

	metrics.RecordArchive(string(format), true)
	logger.Info("archive sent",
		zap.String("format", string(format)),
		zap.Int("requested", stats.Requested),
		zap.Int("skipped", stats.Skipped),
		zap.Int("entries", stats.Entries),
		zap.Int64("bytes", out.n),
		zap.Duration("duration", time.Since(start)))
}

// archiveFilename builds "<name>.<ext>" from a client-supplied name,
// falling back to def.
func archiveFilename(name, def string, f archive.Format) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '"' || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		name = def
	}
	ext := "." + f.Extension()
	if strings.HasSuffix(strings.ToLower(name), ext) {
		return name
	}
	return name + ext
}

// trackingWriter counts bytes written to the response.
type trackingWriter struct {
	w io.Writer
	n int64
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	t.n += int64(n)
	return n, err
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
		"code":  code,
	})
}
