package verification

import (
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
)

// Server exposes an Orchestrator over HTTP
type Server struct {
	orchestrator *Orchestrator
	basicAuth    BasicAuth
	mux          *http.ServeMux
	maxFormSize  int64
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// defaultMaxFormSize bounds multipart bodies. Uploads over it are not read, but still get
// a file_too_large verdict.
const defaultMaxFormSize = int64(50 << 20)

// NewServer creates a new Server with default mux
func NewServer(orchestrator *Orchestrator, basicAuth BasicAuth) *Server {
	return NewServerWithMux(orchestrator, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(orchestrator *Orchestrator, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		orchestrator: orchestrator,
		basicAuth:    basicAuth,
		mux:          mux,
		maxFormSize:  defaultMaxFormSize,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(credentials[0]), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(credentials[1]), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Medicine Verification"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/verify/code", s.requireAuth(s.handleVerifyCode))
	s.mux.HandleFunc("POST /api/verify/text", s.requireAuth(s.handleVerifyText))
	s.mux.HandleFunc("POST /api/verify/manual", s.requireAuth(s.handleVerifyManual))
	s.mux.HandleFunc("POST /api/verify/select", s.requireAuth(s.handleSelect))
	s.mux.HandleFunc("GET /api/products/search", s.requireAuth(s.handleSearch))

	s.mux.HandleFunc("GET /api/camera", s.requireAuth(s.handleCameraAvailability))
	s.mux.HandleFunc("POST /api/camera/scan", s.requireAuth(s.handleCameraScan))

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the mux wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
