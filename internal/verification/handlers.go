package verification

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/medverify/internal/catalog"
	"github.com/zombor/medverify/internal/imagesource"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes a client error as {"error": message}
func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// contentTypeFor falls back to the file extension when the part has no specific Content-Type
func contentTypeFor(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// readUpload extracts the multipart "file" field. It writes a 4xx and returns false for
// malformed requests. A body over the form cap gets a file_too_large verdict for method.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, method string) (Input, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxFormSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusOK, s.orchestrator.RejectOversized(method, maxErr.Limit))
			return Input{}, false
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return Input{}, false
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose an image to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return Input{}, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return Input{}, false
	}

	contentType := contentTypeFor(header.Header.Get("Content-Type"), header.Filename)
	return ImageInput(data, contentType, header.Size), true
}

// handleVerifyCode runs the structured-code path on an uploaded image
func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	in, ok := s.readUpload(w, r, "code")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.VerifyCode(r.Context(), in))
}

// handleVerifyText runs the text recognition path on an uploaded image
func (s *Server) handleVerifyText(w http.ResponseWriter, r *http.Request) {
	in, ok := s.readUpload(w, r, "text")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.VerifyText(r.Context(), in))
}

// handleVerifyManual looks up a typed registration or batch number
func (s *Server) handleVerifyManual(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RegistrationNumber string `json:"registration_number"`
		BatchNumber        string `json:"batch_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.VerifyManual(r.Context(), req.RegistrationNumber, req.BatchNumber))
}

// handleSearch returns ranked products for ?q=
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	results := s.orchestrator.Search(r.URL.Query().Get("q"))
	if results == nil {
		results = []catalog.ProductRecord{}
	}
	writeJSON(w, http.StatusOK, results)
}

// handleSelect verifies a product picked from search results
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RegistrationNumber string `json:"registration_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.RegistrationNumber) == "" {
		jsonError(w, "Registration number required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.SelectRegistration(req.RegistrationNumber))
}

// handleCameraAvailability reports whether the capture device can be used
func (s *Server) handleCameraAvailability(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.CameraAvailability(r.Context()))
}

// handleCameraScan captures a frame and verifies it
func (s *Server) handleCameraScan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	method, err := ParseMethod(q.Get("method"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	facing, err := imagesource.ParseFacing(q.Get("facing"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.VerifyCamera(r.Context(), method, facing))
}

// handleHealth is an unauthenticated liveness probe
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
