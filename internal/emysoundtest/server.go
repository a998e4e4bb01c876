// Package emysoundtest runs an in-process stand-in for the EmySound service.
// It parses submissions the way the real service does, records them, and
// answers with scripted responses.
package emysoundtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"emysound/pkg/models"

	"github.com/sirupsen/logrus"
)

// maxUploadSize bounds the in-memory multipart parse, in bytes.
const maxUploadSize = 64 << 20

// Request is one submission as seen by the service.
type Request struct {
	Method          string
	Path            string
	Query           url.Values
	Username        string
	Password        string
	HasBasicAuth    bool
	Accept          string
	Fields          map[string]string
	FileName        string
	FileContentType string
	File            []byte
}

// Response is a scripted answer.
type Response struct {
	Status int
	Body   string
}

// Server is a fake EmySound service.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	requests  []Request
	responses map[string]Response
	logger    *logrus.Logger
}

// NewServer starts a fake service. By default Tracks answers 200 with an
// empty body and Query answers 200 with "[]".
func NewServer() *Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s := &Server{
		responses: map[string]Response{
			"Tracks": {Status: http.StatusOK},
			"Query":  {Status: http.StatusOK, Body: "[]"},
		},
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1.1/Tracks", s.handleSubmission("Tracks"))
	mux.HandleFunc("/api/v1.1/Query", s.handleSubmission("Query"))
	s.Server = httptest.NewServer(mux)
	return s
}

// APIRoot is the root to hand to emysound.New.
func (s *Server) APIRoot() string {
	return s.URL + "/api/v1.1/"
}

// Respond scripts the answer for an endpoint ("Tracks" or "Query").
func (s *Server) Respond(endpoint string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[endpoint] = Response{Status: status, Body: body}
}

// RespondResults scripts a 200 Query answer carrying results. Nil gap
// lists are sent as empty arrays, as the service always sends both.
func (s *Server) RespondResults(results []models.QueryResult) {
	wire := make([]models.QueryResult, len(results))
	for i, r := range results {
		if r.Audio != nil {
			audio := *r.Audio
			if audio.Coverage.QueryGaps == nil {
				audio.Coverage.QueryGaps = []models.Gap{}
			}
			if audio.Coverage.TrackGaps == nil {
				audio.Coverage.TrackGaps = []models.Gap{}
			}
			r.Audio = &audio
		}
		wire[i] = r
	}

	data, err := json.Marshal(wire)
	if err != nil {
		panic(err)
	}
	s.Respond("Query", http.StatusOK, string(data))
}

// Requests returns a copy of the recorded submissions in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent submission.
func (s *Server) LastRequest() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}, false
	}
	return s.requests[len(s.requests)-1], true
}

// handleSubmission parses a multipart submission, records it and replies
// with the scripted response.
func (s *Server) handleSubmission(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.respondWithError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
			return
		}

		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			s.respondWithError(w, r, http.StatusBadRequest, "Failed to parse upload form", err)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			s.respondWithError(w, r, http.StatusBadRequest, "No file provided", err)
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			s.respondWithError(w, r, http.StatusInternalServerError, "Failed to read file", err)
			return
		}

		fields := make(map[string]string)
		for name, values := range r.MultipartForm.Value {
			fields[name] = strings.Join(values, ",")
		}

		username, password, ok := r.BasicAuth()
		req := Request{
			Method:          r.Method,
			Path:            r.URL.Path,
			Query:           r.URL.Query(),
			Username:        username,
			Password:        password,
			HasBasicAuth:    ok,
			Accept:          r.Header.Get("Accept"),
			Fields:          fields,
			FileName:        header.Filename,
			FileContentType: header.Header.Get("Content-Type"),
			File:            content,
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		resp := s.responses[endpoint]
		s.mu.Unlock()

		s.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"filename": header.Filename,
			"status":   resp.Status,
		}).Debug("Submission received")

		w.WriteHeader(resp.Status)
		_, _ = io.WriteString(w, resp.Body)
	}
}

// respondWithError sends a plain text error like the real service does.
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	entry := s.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": statusCode,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn(message)

	http.Error(w, message, statusCode)
}
