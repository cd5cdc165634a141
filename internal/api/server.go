package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"edujam/internal/hub"
	"edujam/internal/metrics"
	"edujam/pkg/interfaces"
	"edujam/pkg/types"
)

// HealthChecker reports whether the chat history store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// GroupLister is the read side of the study-group channel
type GroupLister interface {
	GroupsBySubject(subject string) []types.GroupInfo
	Group(groupID string) (types.GroupInfo, bool)
}

// Deps are the components the REST surface reads from. Every field is required.
type Deps struct {
	Boards         *hub.Hub
	Chat           *hub.Hub
	Groups         *hub.Hub
	GroupLister    GroupLister
	Files          interfaces.BlobReader
	Database       HealthChecker
	Metrics        *metrics.Metrics
	AllowedOrigins []string
}

// ARCHITECTURAL DISCOVERY: HTTP API layer is a read-only window onto the
// channel hubs; every mutation goes through a WebSocket channel
type Server struct {
	deps    Deps
	router  *http.ServeMux
	handler http.Handler
	started time.Time
}

// NewServer builds the router and wraps it in the CORS policy
func NewServer(deps Deps) (*Server, error) {
	if deps.Boards == nil || deps.Chat == nil || deps.Groups == nil {
		return nil, errors.New("api: channel hubs are required")
	}
	if deps.GroupLister == nil || deps.Files == nil || deps.Database == nil || deps.Metrics == nil {
		return nil, errors.New("api: group lister, file reader, database and metrics are required")
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		deps:    deps,
		router:  http.NewServeMux(),
		started: time.Now(),
	}
	s.setupRoutes()

	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}).Handler(s.router)

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Handle("GET /health", jsonMiddleware(http.HandlerFunc(s.healthCheck)))
	s.router.Handle("GET /api/info", jsonMiddleware(http.HandlerFunc(s.info)))
	s.router.Handle("GET /api/boards/{id}", jsonMiddleware(http.HandlerFunc(s.getBoard)))
	s.router.Handle("GET /api/study-groups/subjects", jsonMiddleware(http.HandlerFunc(s.listSubjects)))
	s.router.Handle("GET /api/study-groups/by-subject/{subject}", jsonMiddleware(http.HandlerFunc(s.groupsBySubject)))
	s.router.Handle("GET /api/study-groups/{id}", jsonMiddleware(http.HandlerFunc(s.getGroup)))
	s.router.HandleFunc("GET /api/files/{id}", s.downloadFile)
	s.router.Handle("GET /api/files/{id}/metadata", jsonMiddleware(http.HandlerFunc(s.fileMetadata)))
	s.router.Handle("GET /metrics", s.deps.Metrics.Handler())
}

// Handle mounts an extra handler, such as a WebSocket channel, behind the
// same CORS policy
func (s *Server) Handle(pattern string, h http.Handler) {
	s.router.Handle(pattern, h)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type ChannelStats struct {
	Sessions int `json:"sessions"`
	Rooms    int `json:"rooms"`
}

type HealthResponse struct {
	Status    string                  `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Uptime    string                  `json:"uptime"`
	Database  string                  `json:"database"`
	Channels  map[string]ChannelStats `json:"channels"`
}

type BoardResponse struct {
	BoardID      string           `json:"boardId"`
	BoardState   types.BoardState `json:"boardState"`
	Participants int              `json:"participants"`
}

type SubjectsResponse struct {
	Subjects []string `json:"subjects"`
}

type GroupsResponse struct {
	Subject string            `json:"subject"`
	Groups  []types.GroupInfo `json:"groups"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: GET /health returns 503 when the history store is
// unreachable so load balancers stop routing here
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.deps.Database.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	channels := make(map[string]ChannelStats, 3)
	for _, h := range []*hub.Hub{s.deps.Boards, s.deps.Chat, s.deps.Groups} {
		channels[h.Channel()] = ChannelStats{
			Sessions: h.Sessions().Count(),
			Rooms:    h.Rooms().Count(),
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Database:  dbStatus,
		Channels:  channels,
	})
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name": "EduJam",
		"websocket": map[string]string{
			types.ChannelBoard: "/ws/board",
			types.ChannelChat:  "/ws/chat",
			types.ChannelGroup: "/ws/study-group",
		},
		"rest": map[string]string{
			"health":        "/health",
			"board":         "/api/boards/{id}",
			"subjects":      "/api/study-groups/subjects",
			"groupsSubject": "/api/study-groups/by-subject/{subject}",
			"group":         "/api/study-groups/{id}",
			"file":          "/api/files/{id}",
			"fileMetadata":  "/api/files/{id}/metadata",
			"metrics":       "/metrics",
		},
	})
}

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	boardID := r.PathValue("id")
	board, ok := s.deps.Boards.Rooms().Board(boardID)
	if !ok {
		sendError(w, "Board not found: "+boardID, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, BoardResponse{
		BoardID:      boardID,
		BoardState:   board.Snapshot(),
		Participants: len(s.deps.Boards.Rooms().Members(boardID)),
	})
}

func (s *Server) listSubjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SubjectsResponse{Subjects: types.Subjects})
}

func (s *Server) groupsBySubject(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	if !types.IsValidSubject(subject) {
		sendError(w, "Invalid subject: "+subject, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, GroupsResponse{
		Subject: subject,
		Groups:  s.deps.GroupLister.GroupsBySubject(subject),
	})
}

func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	group, ok := s.deps.GroupLister.Group(groupID)
	if !ok {
		sendError(w, "Group not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	body, meta, err := s.deps.Files.Open(r.PathValue("id"))
	if err != nil {
		s.fileError(w, err)
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+encodeRFC5987(meta.FileName))
	if meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		log.Printf("Failed to stream file %s: %v", meta.FileID, err)
	}
}

func (s *Server) fileMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := s.deps.Files.Metadata(r.PathValue("id"))
	if err != nil {
		s.fileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) fileError(w http.ResponseWriter, err error) {
	if errors.Is(err, interfaces.ErrBlobNotFound) {
		w.Header().Set("Content-Type", "application/json")
		sendError(w, "File not found", http.StatusNotFound)
		return
	}
	log.Printf("Failed to read stored file: %v", err)
	w.Header().Set("Content-Type", "application/json")
	sendError(w, "Failed to read file", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func sendError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// encodeRFC5987 percent-encodes everything outside the attr-char set
func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') ||
			strings.IndexByte("!#$&+-.^_`|~", c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}
