// Package api exposes sessions over HTTP.
//
//	POST   /api/v1/sessions
//	GET    /api/v1/sessions/:id
//	DELETE /api/v1/sessions/:id
//	POST   /api/v1/sessions/:id/transcriptions   audio/flac or float32 LE PCM
//	POST   /api/v1/sessions/:id/translations     {"target_language": "fra_Latn"}
//	PUT    /api/v1/sessions/:id/tab              {"tab": "translation"}
//	POST   /api/v1/sessions/:id/reset
//	GET    /api/v1/sessions/:id/events           server-sent events
//	GET    /api/v1/languages
package api

import (
	goerrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/languages"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/orchestrator"
	"github.com/kbukum/scribe/server"
	"github.com/kbukum/scribe/sse"
	"github.com/kbukum/scribe/validation"
)

// EventsPath is the route streaming a session's events.
const EventsPath = "/api/v1/sessions/:id/events"

// Handler serves the session API.
type Handler struct {
	sessions *orchestrator.Manager
	hub      *sse.Hub
	log      *logger.Logger
}

// NewHandler creates a Handler. Session events are streamed from hub.
func NewHandler(sessions *orchestrator.Manager, hub *sse.Hub, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.WithComponent("api")
	}
	return &Handler{sessions: sessions, hub: hub, log: log}
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.GET("/languages", h.languages)

	s := v1.Group("/sessions")
	s.POST("", h.createSession)
	s.GET("/:id", h.withSession(h.getSession))
	s.DELETE("/:id", h.deleteSession)
	s.POST("/:id/transcriptions", h.withSession(h.transcribe))
	s.POST("/:id/translations", h.withSession(h.translate))
	s.PUT("/:id/tab", h.withSession(h.setTab))
	s.POST("/:id/reset", h.withSession(h.reset))
	s.GET("/:id/events", h.withSession(h.events))
}

// RunResponse is returned when a run is requested.
type RunResponse struct {
	RunID    string `json:"run_id,omitempty"`
	Accepted bool   `json:"accepted"`
}

// TranslationRequest is the body of a translation request.
type TranslationRequest struct {
	TargetLanguage string `json:"target_language"`
}

// TabRequest is the body of a tab change.
type TabRequest struct {
	Tab orchestrator.Tab `json:"tab" binding:"required"`
}

type sessionHandler func(c *gin.Context, s *orchestrator.Session)

func (h *Handler) withSession(next sessionHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := validation.ValidateUUID("id", c.Param("id"))
		if err != nil {
			server.RespondWithError(c, err)
			return
		}
		s, err := h.sessions.Get(id.String())
		if err != nil {
			server.RespondWithError(c, err)
			return
		}
		next(c, s)
	}
}

func (h *Handler) createSession(c *gin.Context) {
	s := h.sessions.Create()
	server.RespondCreated(c, s.Snapshot())
}

func (h *Handler) getSession(c *gin.Context, s *orchestrator.Session) {
	server.RespondOK(c, s.Snapshot())
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondNoContent(c)
}

func (h *Handler) transcribe(c *gin.Context, s *orchestrator.Session) {
	contentType := c.ContentType()
	samples, err := audio.Decode(contentType, c.Request.Body)
	if err != nil {
		server.RespondWithError(c, audioError(contentType, err))
		return
	}
	runID, err := s.Transcribe(c.Request.Context(), samples)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	h.log.WithContext(c.Request.Context()).Debug("audio accepted", logger.Fields(
		logger.FieldSessionID, s.ID(), logger.FieldRunID, runID,
		"duration", audio.Duration(samples).String(),
	))
	server.RespondAccepted(c, RunResponse{RunID: runID, Accepted: true})
}

func (h *Handler) translate(c *gin.Context, s *orchestrator.Session) {
	var req TranslationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.RespondWithError(c, errors.InvalidInput("body", err.Error()))
		return
	}
	runID, err := s.RequestTranslation(c.Request.Context(), req.TargetLanguage)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	if runID == "" {
		server.RespondOK(c, RunResponse{})
		return
	}
	server.RespondAccepted(c, RunResponse{RunID: runID, Accepted: true})
}

func (h *Handler) setTab(c *gin.Context, s *orchestrator.Session) {
	var req TabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.RespondWithError(c, errors.MissingField("tab"))
		return
	}
	if err := s.SetTab(req.Tab); err != nil {
		server.RespondWithError(c, errors.InvalidInput("tab", err.Error()))
		return
	}
	server.RespondOK(c, s.Snapshot())
}

func (h *Handler) reset(c *gin.Context, s *orchestrator.Session) {
	s.Reset()
	server.RespondOK(c, s.Snapshot())
}

func (h *Handler) events(c *gin.Context, s *orchestrator.Session) {
	clientID := "session:" + s.ID() + ":" + uuid.NewString()
	sse.ServeSSE(h.hub, c.Writer, c.Request, clientID, sse.WithSessionID(s.ID()))
}

func (h *Handler) languages(c *gin.Context) {
	all, err := languages.All()
	if err != nil {
		server.RespondWithError(c, errors.Internal(err))
		return
	}
	server.RespondOK(c, gin.H{"placeholder": languages.Placeholder, "languages": all})
}

func audioError(contentType string, err error) error {
	switch {
	case goerrors.Is(err, audio.ErrUnsupported):
		return errors.UnsupportedMedia(contentType)
	case goerrors.Is(err, audio.ErrEmpty):
		return errors.InvalidInput("audio", err.Error())
	}
	var maxErr *http.MaxBytesError
	if goerrors.As(err, &maxErr) {
		return errors.New(errors.ErrCodeInvalidInput, "Audio exceeds the upload limit.", http.StatusRequestEntityTooLarge)
	}
	return errors.InvalidInput("audio", err.Error()).WithCause(err)
}
