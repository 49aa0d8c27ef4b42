package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	apperrors "live-quiz-service/internal/errors"
	"live-quiz-service/internal/realtime"
)

type handler struct {
	engine   Engine
	follower Follower
}

type createSessionRequest struct {
	QuizID string `json:"quizId" binding:"required"`
}

type joinRequest struct {
	Code          string `json:"code" binding:"required"`
	ParticipantID string `json:"participantId" binding:"required"`
	DisplayName   string `json:"displayName"`
}

type joinResponse struct {
	Session realtime.SessionView `json:"session"`
	Quiz    domain.Quiz          `json:"quiz"`
}

type answerRequest struct {
	ParticipantID string        `json:"participantId" binding:"required"`
	QuestionIndex *int          `json:"questionIndex" binding:"required"`
	Answer        domain.Answer `json:"answer"`
}

// answerResponse never carries correctness; students learn results from the lecturer.
type answerResponse struct {
	Accepted bool   `json:"accepted"`
	Revision int    `json:"revision,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (h *handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	s, err := h.engine.Create(c.Request.Context(), req.QuizID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, realtime.NewSessionView(*s))
}

func (h *handler) getSession(c *gin.Context) {
	snap, err := h.engine.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	env, err := realtime.Encode(0, snap)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, env.Payload)
}

func (h *handler) transition(op func(context.Context, string) (*domain.Session, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := op(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, realtime.NewSessionView(*s))
	}
}

func (h *handler) join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	name := req.DisplayName
	if name == "" {
		name = req.ParticipantID
	}
	s, quiz, err := h.engine.Join(c.Request.Context(), req.Code, domain.Participant{ID: req.ParticipantID, DisplayName: name})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, joinResponse{Session: realtime.NewSessionView(*s), Quiz: quiz})
}

func (h *handler) submitAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	saved, err := h.engine.Submit(c.Request.Context(), app.SubmitRequest{
		SessionID:     c.Param("id"),
		ParticipantID: req.ParticipantID,
		QuestionIndex: *req.QuestionIndex,
		Answer:        req.Answer,
	})
	if errors.Is(err, domain.ErrStaleSubmission) {
		c.JSON(http.StatusOK, answerResponse{Accepted: false, Reason: string(apperrors.CodeStaleSubmission)})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, answerResponse{Accepted: true, Revision: saved.Revision})
}

func (h *handler) distribution(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.engine.Distribution(c.Request.Context(), c.Param("id"), index)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) leaderboard(c *gin.Context) {
	lb, err := h.engine.Leaderboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

// followEvents relays a session's mirrored frames as server-sent events, for dashboards
// attached to another instance than the one running the session.
func (h *handler) followEvents(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.engine.Get(ctx, id); err != nil {
		writeError(c, err)
		return
	}

	frames, err := h.follower.Follow(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Stream(func(w io.Writer) bool {
		frame, ok := <-frames
		if !ok {
			return false
		}
		c.SSEvent("event", string(frame))
		return true
	})
}

func badRequest(c *gin.Context, err error) {
	writeError(c, apperrors.New(apperrors.CodeInvalidArgument, apperrors.WithCause(err), apperrors.WithMessagef("%s", err.Error())))
}

func writeError(c *gin.Context, err error) {
	e := apperrors.Convert(err)
	if e.Code == apperrors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "http: request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
