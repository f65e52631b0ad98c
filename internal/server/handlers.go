package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"VoiceChat/internal/chatbot"
	"VoiceChat/internal/session"
)

// actionResponse is returned by every endpoint that runs a user action
type actionResponse struct {
	Transcript *string          `json:"transcript"`
	Reply      string           `json:"reply,omitempty"`
	HasAudio   bool             `json:"has_audio"`
	Notices    []chatbot.Notice `json:"notices"`
	History    []string         `json:"history"`
}

// wsEvent is one websocket message sent while a reply is generated
type wsEvent struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Response *actionResponse `json:"response,omitempty"`
}

func (s *Server) respond(st *session.State, res chatbot.Result, collapse bool) *actionResponse {
	notices := res.Notices
	if notices == nil {
		notices = []chatbot.Notice{}
	}
	return &actionResponse{
		Transcript: st.Transcript,
		Reply:      res.Reply,
		HasAudio:   len(res.Audio) > 0,
		Notices:    notices,
		History:    s.bot.Render(st, collapse),
	}
}

// lockLive locks the session for an action. A session the store discarded
// while the request waited is answered with 410 and its cookie cleared.
func (s *Server) lockLive(c *gin.Context, st *session.State) bool {
	st.Lock()
	if !st.Ended() {
		return true
	}
	st.Unlock()
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusGone, gin.H{"error": "session ended, reload the page to start a new one"})
	return false
}

func (s *Server) collapseFor(c *gin.Context) bool {
	raw, ok := c.GetQuery("collapse")
	if !ok {
		return s.collapse
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return s.collapse
	}
	return v
}

func (s *Server) uploadAudio(c *gin.Context) {
	st := stateFrom(c)

	body := http.MaxBytesReader(c.Writer, c.Request.Body, s.maxAudio)
	audio, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "recording too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read recording"})
		return
	}

	if !s.lockLive(c, st) {
		return
	}
	defer st.Unlock()
	s.bot.SetAudio(st, audio, c.ContentType())

	resp := gin.H{"bytes": len(audio)}
	if st.Audio != nil {
		resp["content_type"] = st.Audio.ContentType
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) convert(c *gin.Context) {
	st := stateFrom(c)
	if !s.lockLive(c, st) {
		return
	}
	defer st.Unlock()

	res := s.bot.Convert(c.Request.Context(), st)
	c.JSON(http.StatusOK, s.respond(st, res, s.collapseFor(c)))
}

func (s *Server) generate(c *gin.Context) {
	st := stateFrom(c)
	if !s.lockLive(c, st) {
		return
	}
	defer st.Unlock()

	res := s.bot.Generate(c.Request.Context(), st)
	c.JSON(http.StatusOK, s.respond(st, res, s.collapseFor(c)))
}

func (s *Server) replyAudio(c *gin.Context) {
	st := stateFrom(c)
	if !s.lockLive(c, st) {
		return
	}
	defer st.Unlock()

	if st.Reply == nil || len(st.Reply.Audio) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no reply audio"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "audio/mpeg", st.Reply.Audio)
}

func (s *Server) history(c *gin.Context) {
	st := stateFrom(c)
	if !s.lockLive(c, st) {
		return
	}
	defer st.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"session_id": st.ID,
		"lines":      s.bot.Render(st, s.collapseFor(c)),
	})
}

func (s *Server) endSession(c *gin.Context) {
	if id, err := c.Cookie(SessionCookie); err == nil {
		s.store.End(id)
	}
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

// generateWS streams reply fragments over a websocket, then sends a final
// "done" event carrying the same body as POST /api/generate.
// The hijacked request context never ends on its own, so a reader goroutine
// cancels the generation once the client goes away.
func (s *Server) generateWS(c *gin.Context) {
	st := stateFrom(c)
	if !s.lockLive(c, st) {
		return
	}
	defer st.Unlock()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session_id", st.ID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	res := s.bot.GenerateStream(ctx, st, func(fragment string) {
		if err := conn.WriteJSON(wsEvent{Type: "fragment", Text: fragment}); err != nil {
			s.logger.Debug("failed to write fragment", "session_id", st.ID, "error", err)
		}
	})
	if ctx.Err() != nil {
		s.logger.Info("client left before the reply finished", "session_id", st.ID)
		return
	}

	done := wsEvent{Type: "done", Response: s.respond(st, res, s.collapseFor(c))}
	if err := conn.WriteJSON(done); err != nil {
		s.logger.Warn("failed to write final event", "session_id", st.ID, "error", err)
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
