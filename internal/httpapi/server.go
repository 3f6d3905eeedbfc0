// Package httpapi is the local control surface: a small JSON API a UI (or
// curl) drives the engine through. Intents are forwarded and answered with
// 202 Accepted; the state they affect is read back via GET /api/state or the
// /api/events stream.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chatline/internal/engine"
	"github.com/chatline/internal/logger"
	"github.com/chatline/internal/middleware"
	"github.com/chatline/internal/notify"
)

type Server struct {
	eng  *engine.Engine
	push *notify.WebPush // nil unless web push is configured

	corsOrigins []string
}

// New builds the API server over an engine. push may be nil; the push
// endpoints are mounted only when it is set.
func New(eng *engine.Engine, push *notify.WebPush, corsOrigins []string) *Server {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	return &Server{eng: eng, push: push, corsOrigins: corsOrigins}
}

// Router assembles the chi router with the standard middleware chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/api/state", s.getState)
	r.Get("/api/events", s.streamEvents)

	r.Post("/api/messages", s.postMessage)
	r.Put("/api/messages/{id}", s.putMessage)
	r.Delete("/api/messages/{id}", s.deleteMessage)
	r.Post("/api/messages/{id}/reactions", s.postReaction)
	r.Post("/api/messages/{id}/read", s.postRead)
	r.Post("/api/typing", s.postTyping)
	r.Post("/api/rooms/join", s.postJoinRoom)
	r.Post("/api/private", s.postPrivate)

	if s.push != nil {
		r.Get("/api/push/vapid-public", s.getVAPIDPublicKey)
		r.Post("/api/push/subscribe", s.postPushSubscribe)
	}
	return r
}

func (s *Server) getState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Snapshot())
}

// streamEvents pushes a full state snapshot as an SSE event whenever the
// engine changes, plus a keepalive comment every 25s so proxies do not cut
// the stream.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// The server's WriteTimeout would cut the stream; lift it for this
	// long-lived response.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logger.Debugf("sse: clear write deadline: %v", err)
	}

	changes, stop := s.eng.Watch()
	defer stop()

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	writeSSE(w, s.eng.Snapshot())
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-changes:
			writeSSE(w, s.eng.Snapshot())
			flusher.Flush()
		case <-keepalive.C:
			w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, snap engine.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		logger.Errorf("sse marshal: %v", err)
		return
	}
	w.Write([]byte("event: state\ndata: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text    string `json:"text"`
		Room    string `json:"room"`
		Image   string `json:"image"`
		Caption string `json:"caption"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	var err error
	if req.Image != "" {
		err = s.eng.SendImage(req.Image, req.Caption, req.Room)
	} else {
		err = s.eng.SendMessage(req.Text, req.Room)
	}
	answerIntent(w, err)
}

func (s *Server) putMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	answerIntent(w, s.eng.EditMessage(chi.URLParam(r, "id"), req.Content))
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	answerIntent(w, s.eng.DeleteMessage(chi.URLParam(r, "id")))
}

func (s *Server) postReaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	answerIntent(w, s.eng.AddReaction(chi.URLParam(r, "id"), req.Emoji))
}

func (s *Server) postRead(w http.ResponseWriter, r *http.Request) {
	answerIntent(w, s.eng.MarkMessageRead(chi.URLParam(r, "id")))
}

func (s *Server) postTyping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Typing bool `json:"typing"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	answerIntent(w, s.eng.SetTyping(req.Typing))
}

func (s *Server) postJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Room string `json:"room"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	answerIntent(w, s.eng.JoinRoom(req.Room))
}

func (s *Server) postPrivate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ToUserID string `json:"toUserId"`
		Message  string `json:"message"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	answerIntent(w, s.eng.SendPrivateMessage(req.ToUserID, req.Message))
}

func (s *Server) getVAPIDPublicKey(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": s.push.VAPIDPublicKey()})
}

func (s *Server) postPushSubscribe(w http.ResponseWriter, r *http.Request) {
	var sub notify.Subscription
	if !decodeJSON(w, r, &sub) {
		return
	}
	if sub.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}
	if err := s.push.Subscribe(sub); err != nil {
		logger.Errorf("push subscribe: %v", err)
		writeError(w, http.StatusInternalServerError, "subscription not saved")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

// answerIntent maps intent outcomes to HTTP: accepted intents are 202 (the
// effect arrives via the event stream), validation failures are 400.
func answerIntent(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
