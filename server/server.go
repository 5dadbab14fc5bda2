// Package server exposes health, metrics, the YouTube OAuth web flow, channel
// lookup and the upload settings checks over HTTP.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"shorts-pipeline/config"
	"shorts-pipeline/upload"
	"shorts-pipeline/ytauth"
)

const stateCookie = "yt_oauth_state"

// OAuth is the YouTube authorization backend
type OAuth interface {
	Configured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Status(ctx context.Context) ytauth.Status
	Clear() error
}

// Channels looks up YouTube channels
type Channels interface {
	ChannelInfo(ctx context.Context, channelID string) (*upload.Channel, error)
}

type Server struct {
	cfg      config.ServerConfig
	upload   config.UploadConfig
	oauth    OAuth
	channels Channels
	gatherer prometheus.Gatherer
	log      zerolog.Logger
}

// New builds a server. A nil channels disables the channel lookup route.
func New(cfg config.ServerConfig, uploadCfg config.UploadConfig, oauth OAuth, channels Channels, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		cfg:      cfg,
		upload:   uploadCfg,
		oauth:    oauth,
		channels: channels,
		gatherer: gatherer,
		log:      log.With().Str("component", "server").Logger(),
	}
}

// Handler builds the router with panic recovery and access logging
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	oauth := r.PathPrefix("/api/youtube/oauth").Subrouter()
	oauth.HandleFunc("/initiate", s.initiate).Methods(http.MethodGet)
	oauth.HandleFunc("/callback", s.callback).Methods(http.MethodGet)
	oauth.HandleFunc("/status", s.status).Methods(http.MethodGet)
	oauth.HandleFunc("/clear", s.clear).Methods(http.MethodPost)

	r.HandleFunc("/api/youtube/channel/{channelId}", s.channel).Methods(http.MethodGet)

	cfg := r.PathPrefix("/api/youtube/config").Subrouter()
	cfg.HandleFunc("/upload-settings", s.uploadSettings).Methods(http.MethodGet)
	cfg.HandleFunc("/validate-settings", s.validateSettings).Methods(http.MethodGet)
	cfg.HandleFunc("/upload-readiness", s.uploadReadiness).Methods(http.MethodGet)

	recovered := handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.log}))(r)
	return handlers.LoggingHandler(s.log, recovered)
}

// Run serves until ctx is done, then drains for ShutdownTimeout
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("🌐 http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.log.Info().Msg("shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	s.log.Info().Msg("http server stopped cleanly")
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) initiate(w http.ResponseWriter, r *http.Request) {
	if !s.oauth.Configured() {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("YOUTUBE_CLIENT_ID and YOUTUBE_CLIENT_SECRET are not set"))
		return
	}
	state, err := newState()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("could not create state"))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/youtube/oauth",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		s.log.Warn().Str("error", e).Msg("authorization denied")
		writePage(w, http.StatusBadRequest, "YouTube authorization failed", "Google returned: "+e)
		return
	}
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || c.Value != q.Get("state") {
		writePage(w, http.StatusBadRequest, "YouTube authorization failed", "The state check failed. Start again from /api/youtube/oauth/initiate.")
		return
	}
	code := q.Get("code")
	if code == "" {
		writePage(w, http.StatusBadRequest, "YouTube authorization failed", "No authorization code was returned.")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/api/youtube/oauth", MaxAge: -1})
	if _, err := s.oauth.Exchange(r.Context(), code); err != nil {
		s.log.Error().Err(err).Msg("❌ code exchange failed")
		writePage(w, http.StatusBadGateway, "YouTube authorization failed", err.Error())
		return
	}
	s.log.Info().Msg("✅ youtube authorized")
	writePage(w, http.StatusOK, "YouTube authorization complete", "You can close this tab and check /youtube_auth in the bot.")
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.oauth.Status(r.Context()))
}

func (s *Server) clear(w http.ResponseWriter, _ *http.Request) {
	if err := s.oauth.Clear(); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) channel(w http.ResponseWriter, r *http.Request) {
	if s.channels == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("channel lookup is not configured"))
		return
	}
	id := mux.Vars(r)["channelId"]
	ch, err := s.channels.ChannelInfo(r.Context(), id)
	switch {
	case errors.Is(err, upload.ErrChannelNotFound):
		s.log.Warn().Str("channel_id", id).Msg("no channel found")
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, ytauth.ErrNotAuthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody(err.Error()))
	case err != nil:
		s.log.Error().Err(err).Str("channel_id", id).Msg("channel lookup failed")
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
	default:
		writeJSON(w, http.StatusOK, ch)
	}
}

func (s *Server) uploadSettings(w http.ResponseWriter, _ *http.Request) {
	u := s.upload
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"settings": map[string]any{
			"category_id":            u.CategoryID,
			"category_name":          categoryName(u.CategoryID),
			"default_language":       u.Language,
			"default_tags":           u.Tags,
			"made_for_kids":          u.MadeForKids,
			"default_playlist":       u.Playlist,
			"default_privacy_status": u.Privacy,
			"license":                u.License,
			"embeddable":             u.Embeddable,
			"public_stats_viewable":  u.PublicStatsViewable,
			"notify_subscribers":     u.NotifySubscribers,
		},
	})
}

func (s *Server) validateSettings(w http.ResponseWriter, _ *http.Request) {
	report := s.upload.Check()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"validation": report,
	})
}

func (s *Server) uploadReadiness(w http.ResponseWriter, r *http.Request) {
	st := s.oauth.Status(r.Context())
	report := s.upload.Check()
	ready := st.Authenticated && report.AllValid
	msg := "ready to upload"
	switch {
	case !st.Authenticated:
		msg = "YouTube is not authorized"
	case !report.AllValid:
		msg = "upload settings are invalid"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":      ready,
		"message":    msg,
		"auth":       st,
		"validation": report,
	})
}

func categoryName(id string) string {
	if name, ok := config.Categories[id]; ok {
		return name
	}
	return "Unknown"
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func errorBody(msg string) map[string]string {
	return map[string]string{"status": "error", "message": msg}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writePage(w http.ResponseWriter, code int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprintf(w, "<!doctype html><html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>",
		html.EscapeString(title), html.EscapeString(title), html.EscapeString(body))
}

type recoveryLogger struct{ log zerolog.Logger }

func (l recoveryLogger) Println(v ...any) {
	l.log.Error().Msg(fmt.Sprint(v...))
}
