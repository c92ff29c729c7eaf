package handler

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	texttemplate "text/template"
	"time"

	"autogramhandoff/config"
	"autogramhandoff/internal/agp/service"
	"autogramhandoff/pkg/logger"
	"autogramhandoff/store"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	iframeTemplate = template.Must(template.ParseFS(templateFS, "templates/iframe.html.tmpl"))
	sdkTemplate    = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/sdk.js.tmpl"))
)

type iframeView struct {
	SessionID           string
	Manifest            []store.ManifestDocument
	UseAutogram         bool
	AutogramSDKURL      string
	TargetOrigin        string
	DocumentSignedType  string
	SigningCompleteType string
}

type sdkView struct {
	BaseURL             string
	Origin              string
	DocumentSignedType  string
	SigningCompleteType string
}

type AGPHandler struct {
	Service   *service.SessionService
	Config    config.AGPConfig
	StartedAt time.Time
}

func NewAGPHandler(service *service.SessionService, cfg config.AGPConfig) *AGPHandler {
	return &AGPHandler{Service: service, Config: cfg, StartedAt: time.Now()}
}

func (h *AGPHandler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Hello AGP!"))
}

func (h *AGPHandler) StartSigning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req store.StartSigningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sessionID, err := h.Service.StartSigning(r.Context(), req)
	switch {
	case errors.Is(err, service.ErrInvalidAPIKey):
		http.Error(w, "Invalid API key", http.StatusUnauthorized)
		return
	case errors.Is(err, service.ErrInvalidManifest):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		logger.Sugar.Errorf("Handler: Failed to start signing: %v", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(store.StartSigningResponse{SessionID: sessionID})
}

func (h *AGPHandler) Iframe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "Missing session ID", http.StatusBadRequest)
		return
	}

	session, manifest, err := h.Service.Manifest(r.Context(), sessionID)
	if errors.Is(err, service.ErrSessionNotFound) {
		http.Error(w, "Invalid session ID", http.StatusUnauthorized)
		return
	} else if err != nil {
		logger.Sugar.Errorf("Handler: Failed to load manifest for session %s: %v", sessionID, err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	view := iframeView{
		SessionID:           sessionID,
		Manifest:            manifest,
		UseAutogram:         h.Config.SignerMode == config.SignerAutogram,
		AutogramSDKURL:      h.Config.AutogramSDKURL,
		TargetOrigin:        session.Origin,
		DocumentSignedType:  store.MessageDocumentSigned,
		SigningCompleteType: store.MessageSigningComplete,
	}
	var buf bytes.Buffer
	if err := iframeTemplate.Execute(&buf, view); err != nil {
		logger.Sugar.Errorf("Handler: Failed to render iframe for session %s: %v", sessionID, err)
		http.Error(w, "Failed to render iframe", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "frame-ancestors "+h.Config.FrameAncestors)
	w.Write(buf.Bytes())
}

func (h *AGPHandler) DocumentSigned(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req store.DocumentSignedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	_, err := h.Service.DocumentSigned(r.Context(), req)
	if !h.writeSessionError(w, err) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (h *AGPHandler) SigningComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req store.SigningCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := h.Service.SigningComplete(r.Context(), req.SessionID)
	if !h.writeSessionError(w, err) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (h *AGPHandler) SDK(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view := sdkView{
		BaseURL:             h.Config.BaseURL,
		Origin:              originOf(h.Config.BaseURL),
		DocumentSignedType:  store.MessageDocumentSigned,
		SigningCompleteType: store.MessageSigningComplete,
	}
	var buf bytes.Buffer
	if err := sdkTemplate.Execute(&buf, view); err != nil {
		logger.Sugar.Errorf("Handler: Failed to render sdk.js: %v", err)
		http.Error(w, "Failed to render sdk", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/javascript")
	w.Write(buf.Bytes())
}

func (h *AGPHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := h.Service.Repo.DB.PingContext(ctx); err != nil {
		status, code = err.Error(), http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"app":        "agp",
		"database":   status,
		"uptime_sec": int(time.Since(h.StartedAt).Seconds()),
	})
}

// writeSessionError maps service errors for session callbacks and reports whether the request may proceed.
func (h *AGPHandler) writeSessionError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, service.ErrMissingSessionID):
		http.Error(w, "Missing session ID", http.StatusBadRequest)
	case errors.Is(err, service.ErrMissingSignedDocument):
		http.Error(w, "Missing signed document", http.StatusBadRequest)
	case errors.Is(err, service.ErrSessionNotFound):
		http.Error(w, "Invalid session ID", http.StatusUnauthorized)
	default:
		logger.Sugar.Errorf("Handler: session callback failed: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
	}
	return false
}

func originOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return baseURL
	}
	return u.Scheme + "://" + u.Host
}
