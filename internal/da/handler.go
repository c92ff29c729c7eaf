package handler

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"autogramhandoff/config"
	"autogramhandoff/internal/da/model"
	"autogramhandoff/internal/da/service"
	"autogramhandoff/middleware"
	"autogramhandoff/pkg/logger"
	"autogramhandoff/socket"
	"autogramhandoff/store"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl"))
	signTemplate  = template.Must(template.ParseFS(templateFS, "templates/sign.html.tmpl"))
)

type indexView struct {
	Documents []model.Document
}

type signView struct {
	SessionID           string
	SDKURL              string
	DocumentSignedType  string
	SigningCompleteType string
}

type DAHandler struct {
	Service   *service.DocumentService
	Config    config.DAConfig
	StartedAt time.Time
}

func NewDAHandler(service *service.DocumentService, cfg config.DAConfig) *DAHandler {
	return &DAHandler{Service: service, Config: cfg, StartedAt: time.Now()}
}

func (h *DAHandler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	docs, err := h.Service.ListDocuments(r.Context())
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to list documents: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	h.render(w, indexTemplate, indexView{Documents: docs})
}

func (h *DAHandler) Sign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID, err := h.Service.StartSigning(r.Context())
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to start signing process: %v", err)
		http.Error(w, "Failed to start signing process", http.StatusInternalServerError)
		return
	}

	h.render(w, signTemplate, signView{
		SessionID:           sessionID,
		SDKURL:              strings.TrimRight(h.Config.AGPURL, "/") + "/sdk.js",
		DocumentSignedType:  socket.DocumentSignedType,
		SigningCompleteType: socket.SigningCompleteType,
	})
}

func (h *DAHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doc, err := h.Service.GetDocument(r.Context(), r.PathValue("id"))
	if errors.Is(err, service.ErrDocumentNotFound) {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	} else if err != nil {
		logger.Sugar.Errorf("Handler: Failed to load document: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(doc.Content))
}

func (h *DAHandler) Documents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		docs, err := h.Service.ListDocuments(r.Context())
		if err != nil {
			logger.Sugar.Errorf("Handler: Failed to list documents: %v", err)
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(docs)

	case http.MethodPost:
		var req model.CreateDocRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		docID, err := h.Service.CreateDocument(r.Context(), req.Title, req.Content)
		if errors.Is(err, service.ErrEmptyContent) {
			http.Error(w, "Content cannot be empty", http.StatusBadRequest)
			return
		} else if err != nil {
			logger.Sugar.Errorf("Handler: Failed to create document: %v", err)
			http.Error(w, "Failed to create document", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(model.CreateDocResponse{DocID: docID})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// DocumentSignedCallback receives a signed document the AGP relayed for one of our sessions.
func (h *DAHandler) DocumentSignedCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req store.DocumentSignedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !tokenMatches(w, r, req.SessionID) {
		return
	}

	if !h.writeCallbackError(w, h.Service.RecordSigned(r.Context(), req)) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (h *DAHandler) SigningCompleteCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req store.SigningCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !tokenMatches(w, r, req.SessionID) {
		return
	}

	if !h.writeCallbackError(w, h.Service.CompleteSigning(r.Context(), req.SessionID)) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (h *DAHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, err := h.Service.GetSession(r.Context(), r.PathValue("id"))
	if errors.Is(err, service.ErrSessionNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	} else if err != nil {
		logger.Sugar.Errorf("Handler: Failed to load session: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

func (h *DAHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := h.Service.Repo.DB.PingContext(ctx); err != nil {
		status, code = err.Error(), http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"app":        "da",
		"database":   status,
		"uptime_sec": int(time.Since(h.StartedAt).Seconds()),
	})
}

func (h *DAHandler) render(w http.ResponseWriter, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		logger.Sugar.Errorf("Handler: Failed to render %s: %v", tmpl.Name(), err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (h *DAHandler) writeCallbackError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, service.ErrMissingSignedDoc):
		http.Error(w, "Missing signed document", http.StatusBadRequest)
	case errors.Is(err, service.ErrDigestMismatch):
		http.Error(w, "Digest mismatch", http.StatusBadRequest)
	case errors.Is(err, service.ErrSessionNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
	default:
		logger.Sugar.Errorf("Handler: callback failed: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
	}
	return false
}

// tokenMatches rejects callbacks whose token was issued for a different session.
func tokenMatches(w http.ResponseWriter, r *http.Request, sessionID string) bool {
	tokenSession, ok := middleware.SessionID(r.Context())
	if !ok || sessionID == "" || tokenSession != sessionID {
		http.Error(w, "Forbidden: token does not match session", http.StatusForbidden)
		return false
	}
	return true
}
