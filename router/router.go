package router

import (
	"net/http"

	"autogramhandoff/config"
	agpHandler "autogramhandoff/internal/agp"
	agpService "autogramhandoff/internal/agp/service"
	daHandler "autogramhandoff/internal/da"
	daService "autogramhandoff/internal/da/service"
	"autogramhandoff/middleware"
	"autogramhandoff/socket"
)

func SetupAGP(svc *agpService.SessionService, cfg config.AGPConfig) http.Handler {
	mux := http.NewServeMux()
	h := agpHandler.NewAGPHandler(svc, cfg)

	mux.HandleFunc("/", h.Home)
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/sdk.js", h.SDK)
	mux.HandleFunc("/iframe", h.Iframe)
	mux.HandleFunc("/start-signing", h.StartSigning)
	mux.HandleFunc("/document-signed", h.DocumentSigned)
	mux.HandleFunc("/signing-complete", h.SigningComplete)

	return mux
}

func SetupDA(svc *daService.DocumentService, hub *socket.Hub, cfg config.DAConfig) http.Handler {
	mux := http.NewServeMux()
	h := daHandler.NewDAHandler(svc, cfg)

	mux.HandleFunc("/", h.Home)
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/sign", h.Sign)
	mux.HandleFunc("/sessions/{id}", h.GetSession)

	// The AGP frame fetches document content from its own origin.
	mux.Handle("/documents", middleware.CORSMiddleware(http.HandlerFunc(h.Documents)))
	mux.Handle("/documents/{id}", middleware.CORSMiddleware(http.HandlerFunc(h.GetDocument)))

	callbackAuth := middleware.CallbackAuth(cfg.APIKey)
	mux.Handle("/callbacks/document-signed", callbackAuth(http.HandlerFunc(h.DocumentSignedCallback)))
	mux.Handle("/callbacks/signing-complete", callbackAuth(http.HandlerFunc(h.SigningCompleteCallback)))

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r)
	})

	return mux
}
