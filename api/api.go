package api

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/zlnvch/canvasverse/api/rest"
	"github.com/zlnvch/canvasverse/api/ws"
	"github.com/zlnvch/canvasverse/cache"
	"github.com/zlnvch/canvasverse/mq"
	"github.com/zlnvch/canvasverse/service"
	"github.com/zlnvch/canvasverse/store"
	"github.com/zlnvch/canvasverse/worker"
	"golang.org/x/oauth2"
)

type CanvasverseAPI struct {
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	wsUpgrader  websocket.Upgrader
	shutdownCtx context.Context
}

func NewCanvasverseAPI(
	canvasStore store.CanvasStore,
	canvasCleanupQueue mq.MessageQueue,
	canvasverseCache cache.CanvasverseCache,
	oauthConfigs map[string]*oauth2.Config,
	jwtSecret []byte,
	shutdownCtx context.Context,
) (*CanvasverseAPI, error) {
	svc, err := service.NewService(
		canvasStore,
		canvasverseCache,
		canvasCleanupQueue,
		oauthConfigs,
		jwtSecret,
	)
	if err != nil {
		log.Printf("Failed to create service: %v", err)
		return &CanvasverseAPI{}, err
	}

	wsHub := ws.NewHub(canvasverseCache, svc)
	err = wsHub.InitSubscriptions(shutdownCtx)
	if err != nil {
		log.Printf("Failed to start WS Hub subscriptions service: %v", err)
		return &CanvasverseAPI{}, err
	}
	go wsHub.Run()

	// Once-per-minute sweep of presence records past the purge threshold
	presenceReaper := worker.NewPresenceReaper(svc, 60000)
	go presenceReaper.Run(shutdownCtx)

	mqConsumer := worker.NewMQConsumer(canvasCleanupQueue, canvasStore, canvasverseCache)
	go mqConsumer.Run(shutdownCtx)

	restHandler := rest.NewHandler(svc)
	wsHandler := ws.NewHandler(svc, wsHub)

	return &CanvasverseAPI{
		restHandler: restHandler,
		wsHandler:   wsHandler,
		shutdownCtx: shutdownCtx,
	}, nil
}

func (canvasverseAPI *CanvasverseAPI) RegisterRoutes(mux *http.ServeMux, requiredOrigin string) {
	// Health check endpoint (no auth required)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /login", canvasverseAPI.restHandler.HandleLogin)
	mux.HandleFunc("GET /me", canvasverseAPI.restHandler.HandleGetMe)
	mux.HandleFunc("DELETE /me", canvasverseAPI.restHandler.HandleDeleteMe)

	mux.HandleFunc("GET /canvases", canvasverseAPI.restHandler.HandleListCanvases)
	mux.HandleFunc("POST /canvases", canvasverseAPI.restHandler.HandleCreateCanvas)
	mux.HandleFunc("GET /canvases/shared", canvasverseAPI.restHandler.HandleListSharedCanvases)
	mux.HandleFunc("POST /canvases/active-collaborators", canvasverseAPI.restHandler.HandleActiveCollaborators)

	mux.HandleFunc("GET /canvases/{canvasId}", canvasverseAPI.restHandler.HandleGetCanvas)
	mux.HandleFunc("PATCH /canvases/{canvasId}", canvasverseAPI.restHandler.HandleRenameCanvas)
	mux.HandleFunc("DELETE /canvases/{canvasId}", canvasverseAPI.restHandler.HandleDeleteCanvas)

	mux.HandleFunc("GET /canvases/{canvasId}/scene", canvasverseAPI.restHandler.HandleGetScene)
	mux.HandleFunc("PUT /canvases/{canvasId}/scene", canvasverseAPI.restHandler.HandleUpdateScene)

	mux.HandleFunc("PUT /canvases/{canvasId}/link-access", canvasverseAPI.restHandler.HandleSetLinkAccess)

	mux.HandleFunc("GET /canvases/{canvasId}/collaborators", canvasverseAPI.restHandler.HandleListCollaborators)
	mux.HandleFunc("POST /canvases/{canvasId}/collaborators", canvasverseAPI.restHandler.HandleAddCollaborator)
	mux.HandleFunc("PATCH /canvases/{canvasId}/collaborators/{userId}", canvasverseAPI.restHandler.HandleUpdateCollaborator)
	mux.HandleFunc("DELETE /canvases/{canvasId}/collaborators/{userId}", canvasverseAPI.restHandler.HandleRemoveCollaborator)

	mux.HandleFunc("GET /canvases/{canvasId}/presence", canvasverseAPI.restHandler.HandleGetPresence)

	wsUpgrader := canvasverseAPI.wsHandler.NewWsUpgrader(requiredOrigin)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		canvasverseAPI.wsHandler.ServeWS(wsUpgrader, w, r, canvasverseAPI.shutdownCtx)
	})
}
