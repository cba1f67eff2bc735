package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/zlnvch/canvasverse/models"
	"github.com/zlnvch/canvasverse/service"
	"github.com/zlnvch/canvasverse/store"
)

type Handler struct {
	Service *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{Service: svc}
}

type loginRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
}

type loginResponse struct {
	Username string `json:"username"`
	Id       string `json:"id"`
	Provider string `json:"provider"`
	Token    string `json:"token"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, token, err := h.Service.Login(r.Context(), req.Provider, req.Code)
	if err != nil {
		log.Printf("Login failed: %v", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	resp := loginResponse{
		Username: user.Username,
		Id:       user.Id,
		Provider: user.Provider,
		Token:    token,
	}
	h.sendResponse(w, resp)
}

type getUserResponse struct {
	Username string `json:"username"`
	Id       string `json:"id"`
	Provider string `json:"provider"`
}

func (h *Handler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	resp := getUserResponse{
		Username: user.Username,
		Id:       user.Id,
		Provider: user.Provider,
	}
	h.sendResponse(w, resp)
}

type successResponse struct {
	Success bool `json:"success"`
}

func (h *Handler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if err := h.Service.DeleteUser(r.Context(), user); err != nil {
		http.Error(w, "failed to delete user", http.StatusInternalServerError)
		return
	}

	h.sendResponse(w, successResponse{Success: true})
}

type createCanvasRequest struct {
	Title string `json:"title"`
}

func (h *Handler) HandleCreateCanvas(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req createCanvasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	canvas, err := h.Service.CreateCanvas(r.Context(), user, req.Title)
	if err != nil {
		h.sendServiceError(w, err, "create canvas")
		return
	}

	h.sendResponse(w, canvas)
}

func (h *Handler) HandleListCanvases(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	canvases, err := h.Service.ListCanvases(r.Context(), user)
	if err != nil {
		h.sendServiceError(w, err, "list canvases")
		return
	}

	h.sendResponse(w, filterByTitle(canvases, r.URL.Query().Get("title")))
}

// filterByTitle applies the optional case-insensitive title filter on the
// listing endpoints.
func filterByTitle(canvases []models.Canvas, title string) []models.Canvas {
	if title == "" {
		return canvases
	}
	filtered := make([]models.Canvas, 0, len(canvases))
	for _, canvas := range canvases {
		if strings.Contains(strings.ToLower(canvas.Title), strings.ToLower(title)) {
			filtered = append(filtered, canvas)
		}
	}
	return filtered
}

func (h *Handler) HandleListSharedCanvases(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	canvases, err := h.Service.ListSharedCanvases(r.Context(), user)
	if err != nil {
		h.sendServiceError(w, err, "list shared canvases")
		return
	}

	h.sendResponse(w, filterByTitle(canvases, r.URL.Query().Get("title")))
}

type activeCollaboratorsRequest struct {
	CanvasIds []string `json:"canvasIds"`
}

func (h *Handler) HandleActiveCollaborators(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	var req activeCollaboratorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	summaries, err := h.Service.ActiveCollaborators(r.Context(), req.CanvasIds, time.Now().UnixMilli())
	if err != nil {
		h.sendServiceError(w, err, "active collaborators")
		return
	}

	h.sendResponse(w, summaries)
}

func (h *Handler) HandleGetCanvas(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	canvas, err := h.Service.GetCanvas(r.Context(), user, r.PathValue("canvasId"))
	if err != nil {
		h.sendServiceError(w, err, "get canvas")
		return
	}

	h.sendResponse(w, canvas)
}

type renameCanvasRequest struct {
	Title string `json:"title"`
}

func (h *Handler) HandleRenameCanvas(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req renameCanvasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.RenameCanvas(r.Context(), user, r.PathValue("canvasId"), req.Title); err != nil {
		h.sendServiceError(w, err, "rename canvas")
		return
	}

	h.sendResponse(w, successResponse{Success: true})
}

func (h *Handler) HandleDeleteCanvas(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if err := h.Service.DeleteCanvas(r.Context(), user, r.PathValue("canvasId")); err != nil {
		h.sendServiceError(w, err, "delete canvas")
		return
	}

	h.sendResponse(w, successResponse{Success: true})
}

type sceneResponse struct {
	Data      string `json:"data"`
	UpdatedAt int64  `json:"updatedAt"`
}

func (h *Handler) HandleGetScene(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	data, updatedAt, err := h.Service.GetSceneData(r.Context(), user, r.PathValue("canvasId"))
	if err != nil {
		h.sendServiceError(w, err, "get scene")
		return
	}

	h.sendResponse(w, sceneResponse{Data: data, UpdatedAt: updatedAt})
}

type updateSceneRequest struct {
	Data            string `json:"data"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

type updateSceneResponse struct {
	Success   bool  `json:"success"`
	UpdatedAt int64 `json:"updatedAt"`
}

type versionConflictResponse struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	CurrentVersion int64  `json:"currentVersion"`
}

func (h *Handler) HandleUpdateScene(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req updateSceneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updatedAt, err := h.Service.UpdateScene(r.Context(), user.Id, r.PathValue("canvasId"), req.Data, req.ExpectedVersion)
	if err != nil {
		var conflict *service.VersionConflictError
		if errors.As(err, &conflict) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(versionConflictResponse{
				Success:        false,
				Error:          "version_conflict",
				CurrentVersion: conflict.StoredVersion,
			})
			return
		}
		h.sendServiceError(w, err, "update scene")
		return
	}

	h.sendResponse(w, updateSceneResponse{Success: true, UpdatedAt: updatedAt})
}

type linkAccessRequest struct {
	Enabled bool               `json:"enabled"`
	Level   models.AccessLevel `json:"level"`
}

func (h *Handler) HandleSetLinkAccess(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req linkAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.SetLinkAccess(r.Context(), user, r.PathValue("canvasId"), req.Enabled, req.Level); err != nil {
		h.sendServiceError(w, err, "set link access")
		return
	}

	h.sendResponse(w, successResponse{Success: true})
}

func (h *Handler) HandleListCollaborators(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	records, err := h.Service.ListCollaborators(r.Context(), user, r.PathValue("canvasId"))
	if err != nil {
		h.sendServiceError(w, err, "list collaborators")
		return
	}

	h.sendResponse(w, records)
}

type collaboratorRequest struct {
	UserId      string             `json:"userId"`
	AccessLevel models.AccessLevel `json:"accessLevel"`
}

func (h *Handler) HandleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req collaboratorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.AddCollaborator(r.Context(), user, r.PathValue("canvasId"), req.UserId, req.AccessLevel); err != nil {
		h.sendServiceError(w, err, "add collaborator")
		return
	}

	h.sendResponse(w, successResponse{Success: true})
}

type updateCollaboratorRequest struct {
	AccessLevel models.AccessLevel `json:"accessLevel"`
}

func (h *Handler) HandleUpdateCollaborator(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req updateCollaboratorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.UpdateAccessLevel(r.Context(), user, r.PathValue("canvasId"), r.PathValue("userId"), req.AccessLevel); err != nil {
		h.sendServiceError(w, err, "update collaborator")
		return
	}

	h.sendResponse(w, successResponse{Success: true})
}

func (h *Handler) HandleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if err := h.Service.RemoveCollaborator(r.Context(), user, r.PathValue("canvasId"), r.PathValue("userId")); err != nil {
		h.sendServiceError(w, err, "remove collaborator")
		return
	}

	h.sendResponse(w, successResponse{Success: true})
}

func (h *Handler) HandleGetPresence(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	// Presence is only visible to users who can open the canvas
	if _, err := h.Service.GetCanvas(r.Context(), user, r.PathValue("canvasId")); err != nil {
		h.sendServiceError(w, err, "get presence")
		return
	}

	collaborators, err := h.Service.ListActive(r.Context(), r.PathValue("canvasId"), time.Now().UnixMilli())
	if err != nil {
		h.sendServiceError(w, err, "get presence")
		return
	}

	h.sendResponse(w, collaborators)
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	token := h.getTokenFromAuthHeader(r)
	user, err := h.Service.AuthenticateToken(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return models.User{}, false
	}
	return user, true
}

func (h *Handler) sendServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, service.ErrAccessExists):
		http.Error(w, "user already has access", http.StatusConflict)
	case errors.Is(err, store.ErrItemNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		log.Printf("%s failed: %v", op, err)
		http.Error(w, op+" failed", http.StatusInternalServerError)
	}
}

func (h *Handler) sendResponse(w http.ResponseWriter, resp any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (h *Handler) getTokenFromAuthHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, prefix)
}
