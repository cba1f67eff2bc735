package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	cachemocks "github.com/zlnvch/canvasverse/cache/mocks"
	"github.com/zlnvch/canvasverse/models"
	mqmocks "github.com/zlnvch/canvasverse/mq/mocks"
	"github.com/zlnvch/canvasverse/scene"
	"github.com/zlnvch/canvasverse/service"
	"github.com/zlnvch/canvasverse/store"
	storemocks "github.com/zlnvch/canvasverse/store/mocks"
)

func setupWsHandler(t *testing.T) (*Handler, *storemocks.MockStore, *cachemocks.MockCache) {
	mockStore := new(storemocks.MockStore)
	mockCache := new(cachemocks.MockCache)
	mockMQ := new(mqmocks.MockMQ)

	svc, err := service.NewService(
		mockStore,
		mockCache,
		mockMQ,
		nil,
		[]byte("secret"),
	)
	assert.NoError(t, err)

	hub := NewHub(mockCache, svc)
	return NewHandler(svc, hub), mockStore, mockCache
}

// joinCanvas drives a join for a collaborative canvas holding the given
// elements and registers the client with the hub's canvas map, the same
// state the run loop would build from the subscribe channel.
func joinCanvas(t *testing.T, h *Handler, client *Client, canvasId string, elements []models.Element, mockStore *storemocks.MockStore, mockCache *cachemocks.MockCache) {
	t.Helper()

	data, err := scene.EncodePayload(models.ScenePayload{Elements: elements})
	assert.NoError(t, err)

	canvas := models.Canvas{
		Id:                   canvasId,
		OwnerId:              client.user.Id,
		Data:                 data,
		UpdatedAt:            100,
		CollaborationEnabled: true,
	}
	mockStore.On("GetCanvas", mock.Anything, canvasId).Return(canvas, nil)
	mockStore.On("GetAccessRecord", mock.Anything, canvasId, client.user.Id).Return(models.AccessRecord{}, store.ErrItemNotFound)
	mockCache.On("UpsertPresence", mock.Anything, canvasId, client.user.Id, mock.Anything, mock.Anything).Return(nil)
	mockCache.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mockCache.On("GetPresence", mock.Anything, canvasId).Return([][]byte{}, nil)

	resp := h.handleJoin(client, canvasMessage{CanvasId: canvasId})
	respData := resp.Data.(map[string]any)
	assert.True(t, respData["success"].(bool))

	h.Hub.canvasToClients[canvasId] = map[*Client]struct{}{client: {}}
	client.subscribedCanvases[canvasId] = struct{}{}
}

func receiveEnvelope(t *testing.T, client *Client) responseMessage {
	t.Helper()
	select {
	case raw := <-client.Send:
		var envelope responseMessage
		assert.NoError(t, json.Unmarshal(raw, &envelope))
		return envelope
	default:
		t.Fatal("expected an outbound message")
		return responseMessage{}
	}
}

func TestHub_SceneEventReachesClientAsMergedScene(t *testing.T) {
	h, mockStore, mockCache := setupWsHandler(t)
	client := NewClient(h.Hub, nil, models.User{Id: "user1", Username: "Ann"}, nil, nil)

	local := []models.Element{{Id: "a", Type: "rectangle", Version: 1, VersionNonce: 1}}
	joinCanvas(t, h, client, "c1", local, mockStore, mockCache)

	remote, err := scene.EncodePayload(models.ScenePayload{
		Elements: []models.Element{{Id: "b", Type: "ellipse", Version: 1, VersionNonce: 1}},
	})
	assert.NoError(t, err)
	payload, err := json.Marshal(service.SceneUpdateMessage{
		CanvasId:  "c1",
		UserId:    "user2",
		Data:      remote,
		UpdatedAt: 200,
	})
	assert.NoError(t, err)

	h.Hub.dispatchCanvasEvent(canvasEvent{canvasId: "c1", messageType: "scene_update", payload: payload})

	envelope := receiveEnvelope(t, client)
	assert.Equal(t, "scene_update", envelope.Type)

	var event struct {
		CanvasId string `json:"canvasId"`
		Data     string `json:"data"`
	}
	eventBytes, err := json.Marshal(envelope.Data)
	assert.NoError(t, err)
	assert.NoError(t, json.Unmarshal(eventBytes, &event))
	assert.Equal(t, "c1", event.CanvasId)

	// The client gets the reconciled element set, not the raw published
	// payload: its own element survives alongside the remote one.
	merged, err := scene.DecodePayload(event.Data)
	assert.NoError(t, err)
	ids := make([]string, 0, len(merged.Elements))
	for _, e := range merged.Elements {
		ids = append(ids, e.Id)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestHub_SceneEventIgnoresOwnEcho(t *testing.T) {
	h, mockStore, mockCache := setupWsHandler(t)
	client := NewClient(h.Hub, nil, models.User{Id: "user1", Username: "Ann"}, nil, nil)

	local := []models.Element{{Id: "a", Type: "rectangle", Version: 1, VersionNonce: 1}}
	joinCanvas(t, h, client, "c1", local, mockStore, mockCache)

	// The snapshot the session joined with, published back verbatim
	echo, err := scene.EncodePayload(models.ScenePayload{Elements: local})
	assert.NoError(t, err)
	session := client.session("c1")
	assert.NotNil(t, session)
	payload, err := json.Marshal(service.SceneUpdateMessage{CanvasId: "c1", UserId: "user1", Data: echo})
	assert.NoError(t, err)

	h.Hub.dispatchCanvasEvent(canvasEvent{canvasId: "c1", messageType: "scene_update", payload: payload})

	select {
	case <-client.Send:
		t.Fatal("echoed snapshot must not be re-delivered")
	default:
	}
}

func TestHub_PresenceEventRebuildsRosterWithoutSelf(t *testing.T) {
	h, mockStore, mockCache := setupWsHandler(t)
	client := NewClient(h.Hub, nil, models.User{Id: "user1", Username: "Ann"}, nil, nil)

	joinCanvas(t, h, client, "c1", nil, mockStore, mockCache)

	selfRow, _ := json.Marshal(models.PresenceRecord{CanvasId: "c1", UserId: "user1", UserName: "Ann"})
	peerRow, _ := json.Marshal(models.PresenceRecord{CanvasId: "c1", UserId: "user2", UserName: "Bob", UserColor: "#e64980"})
	mockCache.ExpectedCalls = nil
	mockCache.On("GetPresence", mock.Anything, "c1").Return([][]byte{selfRow, peerRow}, nil)

	payload, _ := json.Marshal(service.PresenceUpdateMessage{CanvasId: "c1", UserId: "user2"})
	h.Hub.dispatchCanvasEvent(canvasEvent{canvasId: "c1", messageType: "presence_update", payload: payload})

	envelope := receiveEnvelope(t, client)
	assert.Equal(t, "presence_update", envelope.Type)

	var event struct {
		CanvasId      string `json:"canvasId"`
		Collaborators map[string]struct {
			UserName string `json:"userName"`
		} `json:"collaborators"`
	}
	eventBytes, err := json.Marshal(envelope.Data)
	assert.NoError(t, err)
	assert.NoError(t, json.Unmarshal(eventBytes, &event))

	assert.Equal(t, "c1", event.CanvasId)
	assert.NotContains(t, event.Collaborators, "user1")
	assert.Equal(t, "Bob", event.Collaborators["user2"].UserName)
}

func TestHub_DetachedClientGetsNothingAfterSendCloses(t *testing.T) {
	h, mockStore, mockCache := setupWsHandler(t)
	client := NewClient(h.Hub, nil, models.User{Id: "user1", Username: "Ann"}, nil, nil)

	joinCanvas(t, h, client, "c1", nil, mockStore, mockCache)

	// The user-deleted path detaches the client from every canvas before
	// closing its send channel; a later event must not reach it.
	h.Hub.detachClient(client)
	close(client.Send)

	payload, _ := json.Marshal(service.SceneUpdateMessage{CanvasId: "c1", UserId: "user2", Data: "{}"})
	h.Hub.dispatchCanvasEvent(canvasEvent{canvasId: "c1", messageType: "scene_update", payload: payload})
}

func TestHandleRoster_RequiresJoinedCanvas(t *testing.T) {
	h, _, mockCache := setupWsHandler(t)
	client := NewClient(h.Hub, nil, models.User{Id: "user1", Username: "Ann"}, nil, nil)

	resp := h.handleRoster(client, canvasMessage{CanvasId: "c1"})

	assert.Equal(t, "roster_response", resp.Type)
	respData := resp.Data.(map[string]any)
	assert.False(t, respData["success"].(bool))
	mockCache.AssertNotCalled(t, "GetPresence", mock.Anything, mock.Anything)
}
