package scene_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zlnvch/canvasverse/models"
	"github.com/zlnvch/canvasverse/scene"
)

func TestPayload_RoundTrip(t *testing.T) {
	payload := models.ScenePayload{
		Elements: []models.Element{
			{Id: "a", Type: "rectangle", Version: 3, X: 10.5, Y: -2},
			{Id: "b", Type: "ellipse", Version: 7, X: 0, Y: 99.25},
		},
		AppState: models.AppState{ViewBackgroundColor: "#ffffff", GridSize: 20},
	}

	data, err := scene.EncodePayload(payload)
	assert.NoError(t, err)

	decoded, err := scene.DecodePayload(data)
	assert.NoError(t, err)

	assert.Len(t, decoded.Elements, 2)
	for i, e := range payload.Elements {
		assert.Equal(t, e.Id, decoded.Elements[i].Id)
		assert.Equal(t, e.Version, decoded.Elements[i].Version)
		assert.Equal(t, e.Type, decoded.Elements[i].Type)
		assert.Equal(t, e.X, decoded.Elements[i].X)
		assert.Equal(t, e.Y, decoded.Elements[i].Y)
	}
	assert.Equal(t, payload.AppState, decoded.AppState)
}

func TestDecodePayload_AcceptsBareElementArray(t *testing.T) {
	decoded, err := scene.DecodePayload(`[{"id":"a","type":"rectangle","version":2}]`)
	assert.NoError(t, err)
	assert.Len(t, decoded.Elements, 1)
	assert.Equal(t, "a", decoded.Elements[0].Id)
}

func TestDecodePayload_EnvelopeWithoutElementsIsEmptyScene(t *testing.T) {
	decoded, err := scene.DecodePayload(`{}`)
	assert.NoError(t, err)
	assert.NotNil(t, decoded.Elements)
	assert.Empty(t, decoded.Elements)

	decoded, err = scene.DecodePayload(`{"elements":null,"appState":{"viewBackgroundColor":"#fff"},"files":{}}`)
	assert.NoError(t, err)
	assert.NotNil(t, decoded.Elements)
	assert.Empty(t, decoded.Elements)
	assert.Equal(t, "#fff", decoded.AppState.ViewBackgroundColor)
}

func TestDecodePayload_RejectsEmptyAndMalformed(t *testing.T) {
	_, err := scene.DecodePayload("")
	assert.Error(t, err)

	_, err = scene.DecodePayload("{not json")
	assert.Error(t, err)

	// Valid JSON but neither an envelope nor an element array
	_, err = scene.DecodePayload(`"just a string"`)
	assert.Error(t, err)

	_, err = scene.DecodePayload(`null`)
	assert.Error(t, err)
}

func TestFilterFiles_KeepsOnlyReferencedFiles(t *testing.T) {
	payload := models.ScenePayload{
		Elements: []models.Element{
			{Id: "a", Type: "image", FileId: "f1"},
			{Id: "b", Type: "rectangle"},
			{Id: "c", Type: "image", FileId: ""},
		},
		Files: map[string]models.BinaryFile{
			"f1": {Id: "f1", MimeType: "image/png"},
			"f2": {Id: "f2", MimeType: "image/jpeg"},
		},
	}

	filtered := scene.FilterFiles(payload)

	assert.Len(t, filtered.Files, 1)
	_, ok := filtered.Files["f1"]
	assert.True(t, ok)
}

func TestFilterFiles_NoFilesIsPassThrough(t *testing.T) {
	payload := models.ScenePayload{
		Elements: []models.Element{{Id: "a", Type: "rectangle"}},
	}

	filtered := scene.FilterFiles(payload)
	assert.Equal(t, payload, filtered)
}
