package scene

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/zlnvch/canvasverse/models"
)

// EncodePayload serializes a scene payload for storage in Canvas.Data.
func EncodePayload(payload models.ScenePayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodePayload parses a serialized scene. A bare element array is
// accepted for compatibility with early documents that stored elements
// without the payload envelope. An envelope with absent or null elements
// is a valid empty scene; anything that is not an object or an array is
// malformed.
func DecodePayload(data string) (models.ScenePayload, error) {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return models.ScenePayload{}, errors.New("empty scene data")
	}

	if strings.HasPrefix(trimmed, "{") {
		var payload models.ScenePayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return models.ScenePayload{}, errors.New("malformed scene data")
		}
		if payload.Elements == nil {
			payload.Elements = []models.Element{}
		}
		return payload, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var elements []models.Element
		if err := json.Unmarshal([]byte(data), &elements); err != nil {
			return models.ScenePayload{}, errors.New("malformed scene data")
		}
		return models.ScenePayload{Elements: elements}, nil
	}

	return models.ScenePayload{}, errors.New("malformed scene data")
}

// FilterFiles drops every file not referenced by an image element with a
// matching fileId. This bounds payload size and storage growth: a file
// whose element was replaced must not ride along forever.
func FilterFiles(payload models.ScenePayload) models.ScenePayload {
	if len(payload.Files) == 0 {
		return payload
	}

	used := make(map[string]struct{})
	for _, el := range payload.Elements {
		if el.Type == "image" && el.FileId != "" {
			used[el.FileId] = struct{}{}
		}
	}

	files := make(map[string]models.BinaryFile, len(used))
	for id, f := range payload.Files {
		if _, ok := used[id]; ok {
			files[id] = f
		}
	}

	payload.Files = files
	return payload
}
