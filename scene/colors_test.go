package scene_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zlnvch/canvasverse/scene"
)

func TestColorFor_Deterministic(t *testing.T) {
	ids := []string{"", "a", "user-123", "1f2d3c4b-5a69-7887-9605-a4b3c2d1e0f9"}

	for _, id := range ids {
		first := scene.ColorFor(id)
		second := scene.ColorFor(id)
		assert.Equal(t, first, second, "color for %q must be stable", id)
	}
}

func TestColorFor_AlwaysAPaletteMember(t *testing.T) {
	palette := make(map[string]bool)
	for _, c := range scene.CollaboratorColors {
		palette[c] = true
	}

	ids := []string{"", "a", "ab", "zyx", "user-1", "user-2", "user-3", "some-very-long-user-identifier-string"}
	for _, id := range ids {
		assert.True(t, palette[scene.ColorFor(id)], "color for %q not in palette", id)
	}
}

func TestColorFor_KnownValues(t *testing.T) {
	// hash("a") = 97, 97 % 12 = 1
	assert.Equal(t, scene.CollaboratorColors[1], scene.ColorFor("a"))
	// hash("ab") = 97*31 + 98 = 3105, 3105 % 12 = 9
	assert.Equal(t, scene.CollaboratorColors[9], scene.ColorFor("ab"))
}
