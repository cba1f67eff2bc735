package scene

// CollaboratorColors is the fixed palette for collaborator cursors and
// selections. Twelve visually distinct colors.
var CollaboratorColors = [12]string{
	"#FF6B6B",
	"#4ECDC4",
	"#45B7D1",
	"#96CEB4",
	"#FFEAA7",
	"#DDA0DD",
	"#98D8C8",
	"#F7DC6F",
	"#BB8FCE",
	"#85C1E9",
	"#F0B27A",
	"#82E0AA",
}

// ColorFor deterministically maps a user id to a palette member. Uses a
// 32-bit overflow-wrapping string hash (hash*31 + ch), so the same id
// yields the same color across processes and restarts.
func ColorFor(userId string) string {
	var hash int32
	for _, ch := range userId {
		hash = hash<<5 - hash + ch
	}
	abs := int64(hash)
	if abs < 0 {
		abs = -abs
	}
	return CollaboratorColors[abs%int64(len(CollaboratorColors))]
}
