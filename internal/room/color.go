package room

var colorPalette = [...]string{
	"blue",
	"green",
	"purple",
	"red",
	"pink",
	"indigo",
	"yellow",
}

// ColorFor returns the deterministic display color for a username, a pure
// function of the name so every client renders the same author the same way
func ColorFor(username string) string {
	var hash int32
	for _, r := range username {
		hash = int32(r) + ((hash << 5) - hash)
	}

	idx := int64(hash)
	if idx < 0 {
		idx = -idx
	}

	return colorPalette[idx%int64(len(colorPalette))]
}
