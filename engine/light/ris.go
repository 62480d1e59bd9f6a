package light

// RISLayout places the presampled light tiles in the RIS buffer. Local light tiles come first,
// environment tiles follow.
type RISLayout struct {
	TileSize  uint32
	TileCount uint32

	LocalOffset       uint32
	EnvironmentOffset uint32
	// Total is the RIS buffer length in elements.
	Total uint32
}

// NewRISLayout lays out tileCount tiles of tileSize for local lights and for the environment.
//
// Parameters:
//   - tileSize: samples per tile
//   - tileCount: tiles per light type
//
// Returns:
//   - RISLayout: the layout
func NewRISLayout(tileSize, tileCount uint32) RISLayout {
	segment := tileSize * tileCount
	return RISLayout{
		TileSize:          tileSize,
		TileCount:         tileCount,
		LocalOffset:       0,
		EnvironmentOffset: segment,
		Total:             2 * segment,
	}
}
