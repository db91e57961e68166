package capture

import (
	"log/slog"

	"rdesktopd/internal/logging"
	"rdesktopd/internal/portal"
)

// Desktop is one capturable monitor granted by the portal.
type Desktop struct {
	ID     string
	Index  uint64
	NodeID uint32
	Width  int32
	Height int32
	// Port is zero until an encoder is bound.
	Port uint16
}

// FilterStreams keeps streams that carry both an id and a size, preserving
// order and assigning indices 0..K-1.
func FilterStreams(streams []portal.Stream, logger *slog.Logger) []Desktop {
	if logger == nil {
		logger = logging.NewNop()
	}
	desktops := make([]Desktop, 0, len(streams))
	for pos, stream := range streams {
		if !stream.HasID || !stream.HasSize {
			logging.WarnWithContext(logger, "dropping stream without id or size", "stream_dropped",
				logging.Int("position", pos),
				logging.Uint64(logging.FieldNodeID, uint64(stream.NodeID)),
				logging.Bool("has_id", stream.HasID),
				logging.Bool("has_size", stream.HasSize),
				logging.String(logging.FieldErrorHint, "the portal backend did not describe this monitor"),
				logging.String(logging.FieldImpact, "monitor will not be offered to clients"),
			)
			continue
		}
		desktops = append(desktops, Desktop{
			ID:     stream.ID,
			Index:  uint64(len(desktops)),
			NodeID: stream.NodeID,
			Width:  stream.Width,
			Height: stream.Height,
		})
	}
	return desktops
}
