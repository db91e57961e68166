package portal

import (
	"fmt"
	"strings"
)

// SourceType is the ScreenCast "types" bitmask.
type SourceType uint32

const (
	SourceMonitor SourceType = 1 << 0
	SourceWindow  SourceType = 1 << 1
	SourceVirtual SourceType = 1 << 2
)

// CursorMode is the ScreenCast "cursor_mode" bitmask.
type CursorMode uint32

const (
	CursorHidden   CursorMode = 1 << 0
	CursorEmbedded CursorMode = 1 << 1
	CursorMetadata CursorMode = 1 << 2
)

// PersistMode controls how long the portal remembers a consent decision.
type PersistMode uint32

const (
	PersistNone         PersistMode = 0
	PersistApplication  PersistMode = 1
	PersistUntilRevoked PersistMode = 2
)

func (m PersistMode) String() string {
	switch m {
	case PersistNone:
		return "none"
	case PersistApplication:
		return "application"
	case PersistUntilRevoked:
		return "until_revoked"
	default:
		return fmt.Sprintf("persist_mode(%d)", uint32(m))
	}
}

// ParsePersistMode maps a configuration value to a PersistMode.
func ParsePersistMode(value string) (PersistMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "none":
		return PersistNone, nil
	case "application":
		return PersistApplication, nil
	case "until_revoked", "":
		return PersistUntilRevoked, nil
	default:
		return 0, fmt.Errorf("unknown persist mode %q", value)
	}
}

// SelectOptions are the SelectSources parameters.
type SelectOptions struct {
	Types        SourceType
	Multiple     bool
	Cursor       CursorMode
	RestoreToken string
	Persist      PersistMode
}
