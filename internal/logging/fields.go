package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a record for filtering (e.g. "capture_started").
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldRunID identifies one daemon run.
	FieldRunID = "run_id"
	// FieldDesktopIndex is the dense index a desktop was assigned in the current capture.
	FieldDesktopIndex = "desktop_index"
	// FieldNodeID is the PipeWire node backing a desktop.
	FieldNodeID = "node_id"
	// FieldSessionHandle is the portal session object path.
	FieldSessionHandle = "session_handle"
	// FieldRequestPath is the portal request object path a reply is expected on.
	FieldRequestPath = "request_path"
	// FieldRemote is the remote address of a connected client.
	FieldRemote = "remote"
	// FieldAlert flags anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)
