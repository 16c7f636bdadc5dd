package constants

// Handler constants
const (
	// DefaultAlertListLimit is the number of alerts returned by the alerts endpoint
	DefaultAlertListLimit = 200

	// MaxUploadSize is the maximum multipart body size for enrollment uploads (100MB)
	MaxUploadSize = 100 << 20

	// MaxJSONBodySize is the maximum JSON body size for ingest requests (20MB)
	MaxJSONBodySize = 20 << 20
)

// HTTP header constants
const (
	// HandlerHeader carries the authenticated handler e-mail set by the auth proxy
	HandlerHeader = "X-Handler-Email"

	// CameraHeader identifies the camera feed submitting a frame
	CameraHeader = "X-Camera-ID"
)
