// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face model constants
const (
	// EmbeddingDim is the output dimension of the face embedding model (buffalo_l/ArcFace)
	EmbeddingDim = 512

	// DefaultEmbeddingTimeout bounds a single detection/embedding call
	DefaultEmbeddingTimeout = 10 * time.Second
)

// Matching constants
const (
	// DefaultMatchThreshold is the minimum cosine similarity for a gallery match.
	// Calibrated for ArcFace normed embeddings; tune with MATCH_THRESHOLD.
	DefaultMatchThreshold = 0.70

	// DefaultGalleryCacheTTL is how long a loaded gallery snapshot is reused
	DefaultGalleryCacheTTL = 30 * time.Second

	// DefaultHNSWCandidates is the number of ANN candidates scored exactly per face
	DefaultHNSWCandidates = 16
)

// Enrollment constants
const (
	// DefaultEnrollConcurrency is the number of enrollment images extracted in parallel
	DefaultEnrollConcurrency = 4

	// MaxEnrollImages is the maximum number of images accepted in one enrollment
	MaxEnrollImages = 20
)

// Alerting constants
const (
	// DefaultAlertCooldown is the minimum gap between two dispatched alerts for one identity
	DefaultAlertCooldown = 60 * time.Second

	// NearestStationCount is how many nearby stations are copied on an alert
	NearestStationCount = 2

	// EarthRadiusKm is the mean Earth radius used by the haversine formula
	EarthRadiusKm = 6371.0

	// LocationUnavailable is rendered when a detection has no coordinates
	LocationUnavailable = "Location unavailable"
)

// Dispatch queue constants
const (
	// DefaultDispatchWorkers is the number of goroutines delivering alerts
	DefaultDispatchWorkers = 2

	// DefaultDispatchQueueSize is the buffer size of the dispatch queue
	DefaultDispatchQueueSize = 256

	// DefaultDispatchMaxAttempts is the number of delivery attempts per alert
	DefaultDispatchMaxAttempts = 3

	// DefaultDispatchRetryDelay is the initial backoff between delivery attempts
	DefaultDispatchRetryDelay = 2 * time.Second

	// DefaultSMTPTimeout bounds one SMTP session
	DefaultSMTPTimeout = 30 * time.Second
)

// Ingest constants
const (
	// MaxFrameBytes is the maximum accepted size of a decoded frame
	MaxFrameBytes = 15 << 20

	// DefaultIngestRate is the sustained frames per second allowed per camera
	DefaultIngestRate = 5.0

	// DefaultIngestBurst is the burst size of the per-camera limiter
	DefaultIngestBurst = 10
)
