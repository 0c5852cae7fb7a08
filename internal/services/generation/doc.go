// Package generation talks to the media generation backend.
//
// The backend is a local gateway that synthesizes images, video clips, and
// speech, and assembles finished timelines. Requests reference input assets
// by absolute cache path; responses carry either a download URL or inline
// base64 content, and the client stores whichever arrives into the asset
// cache and returns the cache reference.
//
// # Entry Points
//
// NewClient wires the backend endpoint, request pacing, and the asset cache
// together. GenerateImage, GenerateVideo, GenerateSpeech, and Assemble each
// perform exactly one backend call: retry policy lives with the job
// scheduler, not here. HealthCheck verifies the backend before a run starts.
//
// # Error Classification
//
// Failures are tagged with the services sentinel matching how the scheduler
// must treat them. Client-side input faults (4xx) are permanent, quota
// responses map to rate-limited, timeouts and 5xx answers stay retryable.
package generation
