// Package api provides the HTTP surface for chatting with aide and for
// inspecting and steering its memory pipeline.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string
}
