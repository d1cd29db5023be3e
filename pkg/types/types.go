// Package types defines the data model shared across the chat pipeline.
package types

// Config holds the application configuration.
type Config struct {
	APIBase     string `json:"api_base"`     // Upstream open API base URL
	Token       string `json:"token"`        // Access token for the upstream API
	BotID       string `json:"bot_id"`       // Bot the widget talks to
	BotVersion  string `json:"bot_version"`  // Optional pinned bot version
	ConnectorID string `json:"connector_id"` // Connector identity sent with chat requests
	ListenAddr  string `json:"listen_addr"`  // Bridge listen address
	RecordFile  string `json:"record_file"`  // JSONL file for event/frame recording

	HistoryPageSize int `json:"history_page_size"` // Messages per history fetch
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      "127.0.0.1:9090",
		HistoryPageSize: 30,
	}
}
