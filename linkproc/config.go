package linkproc

import "time"

// Config tunes a pipeline run.
type Config struct {
	// BatchSize is the number of groups processed concurrently.
	BatchSize int `yaml:"batch_size"`
	// Cooldown separates two batches; none follows the last one. A
	// negative value disables it.
	Cooldown       time.Duration `yaml:"cooldown"`
	MaxFolderDepth int           `yaml:"max_folder_depth"`
	NoteRetries    int           `yaml:"note_retries"`
	NoteRetryDelay time.Duration `yaml:"note_retry_delay"`

	DestinationFolderID string `yaml:"destination_folder_id"`
	VideoFolderID       string `yaml:"video_folder_id"`

	// Timezone of the processed-at timestamp, an IANA name. Empty is local time.
	Timezone string `yaml:"timezone"`
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.Cooldown == 0 {
		c.Cooldown = 3 * time.Second
	}
	if c.MaxFolderDepth <= 0 {
		c.MaxFolderDepth = 3
	}
	if c.NoteRetries <= 0 {
		c.NoteRetries = 3
	}
	if c.NoteRetryDelay <= 0 {
		c.NoteRetryDelay = 500 * time.Millisecond
	}
	if c.VideoFolderID == "" {
		c.VideoFolderID = c.DestinationFolderID
	}
}
