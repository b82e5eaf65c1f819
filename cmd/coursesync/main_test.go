package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/coursesync/coursesync"
)

func TestResolveConfig_Precedence(t *testing.T) {
	// WHAT: flags beat the environment, which beats the config file.
	path := filepath.Join(t.TempDir(), "coursesync.yaml")
	os.WriteFile(path, []byte("db_path: file.db\nlisten: \":7000\"\nredis:\n  addr: file-redis:6379\n"), 0o600)
	t.Setenv("COURSESYNC_DB", "env.db")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("DESTINATION_FOLDER_ID", "DEST_ENV")

	cfg, err := resolveConfig(path, flags{listen: ":9000"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "env.db" {
		t.Errorf("db = %q", cfg.DBPath)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Redis.Addr != "file-redis:6379" {
		t.Errorf("redis = %q", cfg.Redis.Addr)
	}
	if cfg.Pipeline.DestinationFolderID != "DEST_ENV" {
		t.Errorf("destination = %q", cfg.Pipeline.DestinationFolderID)
	}

	if _, err := resolveConfig(filepath.Join(t.TempDir(), "missing.yaml"), flags{}); err == nil {
		t.Error("missing config file accepted")
	}
}

func TestNewLogger_FileRotation(t *testing.T) {
	var out bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "coursesync.log")
	logger, closer := newLogger(logConfig("debug", file), &out)
	logger.Debug("coursesync: hello", "k", "v")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	var rec map[string]any
	if err := json.Unmarshal(out.Bytes(), &rec); err != nil {
		t.Fatalf("stdout line: %q %v", out.String(), err)
	}
	if rec["service"] != "coursesync" || rec["msg"] != "coursesync: hello" || !strings.Contains(rec["time"].(string), "T") {
		t.Errorf("record: %v", rec)
	}
	data, err := os.ReadFile(file)
	if err != nil || !strings.Contains(string(data), "coursesync: hello") {
		t.Errorf("log file: %q %v", data, err)
	}
}

func TestNewLogger_Level(t *testing.T) {
	var out bytes.Buffer
	logger, _ := newLogger(logConfig("warn", ""), &out)
	logger.Info("hidden")
	if out.Len() != 0 {
		t.Errorf("info logged at warn level: %q", out.String())
	}
	if parseLevel("ERROR") != slog.LevelError || parseLevel("bogus") != slog.LevelInfo {
		t.Error("parseLevel")
	}
}

func logConfig(level, file string) coursesync.LogConfig {
	return coursesync.LogConfig{Level: level, File: file}
}
