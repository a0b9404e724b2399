package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
)

// appendRollup appends samples to today's {kind}.json file as a
// top-level JSON array, rotating the file first if it already exceeds
// MaxFileSize.
func appendRollup[T any](cfg Config, kind SampleKind, samples []T, log logger.Logger) {
	if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
		log.Warn("metrics: failed to create logs dir", "dir", cfg.LogsDir, "error", err)
		return
	}
	path := rollupPath(cfg.LogsDir, kind, time.Now())

	if info, err := os.Stat(path); err == nil && info.Size() > cfg.MaxFileSize {
		if err := rotateFile(path, log); err != nil {
			log.Warn("metrics: rotation failed", "path", path, "error", err)
		}
	}

	existing := readExistingArray(path, log)
	merged := append(existing, toRawMessages(samples, log)...)

	data, err := json.Marshal(merged)
	if err != nil {
		log.Warn("metrics: failed to encode rollup", "kind", kind, "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn("metrics: failed to write rollup", "path", path, "error", err)
	}
}

func toRawMessages[T any](samples []T, log logger.Logger) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(samples))
	for _, s := range samples {
		raw, err := json.Marshal(s)
		if err != nil {
			log.Warn("metrics: failed to encode sample", "error", err)
			continue
		}
		out = append(out, raw)
	}
	return out
}

func readExistingArray(path string, log logger.Logger) []json.RawMessage {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var existing []json.RawMessage
	if err := json.Unmarshal(data, &existing); err != nil {
		log.Warn("metrics: existing rollup unreadable, starting fresh", "path", path, "error", err)
		return nil
	}
	return existing
}

func rollupPath(dir string, kind SampleKind, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.json", t.Format("2006-01-02"), kind))
}

// rotateFile moves an oversized rollup aside as a gzip-compressed
// snapshot named with an ISO timestamp (colons replaced with dashes),
// using klauspost/compress for the gzip writer.
func rotateFile(path string, log logger.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	stamp := strings.ReplaceAll(time.Now().UTC().Format(time.RFC3339), ":", "-")
	rotatedPath := strings.TrimSuffix(path, ".json") + "-" + stamp + ".json.gz"

	out, err := os.Create(rotatedPath)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := gz.Write(data); err != nil {
		gz.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}

// purgeOldFiles removes rollup files (including rotated .gz
// snapshots) older than retentionDays.
func purgeOldFiles(dir string, retentionDays int, log logger.Logger) {
	if retentionDays <= 0 {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				log.Warn("metrics: retention purge failed", "file", entry.Name(), "error", err)
			}
		}
	}
}
