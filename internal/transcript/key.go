package transcript

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// captureLayout matches the timestamp embedded in recording filenames,
// e.g. "Canal13_2025-07-22_09-00-00.mp4".
const captureLayout = "2006-01-02 15-04-05"

// finalExts are the container extensions the capture pipeline only writes
// once a recording is closed. Anything else (".part", ".tmp", bare dumps)
// may still be growing on disk.
var finalExts = map[string]bool{
	".mp4": true,
	".mkv": true,
	".ts":  true,
}

// Key identifies one recorded media file. The path encodes the channel
// (parent folder) and the capture timestamp (filename).
type Key struct {
	Path     string
	Channel  string
	ID       string
	Captured time.Time
	Ext      string
}

// ParseKey extracts channel and capture time from a media file path shaped
// as <channel>/<id>_<YYYY-MM-DD>_<HH-MM-SS>.<ext>.
func ParseKey(path string) (Key, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return Key{}, fmt.Errorf("filename %q does not match <id>_<date>_<time>.<ext>", base)
	}

	clock := parts[2]
	if i := strings.IndexByte(clock, '.'); i >= 0 {
		clock = clock[:i]
	}
	captured, err := time.ParseInLocation(captureLayout, parts[1]+" "+clock, time.Local)
	if err != nil {
		return Key{}, fmt.Errorf("parse capture time from %q: %w", base, err)
	}

	return Key{
		Path:     path,
		Channel:  filepath.Base(filepath.Dir(path)),
		ID:       parts[0],
		Captured: captured,
		Ext:      ext,
	}, nil
}

// Finalized reports whether the extension marks a closed recording. The
// scheduler never picks up the newest file of a channel while it may still
// be written.
func (k Key) Finalized() bool {
	return finalExts[strings.ToLower(k.Ext)]
}

// Fecha returns the capture date as YYYY-MM-DD.
func (k Key) Fecha() string {
	return k.Captured.Format("2006-01-02")
}

// ChannelOf returns the channel (parent folder) for a key string without
// requiring the full timestamp to parse.
func ChannelOf(path string) string {
	return filepath.Base(filepath.Dir(path))
}

// FechaOf returns the embedded capture date of a key string, or "" when the
// filename does not follow the naming convention.
func FechaOf(path string) string {
	parts := strings.Split(filepath.Base(path), "_")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}

// CapturedOf returns the embedded capture time of a key string. Keys that do
// not follow the convention report the zero time, which sorts as oldest.
func CapturedOf(path string) time.Time {
	k, err := ParseKey(path)
	if err != nil {
		return time.Time{}
	}
	return k.Captured
}
