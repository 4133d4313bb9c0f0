package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the cuentos home directory.
	DefaultDirName = ".cuentos"

	// DataDirName is the subdirectory for the embedded database.
	DataDirName = "data"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the cuentos home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.cuentos).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DataPath returns the path to the data directory.
func (d *Dir) DataPath() string {
	return filepath.Join(d.path, DataDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.DataPath(), d.SourcesDir(), d.AudioDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// SourcesDir returns the directory where uploaded manuscripts live.
func (d *Dir) SourcesDir() string {
	return filepath.Join(d.path, "sources")
}

// BookSourcesDir returns the manuscript directory for a specific book.
func (d *Dir) BookSourcesDir(bookID string) string {
	return filepath.Join(d.SourcesDir(), bookID)
}

// EnsureBookSourcesDir creates the manuscript directory for a book.
func (d *Dir) EnsureBookSourcesDir(bookID string) error {
	return os.MkdirAll(d.BookSourcesDir(bookID), 0o755)
}

// AudioDir returns the directory for generated narration audio.
func (d *Dir) AudioDir() string {
	return filepath.Join(d.path, "audio")
}

// BookAudioDir returns the audio directory for a specific book.
func (d *Dir) BookAudioDir(bookID string) string {
	return filepath.Join(d.AudioDir(), bookID)
}

// ChapterAudioPath returns the path for a chapter's narration file.
func (d *Dir) ChapterAudioPath(bookID string, chapterIdx int, format string) string {
	return filepath.Join(
		d.BookAudioDir(bookID),
		fmt.Sprintf("chapter_%03d.%s", chapterIdx, format),
	)
}

// EnsureBookAudioDir creates the audio directory for a book.
func (d *Dir) EnsureBookAudioDir(bookID string) error {
	return os.MkdirAll(d.BookAudioDir(bookID), 0o755)
}
