package artifact

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"symphony/internal/logging"
)

// Zip streams the run's project directory as a zip archive. Entry names are
// relative to the project directory with forward slashes.
func (w *Writer) Zip(runID string, out io.Writer) error {
	dir := w.ProjectDir(runID)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("project directory not found: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project path %s is not a directory", dir)
	}

	zw := zip.NewWriter(out)
	count := 0

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, f)
		f.Close()
		if err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to archive %s: %w", dir, err)
	}

	if err := zw.Close(); err != nil {
		return err
	}
	logging.Artifact("Archived %d files from %s", count, dir)
	return nil
}
