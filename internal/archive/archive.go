// Package archive packages job output directories into zip files.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ZipDirectory writes every regular file under dir (recursively) into a new
// zip archive at zipPath. Entries are stored flat under their base names,
// matching the layout result consumers expect.
func ZipDirectory(dir, zipPath string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create archive %q: %w", zipPath, err)
	}
	defer out.Close()

	w := zip.NewWriter(out)

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return addFile(w, path, d.Name())
	})
	if err != nil {
		w.Close()
		return fmt.Errorf("archive %q: %w", dir, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize archive %q: %w", zipPath, err)
	}
	return nil
}

func addFile(w *zip.Writer, path, name string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	entry, err := w.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, file)
	return err
}
