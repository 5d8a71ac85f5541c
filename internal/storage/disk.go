package storage

import (
	"errors"
	"io/fs"
	"path/filepath"
)

// sqliteSidecars are the files SQLite keeps next to a database in WAL mode.
var sqliteSidecars = []string{"-wal", "-shm"}

// DiskUsageBytes sums the bytes under each path. Directories are walked; missing
// paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, root := range paths {
		if root == "" {
			continue
		}
		err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, err
		}
	}
	return total, nil
}

// DatabaseFiles returns dbPath and its WAL sidecar paths.
func DatabaseFiles(dbPath string) []string {
	files := []string{dbPath}
	for _, suffix := range sqliteSidecars {
		files = append(files, dbPath+suffix)
	}
	return files
}
