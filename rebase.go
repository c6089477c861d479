package blockfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Rebase rewrites the directory file's BlockFile path table to point at
// files of the same names inside newDir, without opening or modifying the
// block data itself. Index entries are unchanged. Use Rebase after the
// BlockFiles and directory file have already been relocated by some other
// means (a filesystem mv, a backup restore); MoveTo and CopyTo below do
// the relocation and the rebase together.
func (d *Directory) Rebase(newDir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	newPaths := make([]string, len(d.blockFilePaths))
	for i, p := range d.blockFilePaths {
		newPaths[i] = filepath.Join(newDir, filepath.Base(p))
	}
	d.blockFilePaths = newPaths
	return d.persist()
}

// MoveTo moves the directory file and every BlockFile into newDir, then
// rewrites the path table to match — folding the relocation and the
// rebase into one operation. A move is a rename; where the rename fails
// and the file is copied instead, the copy's size is checked against the
// source's before the source is removed.
func (d *Directory) MoveTo(newDir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(newDir, 0755); err != nil {
		return fmt.Errorf("blockfs: moveTo: mkdir %s: %w", newDir, err)
	}

	newBlockPaths := make([]string, len(d.blockFilePaths))
	for i, p := range d.blockFilePaths {
		dst := filepath.Join(newDir, filepath.Base(p))
		if err := moveFile(p, dst); err != nil {
			return fmt.Errorf("blockfs: moveTo: block file %d: %w", i, err)
		}
		newBlockPaths[i] = dst
	}

	newDirPath := filepath.Join(newDir, filepath.Base(d.path))
	if err := moveFile(d.path, newDirPath); err != nil {
		return fmt.Errorf("blockfs: moveTo: directory file: %w", err)
	}
	os.Remove(d.path + ".tmp")

	d.path = newDirPath
	d.blockFilePaths = newBlockPaths
	return d.persist()
}

// CopyTo copies the directory file and every BlockFile into newDir,
// rewrites the copy's path table, and opens it as an independent
// Directory — the original package's test_mv.py exercises this as a
// copy-and-verify relocation. The receiver is left untouched.
func (d *Directory) CopyTo(newDir string) (*Directory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(newDir, 0755); err != nil {
		return nil, fmt.Errorf("blockfs: copyTo: mkdir %s: %w", newDir, err)
	}

	newBlockPaths := make([]string, len(d.blockFilePaths))
	for i, p := range d.blockFilePaths {
		dst := filepath.Join(newDir, filepath.Base(p))
		if err := copyFileVerified(p, dst); err != nil {
			return nil, fmt.Errorf("blockfs: copyTo: block file %d: %w", i, err)
		}
		newBlockPaths[i] = dst
	}

	newDirPath := filepath.Join(newDir, filepath.Base(d.path))
	h := directoryHeader{
		Version:        CurrentVersion,
		Volume:         d.vol,
		CodecName:      d.codec.Name(),
		CodecParams:    d.codec.Params(),
		BlockFilePaths: newBlockPaths,
	}
	if err := writeDirectoryFileAtomic(newDirPath, h, d.idx); err != nil {
		return nil, fmt.Errorf("blockfs: copyTo: directory file: %w", err)
	}

	return Open(newDirPath)
}

// moveFile renames src to dst, falling back to copy-verify-remove when
// rename fails across filesystem boundaries.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFileVerified(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyFileVerified copies src to dst and checks the destination's size
// matches the source's before returning.
func copyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("fsync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}

	dstInfo, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dst, err)
	}
	if dstInfo.Size() != srcInfo.Size() {
		os.Remove(dst)
		return fmt.Errorf("size mismatch copying %s to %s: got %d want %d", src, dst, dstInfo.Size(), srcInfo.Size())
	}
	return nil
}
