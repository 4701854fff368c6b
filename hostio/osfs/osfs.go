// Package osfs implements hostio.Filesystem over the local operating
// system filesystem, rooted at a fixed prefix, for the desktop
// dev-harness binary (cmd/paperportal). A real device build swaps
// this for an adapter wired to its own storage stack; the engine only
// depends on the hostio.Filesystem interface.
package osfs

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/paperportal/fileserver/hostio"
	"github.com/paperportal/fileserver/hostio/errs"
	"github.com/paperportal/fileserver/vpath"
)

// FS is a hostio.Filesystem rooted at Root on the local disk.
type FS struct {
	root vpath.Root
	base string
}

// New returns a Filesystem rooted at base, which must already exist
// as a directory on the local filesystem.
func New(base string) *FS {
	return &FS{root: vpath.NewRoot(base), base: base}
}

func (f *FS) hostPath(virtualPath string) (string, error) {
	host, err := f.root.ToHost(virtualPath)
	if err != nil {
		return "", err
	}
	return vpath.TrimNUL(host), nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return errs.Wrap(err, errs.NotFound, "stat")
	case os.IsExist(err):
		return errs.Wrap(err, errs.Exists, "create")
	default:
		return errs.Wrap(err, errs.Io, "host i/o")
	}
}

// Stat implements hostio.Filesystem.
func (f *FS) Stat(virtualPath string) (hostio.FileInfo, error) {
	host, err := f.hostPath(virtualPath)
	if err != nil {
		return hostio.FileInfo{}, err
	}
	fi, err := os.Stat(host)
	if err != nil {
		return hostio.FileInfo{}, translate(err)
	}
	return hostio.FileInfo{Size: fi.Size(), IsDir: fi.IsDir(), Mtime: fi.ModTime().UTC()}, nil
}

// OpenRead implements hostio.Filesystem.
func (f *FS) OpenRead(virtualPath string) (hostio.Reader, error) {
	host, err := f.hostPath(virtualPath)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(host)
	if err != nil {
		return nil, translate(err)
	}
	if fi.IsDir() {
		return nil, errs.IsDir
	}
	fh, err := os.Open(host)
	if err != nil {
		return nil, translate(err)
	}
	return fh, nil
}

// OpenWriteTrunc implements hostio.Filesystem.
func (f *FS) OpenWriteTrunc(virtualPath string) (hostio.Writer, error) {
	host, err := f.hostPath(virtualPath)
	if err != nil {
		return nil, err
	}
	fh, err := os.OpenFile(host, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, translate(err)
	}
	return fh, nil
}

type dirIter struct {
	f       *FS
	hostDir string
	names   []string
	pos     int
}

func (f *FS) DirOpen(virtualPath string) (hostio.DirIter, error) {
	host, err := f.hostPath(virtualPath)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(host)
	if err != nil {
		return nil, translate(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() == "." || e.Name() == ".." {
			continue
		}
		names = append(names, e.Name())
	}
	return &dirIter{f: f, hostDir: host, names: names}, nil
}

func (it *dirIter) Next() (hostio.DirEntry, bool, error) {
	if it.pos >= len(it.names) {
		return hostio.DirEntry{}, false, nil
	}
	name := it.names[it.pos]
	it.pos++
	fi, err := os.Stat(filepath.Join(it.hostDir, name))
	if err != nil {
		return hostio.DirEntry{}, false, translate(err)
	}
	return hostio.DirEntry{
		Name:  name,
		IsDir: fi.IsDir(),
		Size:  fi.Size(),
		Mtime: fi.ModTime().UTC(),
	}, true, nil
}

func (it *dirIter) Close() error { return nil }

// Delete implements hostio.Filesystem.
func (f *FS) Delete(virtualPath string) error {
	host, err := f.hostPath(virtualPath)
	if err != nil {
		return err
	}
	fi, err := os.Stat(host)
	if err != nil {
		return translate(err)
	}
	if fi.IsDir() {
		return errs.IsDir
	}
	if err := os.Remove(host); err != nil {
		return translate(err)
	}
	return nil
}

// Rename implements hostio.Filesystem.
func (f *FS) Rename(fromVirtual, toVirtual string) error {
	from, err := f.hostPath(fromVirtual)
	if err != nil {
		return err
	}
	to, err := f.hostPath(toVirtual)
	if err != nil {
		return err
	}
	if err := os.Rename(from, to); err != nil {
		if le, ok := err.(*os.LinkError); ok {
			if isCrossDevice(le) {
				return errs.CrossDevice
			}
		}
		return translate(err)
	}
	return nil
}

// MakeDir implements hostio.Filesystem.
func (f *FS) MakeDir(virtualPath string) error {
	host, err := f.hostPath(virtualPath)
	if err != nil {
		return err
	}
	if err := os.Mkdir(host, 0o755); err != nil {
		return translate(err)
	}
	return nil
}

// RemoveDir implements hostio.Filesystem.
func (f *FS) RemoveDir(virtualPath string) error {
	host, err := f.hostPath(virtualPath)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(host)
	if err != nil {
		return translate(err)
	}
	if len(entries) > 0 {
		return errs.NotEmpty
	}
	if err := os.Remove(host); err != nil {
		return translate(err)
	}
	return nil
}

// FileSize implements hostio.Filesystem.
func (f *FS) FileSize(virtualPath string) (int64, error) {
	fi, err := f.Stat(virtualPath)
	if err != nil {
		return 0, err
	}
	return fi.Size, nil
}

// FileMtime implements hostio.Filesystem.
func (f *FS) FileMtime(virtualPath string) (time.Time, error) {
	fi, err := f.Stat(virtualPath)
	if err != nil {
		return time.Time{}, err
	}
	return fi.Mtime, nil
}

var _ io.Closer = (*os.File)(nil)
