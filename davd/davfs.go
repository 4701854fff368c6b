package davd

import (
	"context"
	"io"
	"os"
	"path"
	"time"

	"golang.org/x/net/webdav"

	"github.com/paperportal/fileserver/hostio"
	"github.com/paperportal/fileserver/hostio/errs"
	"github.com/paperportal/fileserver/vpath"
)

// davFS adapts hostio.Filesystem to golang.org/x/net/webdav.FileSystem,
// the pre-existing XML-marshalling façade MKCOL/COPY/MOVE/PROPFIND/
// PROPPATCH are delegated to. GET/PUT never go through this adapter;
// the server streams those directly against hostio.Filesystem on its
// own bounded-buffer path.
type davFS struct {
	fs hostio.Filesystem
}

func newDavFS(fs hostio.Filesystem) *davFS {
	return &davFS{fs: fs}
}

func (d *davFS) clean(name string) (string, error) {
	return vpath.Normalize("/", name)
}

func (d *davFS) Mkdir(_ context.Context, name string, _ os.FileMode) error {
	vp, err := d.clean(name)
	if err != nil {
		return toOsErr(err)
	}
	return toOsErr(d.fs.MakeDir(vp))
}

func (d *davFS) OpenFile(_ context.Context, name string, flag int, _ os.FileMode) (webdav.File, error) {
	vp, err := d.clean(name)
	if err != nil {
		return nil, toOsErr(err)
	}
	if fi, statErr := d.fs.Stat(vp); statErr == nil && fi.IsDir {
		it, err := d.fs.DirOpen(vp)
		if err != nil {
			return nil, toOsErr(err)
		}
		return &davFile{fs: d, virtualPath: vp, isDir: true, dirIter: it}, nil
	}
	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		w, err := d.fs.OpenWriteTrunc(vp)
		if err != nil {
			return nil, toOsErr(err)
		}
		return &davFile{fs: d, virtualPath: vp, writer: w}, nil
	}
	r, err := d.fs.OpenRead(vp)
	if err != nil {
		return nil, toOsErr(err)
	}
	return &davFile{fs: d, virtualPath: vp, reader: r}, nil
}

func (d *davFS) RemoveAll(_ context.Context, name string) error {
	vp, err := d.clean(name)
	if err != nil {
		return toOsErr(err)
	}
	fi, err := d.fs.Stat(vp)
	if err != nil {
		return toOsErr(err)
	}
	if fi.IsDir {
		return toOsErr(d.fs.RemoveDir(vp))
	}
	return toOsErr(d.fs.Delete(vp))
}

func (d *davFS) Rename(_ context.Context, oldName, newName string) error {
	oldVp, err := d.clean(oldName)
	if err != nil {
		return toOsErr(err)
	}
	newVp, err := d.clean(newName)
	if err != nil {
		return toOsErr(err)
	}
	return toOsErr(d.fs.Rename(oldVp, newVp))
}

func (d *davFS) Stat(_ context.Context, name string) (os.FileInfo, error) {
	vp, err := d.clean(name)
	if err != nil {
		return nil, toOsErr(err)
	}
	fi, err := d.fs.Stat(vp)
	if err != nil {
		return nil, toOsErr(err)
	}
	return fileInfo{name: path.Base(vp), info: fi}, nil
}

// toOsErr translates the engine's error taxonomy to the os-level
// sentinels webdav.Handler itself inspects (os.IsNotExist and
// friends).
func toOsErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errs.Is(err, errs.NotFound):
		return os.ErrNotExist
	case errs.Is(err, errs.Exists):
		return os.ErrExist
	default:
		return err
	}
}

type fileInfo struct {
	name string
	info hostio.FileInfo
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.info.Size }
func (fi fileInfo) ModTime() time.Time { return fi.info.Mtime }
func (fi fileInfo) IsDir() bool        { return fi.info.IsDir }
func (fi fileInfo) Sys() interface{}   { return nil }
func (fi fileInfo) Mode() os.FileMode {
	if fi.info.IsDir {
		return os.ModeDir | 0o755
	}
	return 0o644
}

type dirEntryInfo struct {
	entry hostio.DirEntry
}

func (d dirEntryInfo) Name() string       { return d.entry.Name }
func (d dirEntryInfo) Size() int64        { return d.entry.Size }
func (d dirEntryInfo) ModTime() time.Time { return d.entry.Mtime }
func (d dirEntryInfo) IsDir() bool        { return d.entry.IsDir }
func (d dirEntryInfo) Sys() interface{}   { return nil }
func (d dirEntryInfo) Mode() os.FileMode {
	if d.entry.IsDir {
		return os.ModeDir | 0o755
	}
	return 0o644
}

// davFile adapts a single hostio.Reader/Writer/DirIter to
// webdav.File, which embeds io.Seeker via net/http's http.File.
type davFile struct {
	fs          *davFS
	virtualPath string
	isDir       bool

	reader  hostio.Reader
	writer  hostio.Writer
	dirIter hostio.DirIter
}

func (f *davFile) Close() error {
	switch {
	case f.reader != nil:
		return f.reader.Close()
	case f.writer != nil:
		return f.writer.Close()
	case f.dirIter != nil:
		return f.dirIter.Close()
	}
	return nil
}

func (f *davFile) Read(p []byte) (int, error) {
	if f.reader == nil {
		return 0, io.EOF
	}
	return f.reader.Read(p)
}

func (f *davFile) Write(p []byte) (int, error) {
	if f.writer == nil {
		return 0, os.ErrInvalid
	}
	return f.writer.Write(p)
}

// Seek exists only to satisfy the webdav.File/http.File contract.
// None of the paths routed through webdav.Handler (MKCOL, COPY, MOVE,
// PROPFIND, PROPPATCH) seek to a non-zero offset in practice; GET and
// PUT never touch this type at all.
func (f *davFile) Seek(offset int64, whence int) (int64, error) {
	if offset == 0 && whence == io.SeekStart {
		return 0, nil
	}
	return 0, os.ErrInvalid
}

func (f *davFile) Readdir(count int) ([]os.FileInfo, error) {
	if f.dirIter == nil {
		return nil, os.ErrInvalid
	}
	var out []os.FileInfo
	for count <= 0 || len(out) < count {
		ent, ok, err := f.dirIter.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, dirEntryInfo{entry: ent})
	}
	if len(out) == 0 && count > 0 {
		return nil, io.EOF
	}
	return out, nil
}

func (f *davFile) Stat() (os.FileInfo, error) {
	fi, err := f.fs.fs.Stat(f.virtualPath)
	if err != nil {
		return nil, toOsErr(err)
	}
	return fileInfo{name: path.Base(f.virtualPath), info: fi}, nil
}
