// Package nativefs exposes file-system operations as asynchronous bridge capabilities.
// Every command completes with an error code first, followed by its payload.
package nativefs

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const logPrefix = "nativefs:fs"

// Encoding is the only text encoding the bridge reads and writes.
const Encoding = "utf8"

// Stat is the payload of the stat command.
type Stat struct {
	IsFile      bool      `json:"isFile"`
	IsDirectory bool      `json:"isDirectory"`
	Mtime       time.Time `json:"mtime"`
	Filesize    int64     `json:"filesize"`
}

// DialogRequest carries the arguments of showOpenDialog.
type DialogRequest struct {
	AllowMultiple   bool
	ChooseDirectory bool
	Title           string
	InitialPath     string
	FileTypes       []string
}

// Dialog presents a native open dialog and returns the selected paths.
type Dialog interface {
	ShowOpen(ctx context.Context, req DialogRequest) ([]string, error)
}

// DialogFunc adapts a function to Dialog.
type DialogFunc func(ctx context.Context, req DialogRequest) ([]string, error)

// ShowOpen calls f.
func (f DialogFunc) ShowOpen(ctx context.Context, req DialogRequest) ([]string, error) {
	return f(ctx, req)
}

// Options configures a Bridge.
type Options struct {
	// Root confines every path to a directory. Relative paths resolve under it.
	Root string
	// AsyncDelay postpones every completion.
	AsyncDelay time.Duration
	// Dialog enables showOpenDialog when set.
	Dialog Dialog
}

// Bridge implements the fs namespace.
type Bridge struct {
	root     string
	realRoot string
	tree     tree
	dir      *os.Root
	delay    time.Duration
	dialog   Dialog
}

// tree is the subset of file operations shared by *os.Root and the host file system.
type tree interface {
	Open(name string) (*os.File, error)
	OpenFile(name string, flag int, perm fs.FileMode) (*os.File, error)
	Stat(name string) (fs.FileInfo, error)
	Lstat(name string) (fs.FileInfo, error)
	Remove(name string) error
}

type hostTree struct{}

func (hostTree) Open(name string) (*os.File, error) {
	return os.Open(name)
}

func (hostTree) OpenFile(name string, flag int, perm fs.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}

func (hostTree) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (hostTree) Lstat(name string) (fs.FileInfo, error) {
	return os.Lstat(name)
}

func (hostTree) Remove(name string) error {
	return os.Remove(name)
}

// New creates a Bridge. Pass nil for opts to use the process file system unconfined.
func New(opts *Options) (*Bridge, error) {
	b := &Bridge{tree: hostTree{}}
	if opts == nil {
		return b, nil
	}
	b.delay = opts.AsyncDelay
	b.dialog = opts.Dialog
	if opts.Root != "" {
		root, err := filepath.Abs(opts.Root)
		if err != nil {
			return nil, errors.Wrapf(err, "%s - invalid root %q", logPrefix, opts.Root)
		}
		info, err := os.Stat(root)
		if err != nil {
			return nil, errors.Wrapf(err, "%s - root %q", logPrefix, root)
		}
		if !info.IsDir() {
			return nil, errors.Errorf("%s - root %q is not a directory", logPrefix, root)
		}
		realRoot, err := filepath.EvalSymlinks(root)
		if err != nil {
			return nil, errors.Wrapf(err, "%s - root %q", logPrefix, root)
		}
		dir, err := os.OpenRoot(root)
		if err != nil {
			return nil, errors.Wrapf(err, "%s - open root %q", logPrefix, root)
		}
		b.root, b.realRoot, b.dir, b.tree = root, realRoot, dir, dir
	}
	return b, nil
}

// Root returns the confining directory, or "" when unconfined.
func (b *Bridge) Root() string {
	return b.root
}

// Close releases the confining directory handle.
func (b *Bridge) Close() error {
	if b.dir == nil {
		return nil
	}
	return b.dir.Close()
}

// resolve returns the name to pass to b.tree: the cleaned path when unconfined,
// otherwise a path relative to the root. Confined paths that leave the root,
// textually or through a symlink, are invalid. *os.Root enforces the same rule
// again when the operation runs.
func (b *Bridge) resolve(path string) (string, error) {
	if path == "" {
		return "", errors.Wrap(errInvalidParams, "empty path")
	}
	if b.dir == nil {
		return filepath.Clean(path), nil
	}

	abs := filepath.Clean(path)
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(b.root, abs)
	}
	rel, ok := within(b.root, abs)
	if !ok {
		return "", errors.Wrapf(errInvalidParams, "%s is outside %s", path, b.root)
	}
	if !b.linksWithin(abs) {
		return "", errors.Wrapf(errInvalidParams, "%s resolves outside %s", path, b.root)
	}
	return rel, nil
}

// linksWithin evaluates the symlinks of the deepest existing prefix of abs
// and reports whether the target stays under the root. Other lookup failures
// are left for the operation itself to report.
func (b *Bridge) linksWithin(abs string) bool {
	for p := abs; ; {
		target, err := filepath.EvalSymlinks(p)
		if err == nil {
			_, ok := within(b.realRoot, target)
			return ok
		}
		parent := filepath.Dir(p)
		if parent == p || !errors.Is(err, fs.ErrNotExist) {
			return true
		}
		p = parent
	}
}

func within(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// ReadDir lists the entry names of a directory, sorted, without "." and "..".
func (b *Bridge) ReadDir(path string) ([]string, error) {
	p, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := b.tree.Open(p)
	if err != nil {
		return nil, errors.Wrapf(err, "readdir %s", path)
	}
	defer f.Close()
	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, errors.Wrapf(err, "readdir %s", path)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Stat describes a file or directory.
func (b *Bridge) Stat(path string) (*Stat, error) {
	p, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := b.tree.Stat(p)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	return &Stat{
		IsFile:      info.Mode().IsRegular(),
		IsDirectory: info.IsDir(),
		Mtime:       info.ModTime().UTC(),
		Filesize:    info.Size(),
	}, nil
}

// ReadFile returns the contents of a UTF-8 text file.
func (b *Bridge) ReadFile(path, encoding string) (string, error) {
	if encoding != Encoding {
		return "", errors.Wrapf(errUnsupportedEncoding, "%q", encoding)
	}
	p, err := b.resolve(path)
	if err != nil {
		return "", err
	}
	f, err := b.tree.Open(p)
	if err != nil {
		return "", errors.Wrapf(err, "readFile %s", path)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", errors.Wrapf(err, "readFile %s", path)
	}
	if info.IsDir() {
		return "", errors.Wrapf(errIsDirectory, "readFile %s", path)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", errors.Wrapf(err, "readFile %s", path)
	}
	if !utf8.Valid(data) {
		return "", errors.Wrapf(errUnsupportedEncoding, "%s is not valid UTF-8", path)
	}
	return string(data), nil
}

// WriteFile replaces the contents of a file, creating it when missing.
func (b *Bridge) WriteFile(path, data, encoding string) error {
	if encoding != Encoding {
		return errors.Wrapf(errUnsupportedEncoding, "%q", encoding)
	}
	p, err := b.resolve(path)
	if err != nil {
		return err
	}
	f, err := b.tree.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "writeFile %s", path)
	}
	if _, err := io.WriteString(f, data); err != nil {
		f.Close()
		return errors.Wrapf(err, "writeFile %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "writeFile %s", path)
	}
	return nil
}

// Chmod sets the permission bits of a file or directory.
func (b *Bridge) Chmod(path string, mode int64) error {
	if mode < 0 || mode > 0o7777 {
		return errors.Wrapf(errInvalidParams, "mode %o out of range", mode)
	}
	p, err := b.resolve(path)
	if err != nil {
		return err
	}
	// *os.Root has no Chmod before Go 1.25; resolve has already checked the links.
	if b.dir != nil {
		p = filepath.Join(b.root, p)
	}
	if err := os.Chmod(p, fs.FileMode(mode)); err != nil {
		return errors.Wrapf(err, "chmod %s", path)
	}
	return nil
}

// Unlink deletes a file. Directories are refused.
func (b *Bridge) Unlink(path string) error {
	p, err := b.resolve(path)
	if err != nil {
		return err
	}
	info, err := b.tree.Lstat(p)
	if err != nil {
		return errors.Wrapf(err, "unlink %s", path)
	}
	if info.IsDir() {
		return errors.Wrapf(errNotFile, "unlink %s", path)
	}
	if err := b.tree.Remove(p); err != nil {
		return errors.Wrapf(err, "unlink %s", path)
	}
	return nil
}

// ShowOpenDialog asks the configured Dialog for a selection. Returned paths are not confined to Root.
func (b *Bridge) ShowOpenDialog(ctx context.Context, req DialogRequest) ([]string, error) {
	if b.dialog == nil {
		return nil, errors.Wrap(errInvalidParams, "no dialog presenter configured")
	}
	if req.Title == "" {
		req.Title = "Open"
	}
	if req.ChooseDirectory {
		req.FileTypes = nil
	}
	selection, err := b.dialog.ShowOpen(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "showOpenDialog")
	}
	if selection == nil {
		selection = []string{}
	}
	return selection, nil
}
