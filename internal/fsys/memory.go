package fsys

import (
	"io/fs"
	"iter"
	"path"
	"strings"
	"testing/fstest"
)

// MemoryFS implements FileSystem over an in-memory fstest.MapFS, used by
// tests to build recipe fixture trees without touching disk.
type MemoryFS struct {
	m fstest.MapFS
}

// NewMemoryFS creates an empty in-memory filesystem.
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{m: fstest.MapFS{}}
}

// AddFile adds a file; parent directories are implied.
func (mfs *MemoryFS) AddFile(name string, content []byte) {
	mfs.m[path.Clean(name)] = &fstest.MapFile{Data: content, Mode: 0644}
}

// AddDir adds an explicit (possibly empty) directory.
func (mfs *MemoryFS) AddDir(name string) {
	mfs.m[path.Clean(name)] = &fstest.MapFile{Mode: fs.ModeDir | 0755}
}

func (mfs *MemoryFS) ReadFile(name string) ([]byte, error) {
	return mfs.m.ReadFile(path.Clean(name))
}

func (mfs *MemoryFS) ReadDir(name string) iter.Seq2[DirEntry, error] {
	return func(yield func(DirEntry, error) bool) {
		entries, err := mfs.m.ReadDir(path.Clean(name))
		if err != nil {
			yield(nil, err)
			return
		}
		for _, entry := range entries {
			if !yield(&memoryDirEntry{entry}, nil) {
				return
			}
		}
	}
}

func (mfs *MemoryFS) Walk(root string, fn WalkFunc) error {
	return fs.WalkDir(mfs.m, path.Clean(root), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fn(p, nil, err)
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return fn(p, nil, infoErr)
		}
		return fn(p, info, nil)
	})
}

func (mfs *MemoryFS) Join(elem ...string) string {
	return path.Join(elem...)
}

func (mfs *MemoryFS) Base(p string) string {
	return path.Base(p)
}

func (mfs *MemoryFS) Dir(p string) string {
	return path.Dir(p)
}

func (mfs *MemoryFS) Rel(basepath, targpath string) (string, error) {
	base := path.Clean(basepath)
	target := path.Clean(targpath)

	switch {
	case base == target:
		return ".", nil
	case base == ".":
		return target, nil
	case strings.HasPrefix(target, base+"/"):
		return strings.TrimPrefix(target, base+"/"), nil
	}

	return target, nil
}

// memoryDirEntry adapts fs.DirEntry to the narrower DirEntry interface.
type memoryDirEntry struct {
	entry fs.DirEntry
}

func (e *memoryDirEntry) Name() string      { return e.entry.Name() }
func (e *memoryDirEntry) IsDir() bool       { return e.entry.IsDir() }
func (e *memoryDirEntry) Type() fs.FileMode { return e.entry.Type() }

func (e *memoryDirEntry) Info() (FileInfo, error) {
	return e.entry.Info()
}
