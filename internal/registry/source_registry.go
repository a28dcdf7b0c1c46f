package registry

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"

	"github.com/standardbeagle/shadersense/internal/debug"
	sserrors "github.com/standardbeagle/shadersense/internal/errors"
	"github.com/standardbeagle/shadersense/internal/types"
)

// FileState is the lifecycle state of a registered file
type FileState uint8

const (
	// StateVirtual files were discovered as include targets and never loaded
	StateVirtual FileState = iota
	// StateShell files hold last-known disk content for a dependency
	StateShell
	// StateOpen files are owned by the editor
	StateOpen
)

func (s FileState) String() string {
	switch s {
	case StateVirtual:
		return "virtual"
	case StateShell:
		return "shell"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// File is an immutable snapshot of one registered file. Every mutation of
// the registry stores a fresh *File, so holders of an older pointer keep a
// consistent view.
type File struct {
	ID            types.FileID
	Path          string
	Language      types.LanguageKind
	State         FileState
	Version       uint64 // registry-wide monotonic counter, bumped on content change
	ClientVersion int32  // version reported by the editor for open files
	Hash          uint64 // xxhash of Content
	Loaded        bool   // content came from the editor or disk
	Content       []byte
	Lines         *types.LineIndex
}

// Registry owns the text and metadata of every open or referenced file.
type Registry struct {
	mu       sync.RWMutex
	fs       afero.Fs
	files    map[types.FileID]*File
	byPath   map[string]types.FileID
	nextID   types.FileID
	version  uint64
	maxBytes int64
}

// New creates a registry reading dependency content from fs
func New(fs afero.Fs) *Registry {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Registry{
		fs:       fs,
		files:    make(map[types.FileID]*File),
		byPath:   make(map[string]types.FileID),
		maxBytes: types.DefaultMaxFileSize,
	}
}

// Fs returns the file system dependency content is read from
func (r *Registry) Fs() afero.Fs { return r.fs }

// Canonical turns a path or file:// URI into the registry key
func Canonical(path string) string {
	if strings.HasPrefix(path, "file://") {
		if u, err := url.Parse(path); err == nil {
			path = u.Path
		} else {
			path = strings.TrimPrefix(path, "file://")
		}
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return filepath.Clean(path)
}

func (r *Registry) nextVersion() uint64 {
	r.version++
	return r.version
}

func newFile(prev *File, content []byte) *File {
	f := *prev
	f.Content = content
	f.Hash = xxhash.Sum64(content)
	f.Lines = types.NewLineIndex(content)
	return &f
}

// register adds a new empty virtual entry; caller holds the write lock
func (r *Registry) register(path string, lang types.LanguageKind) *File {
	r.nextID++
	if lang == types.LanguageUnknown {
		lang = types.LanguageFromPath(path)
	}
	f := &File{
		ID:       r.nextID,
		Path:     path,
		Language: lang,
		State:    StateVirtual,
		Version:  r.nextVersion(),
		Hash:     xxhash.Sum64(nil),
		Lines:    types.NewLineIndex(nil),
	}
	r.files[f.ID] = f
	r.byPath[path] = f.ID
	return f
}

// Open registers path as editor-owned with the given text, promoting a
// shell or virtual entry. The version only moves when the content differs.
func (r *Registry) Open(path string, text []byte, lang types.LanguageKind, clientVersion int32) (*File, bool) {
	path = Canonical(path)
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.lookupLocked(path)
	if !ok {
		prev = r.register(path, lang)
	}
	changed := !prev.Loaded || prev.Hash != xxhash.Sum64(text)
	f := newFile(prev, text)
	f.State = StateOpen
	f.Loaded = true
	f.ClientVersion = clientVersion
	if lang != types.LanguageUnknown {
		f.Language = lang
	}
	if changed {
		f.Version = r.nextVersion()
	}
	r.files[f.ID] = f
	debug.LogSymbols("registry open %s (id=%d version=%d changed=%v)\n", path, f.ID, f.Version, changed)
	return f, changed
}

// Update replaces the content of an open file. Unchanged content keeps the
// version so no-op edits do not invalidate anything.
func (r *Registry) Update(path string, text []byte, clientVersion int32) (*File, bool, error) {
	path = Canonical(path)
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.lookupLocked(path)
	if !ok {
		return nil, false, sserrors.NewUnknownFileError(path)
	}
	if prev.Loaded && prev.Hash == xxhash.Sum64(text) {
		if prev.ClientVersion != clientVersion {
			f := *prev
			f.ClientVersion = clientVersion
			r.files[f.ID] = &f
			return &f, false, nil
		}
		return prev, false, nil
	}
	f := newFile(prev, text)
	f.Loaded = true
	f.ClientVersion = clientVersion
	f.Version = r.nextVersion()
	if f.State != StateOpen {
		f.State = StateOpen
	}
	r.files[f.ID] = f
	return f, true, nil
}

// Close hands an open file back to the registry as a dependency shell
// carrying its last-known content. Removal is decided by the caller, who
// knows whether other open files still reference it.
func (r *Registry) Close(path string) (*File, error) {
	path = Canonical(path)
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.lookupLocked(path)
	if !ok {
		return nil, sserrors.NewUnknownFileError(path)
	}
	f := *prev
	f.State = StateShell
	f.ClientVersion = 0
	r.files[f.ID] = &f
	return &f, nil
}

// Ensure registers path as a virtual file if it is not known yet
func (r *Registry) Ensure(path string) *File {
	path = Canonical(path)
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.lookupLocked(path); ok {
		return f
	}
	f := r.register(path, types.LanguageUnknown)
	debug.LogInclude("registered virtual file %s (id=%d)\n", path, f.ID)
	return f
}

// Get returns the current snapshot of a file
func (r *Registry) Get(id types.FileID) (*File, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.files[id]
	return f, ok
}

// Lookup finds a file by path or URI
func (r *Registry) Lookup(path string) (*File, bool) {
	path = Canonical(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(path)
}

func (r *Registry) lookupLocked(path string) (*File, bool) {
	id, ok := r.byPath[path]
	if !ok {
		return nil, false
	}
	return r.files[id], true
}

// Path returns the canonical path for id, or "" when unknown
func (r *Registry) Path(id types.FileID) string {
	if f, ok := r.Get(id); ok {
		return f.Path
	}
	return ""
}

// Load returns the file with content, reading it from disk on first use.
// A virtual file missing on disk stays virtual and empty.
func (r *Registry) Load(id types.FileID) (*File, error) {
	f, ok := r.Get(id)
	if !ok {
		return nil, sserrors.NewUnknownFileError(fmt.Sprintf("#%d", id))
	}
	if f.Loaded {
		return f, nil
	}
	f, _, err := r.Reload(id)
	return f, err
}

// Reload re-reads a non-open file from disk. Open files are owned by the
// editor and are returned untouched.
func (r *Registry) Reload(id types.FileID) (*File, bool, error) {
	r.mu.RLock()
	prev, ok := r.files[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false, sserrors.NewUnknownFileError(fmt.Sprintf("#%d", id))
	}
	if prev.State == StateOpen {
		return prev, false, nil
	}

	content, err := r.readDisk(prev.Path)

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.files[id]
	if !ok {
		return nil, false, sserrors.NewUnknownFileError(prev.Path)
	}
	if cur.State == StateOpen || cur.Version != prev.Version {
		// Someone else won the race; their snapshot is newer.
		return cur, false, nil
	}
	if err != nil {
		if cur.Loaded {
			// Deleted on disk: keep serving empty content for the shell.
			f := newFile(cur, nil)
			f.Version = r.nextVersion()
			r.files[id] = f
			return f, true, sserrors.NewFileError("read", cur.Path, err)
		}
		return cur, false, sserrors.NewFileError("read", cur.Path, err)
	}
	if cur.Loaded && cur.Hash == xxhash.Sum64(content) {
		return cur, false, nil
	}
	f := newFile(cur, content)
	f.Loaded = true
	f.State = StateShell
	f.Version = r.nextVersion()
	r.files[id] = f
	debug.LogInclude("loaded %s from disk (%d bytes, version=%d)\n", f.Path, len(content), f.Version)
	return f, true, nil
}

func (r *Registry) readDisk(path string) ([]byte, error) {
	fh, err := r.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return io.ReadAll(io.LimitReader(fh, r.maxBytes))
}

// Exists reports whether path names an open buffer or a regular file on disk
func (r *Registry) Exists(path string) bool {
	path = Canonical(path)
	r.mu.RLock()
	f, ok := r.lookupLocked(path)
	r.mu.RUnlock()
	if ok && f.State == StateOpen {
		return true
	}
	info, err := r.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// Remove drops a file from the registry
func (r *Registry) Remove(id types.FileID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.files[id]; ok {
		delete(r.byPath, f.Path)
		delete(r.files, id)
		debug.LogInclude("removed %s (id=%d)\n", f.Path, id)
	}
}

// Files returns all file snapshots ordered by id
func (r *Registry) Files() []*File {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*File, 0, len(r.files))
	for _, f := range r.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Versions returns the current version of each requested file; missing files report 0
func (r *Registry) Versions(ids []types.FileID) map[types.FileID]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[types.FileID]uint64, len(ids))
	for _, id := range ids {
		if f, ok := r.files[id]; ok {
			out[id] = f.Version
		}
	}
	return out
}
