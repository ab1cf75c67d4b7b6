/*
 Copyright 2023 NanaFS Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime/trace"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/basenana/davstore/config"
	"github.com/basenana/davstore/pkg/backend"
	"github.com/basenana/davstore/pkg/types"
	"github.com/basenana/davstore/utils/logger"
)

const (
	FilesystemStorage = config.FilesystemBackend

	metaFileSuffix = ".meta"
	sniffSize      = 512
)

// Filesystem serves a directory tree read-only. Properties come from a
// "<name>.meta" sidecar, or from the head section of the file itself.
var readFile = os.ReadFile

type Filesystem struct {
	root   string
	ns     types.Namespace
	cfg    config.Filesystem
	logger *zap.SugaredLogger
}

var _ backend.Backend = &Filesystem{}

func NewFilesystem(ns types.Namespace, cfg config.Filesystem) (*Filesystem, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("filesystem root is empty")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat filesystem root %s failed: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("filesystem root %s is not a directory", root)
	}
	return &Filesystem{root: root, ns: ns, cfg: cfg, logger: logger.NewLogger("filesystem")}, nil
}

func (f *Filesystem) Name() string {
	return FilesystemStorage
}

func (f *Filesystem) Namespace() types.Namespace {
	return f.ns
}

// CanonicalizeDirectories reports whether ids of directories gain a trailing slash.
func (f *Filesystem) CanonicalizeDirectories() bool {
	return f.cfg.Canonicalize()
}

func (f *Filesystem) Begin(ctx context.Context) (backend.Session, error) {
	return &fsSession{fs: f}, nil
}

func (f *Filesystem) Close() error {
	return nil
}

func (f *Filesystem) path(id types.ResourceID) (string, error) {
	p, err := f.ns.Path(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(p)), nil
}

type fsSession struct {
	fs *Filesystem
}

func (s *fsSession) IsCollection(ctx context.Context, id types.ResourceID) (bool, error) {
	p, err := s.fs.path(id)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, types.StorageError(err)
	}
	return info.IsDir(), nil
}

func (s *fsSession) Get(ctx context.Context, id types.ResourceID) (*types.Resource, error) {
	defer trace.StartRegion(ctx, "storage.filesystem.Get").End()
	defer logOperationLatency(FilesystemStorage, "get", time.Now())

	p, err := s.fs.path(id)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, logOperationError(FilesystemStorage, "get", types.StorageError(err))
		}
		// a lone sidecar still describes a resource
		if _, metaErr := os.Stat(p + metaFileSuffix); metaErr != nil {
			return nil, types.ErrNotFound
		}
		info = nil
	}

	var body []byte
	isDir := info != nil && info.IsDir()
	if info != nil && !isDir {
		body = s.readBody(p)
	}

	props, err := s.properties(p, info, body)
	if err != nil {
		return nil, logOperationError(FilesystemStorage, "get", err)
	}

	if _, ok := props.Get(types.ResourceTypeProperty); !ok {
		switch {
		case isDir:
			props[types.ResourceTypeProperty] = string(types.CollectionType)
		case isImage(body):
			props[types.ResourceTypeProperty] = string(types.ImageType)
		default:
			props[types.ResourceTypeProperty] = string(types.UnknownType)
		}
	}

	return types.NewResource(id, s.fs.ns.Name(id), props, body), nil
}

// readBody serves unreadable content as an empty body.
func (s *fsSession) readBody(p string) []byte {
	body, err := readFile(p)
	if err != nil {
		s.fs.logger.Warnw("read body failed, serve empty", "path", p, "err", err)
		return nil
	}
	return body
}

// properties reads the sidecar of p, falling back to the head of body.
func (s *fsSession) properties(p string, info os.FileInfo, body []byte) (types.Properties, error) {
	props := types.Properties{}
	if s.fs.cfg.SetLastModifiedProperty && info != nil {
		props[types.LastModifiedProperty] = info.ModTime().UTC().Format(http.TimeFormat)
	}

	data, err := readFile(p + metaFileSuffix)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		if info == nil {
			return props, nil
		}
		if info.IsDir() {
			props[types.ResourceTypeProperty] = string(types.CollectionType)
			return props, nil
		}
		data = body
	default:
		return nil, types.StorageError(err)
	}

	parsed, err := ParseMetaProperties(data)
	if err != nil {
		s.fs.logger.Debugw("parse properties failed, ignore", "path", p, "err", err)
		return props, nil
	}
	for k, v := range parsed {
		props[k] = v
	}
	return props, nil
}

func (s *fsSession) ListChildren(ctx context.Context, id types.ResourceID) ([]types.Child, error) {
	defer trace.StartRegion(ctx, "storage.filesystem.ListChildren").End()
	defer logOperationLatency(FilesystemStorage, "list_children", time.Now())

	parent, err := s.fs.ns.Path(id)
	if err != nil {
		return nil, err
	}
	p := filepath.Join(s.fs.root, filepath.FromSlash(parent))
	entries, err := os.ReadDir(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, types.ErrNotFound
		}
		// a leaf has no children
		if info, statErr := os.Stat(p); statErr == nil && !info.IsDir() {
			return []types.Child{}, nil
		}
		return nil, logOperationError(FilesystemStorage, "list_children", types.StorageError(err))
	}

	names := make(map[string]bool, len(entries))
	for _, en := range entries {
		names[en.Name()] = en.IsDir()
	}
	result := make([]types.Child, 0, len(names))
	for name, isDir := range names {
		if strings.HasPrefix(name, ".") {
			continue
		}
		if strings.HasSuffix(name, metaFileSuffix) {
			if _, ok := names[strings.TrimSuffix(name, metaFileSuffix)]; ok {
				continue
			}
		}
		childID := s.fs.ns.ID(path.Join(parent, name), isDir && s.fs.CanonicalizeDirectories())
		result = append(result, types.Child{Name: name, ID: childID})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *fsSession) Add(ctx context.Context, res *types.Resource, verifyEtag bool) error {
	return types.ErrNotImplemented
}

func (s *fsSession) ChangeProperties(ctx context.Context, id types.ResourceID, diff types.Properties) error {
	return types.ErrNotImplemented
}

func (s *fsSession) Move(ctx context.Context, from, to types.ResourceID) error {
	return types.ErrNotImplemented
}

func (s *fsSession) Copy(ctx context.Context, from, to types.ResourceID) error {
	return types.ErrNotImplemented
}

func (s *fsSession) Delete(ctx context.Context, id types.ResourceID) error {
	return types.ErrNotImplemented
}

func (s *fsSession) Lock(ctx context.Context, id types.ResourceID, principal string, until time.Time, token string) (string, error) {
	return "", types.ErrNotImplemented
}

func (s *fsSession) Unlock(ctx context.Context, id types.ResourceID, token string) error {
	return types.ErrNotImplemented
}

func (s *fsSession) Locked(ctx context.Context, id types.ResourceID) (types.LockInfo, error) {
	return types.LockInfo{}, types.ErrNotImplemented
}

func (s *fsSession) Search(ctx context.Context, query types.SearchQuery) ([]*types.Resource, error) {
	s.fs.logger.Warnw("search is not implemented", "expression", query.Expression)
	return nil, nil
}

func (s *fsSession) Prepare(ctx context.Context) error  { return nil }
func (s *fsSession) Commit(ctx context.Context) error   { return nil }
func (s *fsSession) Rollback(ctx context.Context) error { return nil }

func isImage(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	head := body
	if len(head) > sniffSize {
		head = head[:sniffSize]
	}
	return strings.HasPrefix(mimetype.Detect(head).String(), "image/")
}
