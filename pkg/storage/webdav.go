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
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"runtime/trace"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/studio-b12/gowebdav"
	"go.uber.org/zap"

	"github.com/basenana/davstore/config"
	"github.com/basenana/davstore/pkg/types"
	"github.com/basenana/davstore/utils"
	"github.com/basenana/davstore/utils/logger"
)

const (
	WebdavStorage = "webdav"

	defaultRemoteConcurrency = 30
)

// RemoteEntry is what a remote server knows about one path.
type RemoteEntry struct {
	Name         string
	IsCollection bool
	Properties   types.Properties
}

// Remote is the narrow read interface the bridge backend fetches through.
// Paths are store paths like "/a/b".
type Remote interface {
	Stat(ctx context.Context, p string) (*RemoteEntry, error)
	Read(ctx context.Context, p string) ([]byte, error)
	List(ctx context.Context, p string) ([]RemoteEntry, error)
}

type webdavRemote struct {
	basePath string
	cli      *gowebdav.Client
	limiter  *utils.ParallelLimiter
	logger   *zap.SugaredLogger
}

var _ Remote = &webdavRemote{}

func (w *webdavRemote) Stat(ctx context.Context, p string) (*RemoteEntry, error) {
	defer trace.StartRegion(ctx, "storage.webdav.Stat").End()
	defer logOperationLatency(WebdavStorage, "stat", time.Now())
	if err := w.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer w.limiter.Release()

	info, err := w.cli.Stat(w.remotePath(p))
	if err != nil {
		return nil, logOperationError(WebdavStorage, "stat", w.convertError("stat", p, err))
	}
	entry := toRemoteEntry(info)
	if p == "/" {
		entry.Name = ""
	}
	return &entry, nil
}

func (w *webdavRemote) Read(ctx context.Context, p string) ([]byte, error) {
	defer trace.StartRegion(ctx, "storage.webdav.Read").End()
	defer logOperationLatency(WebdavStorage, "read", time.Now())
	if err := w.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer w.limiter.Release()

	data, err := w.cli.Read(w.remotePath(p))
	if err != nil {
		return nil, logOperationError(WebdavStorage, "read", w.convertError("read", p, err))
	}
	return data, nil
}

func (w *webdavRemote) List(ctx context.Context, p string) ([]RemoteEntry, error) {
	defer trace.StartRegion(ctx, "storage.webdav.List").End()
	defer logOperationLatency(WebdavStorage, "list", time.Now())
	if err := w.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer w.limiter.Release()

	infos, err := w.cli.ReadDir(w.remotePath(p))
	if err != nil {
		return nil, logOperationError(WebdavStorage, "list", w.convertError("list", p, err))
	}
	result := make([]RemoteEntry, 0, len(infos))
	for _, info := range infos {
		result = append(result, toRemoteEntry(info))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (w *webdavRemote) remotePath(p string) string {
	return path.Join(w.basePath, p)
}

func (w *webdavRemote) convertError(op, p string, err error) error {
	if gowebdav.IsErrNotFound(err) || errors.Is(err, os.ErrNotExist) {
		return types.ErrNotFound
	}
	w.logger.Errorw("request webdav server failed", "operation", op, "path", p, "err", err)
	return types.StorageError(err)
}

func toRemoteEntry(info os.FileInfo) RemoteEntry {
	entry := RemoteEntry{Name: info.Name(), IsCollection: info.IsDir(), Properties: types.Properties{}}
	if !info.ModTime().IsZero() {
		entry.Properties[types.LastModifiedProperty] = info.ModTime().UTC().Format(http.TimeFormat)
	}

	var contentType, etag string
	switch f := info.(type) {
	case *gowebdav.File:
		contentType, etag = f.ContentType(), f.ETag()
	case gowebdav.File:
		contentType, etag = f.ContentType(), f.ETag()
	}
	if etag != "" {
		entry.Properties[types.ETagProperty] = strings.Trim(etag, `"`)
	}

	if entry.IsCollection {
		entry.Properties[types.DAVResourceTypeProperty] = "collection"
		entry.Properties[types.ContentTypeProperty] = types.CollectionContentType
		return entry
	}
	entry.Properties[types.DAVResourceTypeProperty] = ""
	entry.Properties[types.ContentLengthProperty] = strconv.FormatInt(info.Size(), 10)
	if contentType != "" {
		entry.Properties[types.ContentTypeProperty] = contentType
	}
	return entry
}

func NewWebdavRemote(cfg config.Remote) (Remote, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("remote config server_url is empty")
	}

	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   60 * time.Second,
		ExpectContinueTimeout: 10 * time.Second,
	}
	if cfg.Insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	cli := gowebdav.NewClient(cfg.ServerURL, cfg.Username, cfg.Password)
	cli.SetTransport(t)
	if cfg.TimeoutSeconds > 0 {
		cli.SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)
	}

	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = defaultRemoteConcurrency
	}
	basePath := cfg.Root
	if basePath == "" {
		basePath = "/"
	}
	return &webdavRemote{
		basePath: basePath,
		cli:      cli,
		limiter:  utils.NewParallelLimiter(concurrency),
		logger:   logger.NewLogger("webdav"),
	}, nil
}
