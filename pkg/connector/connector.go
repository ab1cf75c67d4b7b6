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

package connector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/basenana/davstore/config"
	"github.com/basenana/davstore/pkg/backend"
	"github.com/basenana/davstore/pkg/bridge"
	"github.com/basenana/davstore/pkg/metastore"
	"github.com/basenana/davstore/pkg/storage"
	"github.com/basenana/davstore/pkg/types"
	"github.com/basenana/davstore/utils"
	"github.com/basenana/davstore/utils/logger"
)

// Connector is the uniform resource store interface. Ids are canonicalized
// before they reach a backend.
type Connector interface {
	Canonicalize(ctx context.Context, id types.ResourceID) (types.ResourceID, error)
	Get(ctx context.Context, id types.ResourceID) (*types.Resource, error)
	ListCollection(ctx context.Context, id types.ResourceID) ([]types.Child, error)
	Add(ctx context.Context, res *types.Resource, verifyEtag bool) error
	ChangeProperties(ctx context.Context, id types.ResourceID, diff types.Properties) error
	Move(ctx context.Context, from, to types.ResourceID) error
	Copy(ctx context.Context, from, to types.ResourceID) error
	Delete(ctx context.Context, id types.ResourceID) error
	Lock(ctx context.Context, id types.ResourceID, attr types.LockAttr) (string, error)
	Unlock(ctx context.Context, id types.ResourceID, token string) error
	Locked(ctx context.Context, id types.ResourceID) (types.LockInfo, error)
	Search(ctx context.Context, query types.SearchQuery) ([]*types.Resource, error)
}

// Participant is how an enclosing transaction drives the store.
type Participant interface {
	Prepare(ctx context.Context) error
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

type Store struct {
	backend          backend.Backend
	ns               types.Namespace
	cacheSize        int
	canonicalizeDirs bool
	logger           *zap.SugaredLogger
}

// New opens the backend selected by cfg.
func New(cfg config.Config) (*Store, error) {
	b, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(b, cfg.Cache.Size), nil
}

func NewBackend(cfg config.Config) (backend.Backend, error) {
	ns := types.NewNamespace(cfg.Prefix)
	switch cfg.Backend.Type {
	case config.FilesystemBackend:
		if cfg.Backend.Filesystem == nil {
			return nil, fmt.Errorf("filesystem backend config is nil")
		}
		return storage.NewFilesystem(ns, *cfg.Backend.Filesystem)
	case config.RelationalBackend:
		if cfg.Backend.Meta == nil {
			return nil, fmt.Errorf("relational backend meta config is nil")
		}
		return metastore.NewMetaStorage(ns, *cfg.Backend.Meta)
	case config.BridgeBackend:
		if cfg.Backend.Meta == nil || cfg.Backend.Remote == nil {
			return nil, fmt.Errorf("bridge backend needs both meta and remote config")
		}
		local, err := metastore.New(ns, *cfg.Backend.Meta)
		if err != nil {
			return nil, err
		}
		remote, err := storage.NewWebdavRemote(*cfg.Backend.Remote)
		if err != nil {
			_ = local.Close()
			return nil, err
		}
		return bridge.New(local, remote), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Backend.Type)
	}
}

func NewStore(b backend.Backend, cacheSize int) *Store {
	if cacheSize <= 0 {
		cacheSize = config.DefaultCacheSize
	}
	s := &Store{
		backend:          b,
		ns:               b.Namespace(),
		cacheSize:        cacheSize,
		canonicalizeDirs: true,
		logger:           logger.NewLogger("connector"),
	}
	if dc, ok := b.(backend.DirectoryCanonicalizer); ok {
		s.canonicalizeDirs = dc.CanonicalizeDirectories()
	}
	return s
}

func (s *Store) Namespace() types.Namespace {
	return s.ns
}

func (s *Store) BackendName() string {
	return s.backend.Name()
}

// Begin starts a logical transaction on behalf of principal.
func (s *Store) Begin(ctx context.Context, principal string) (*Transaction, error) {
	sess, err := s.backend.Begin(ctx)
	if err != nil {
		s.logger.Errorw("begin backend session failed", "err", err)
		return nil, types.StorageError(err)
	}
	return newTransaction(s, sess, principal), nil
}

// Do runs fn in a transaction, committing when fn returns nil and aborting otherwise.
// A panic in fn aborts the transaction and comes back as an error.
func (s *Store) Do(ctx context.Context, principal string, fn func(tx *Transaction) error) (err error) {
	tx, err := s.Begin(ctx, principal)
	if err != nil {
		return err
	}
	defer func() {
		if panicErr := utils.Recover(recover()); panicErr != nil {
			s.logger.Errorw("transaction panicked, abort", "principal", principal, "err", panicErr)
			if abortErr := tx.Abort(ctx); abortErr != nil {
				s.logger.Errorw("abort transaction failed", "err", abortErr)
			}
			err = panicErr
		}
	}()
	if err = fn(tx); err != nil {
		if abortErr := tx.Abort(ctx); abortErr != nil {
			s.logger.Errorw("abort transaction failed", "err", abortErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Close() error {
	return s.backend.Close()
}
