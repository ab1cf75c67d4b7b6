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

package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime/trace"
	"time"

	"go.uber.org/zap"

	"github.com/basenana/davstore/config"
	"github.com/basenana/davstore/pkg/backend"
	"github.com/basenana/davstore/pkg/metastore"
	"github.com/basenana/davstore/pkg/storage"
	"github.com/basenana/davstore/pkg/types"
	"github.com/basenana/davstore/utils"
	"github.com/basenana/davstore/utils/logger"
)

const BridgeBackend = config.BridgeBackend

// detachedProperty marks a collection whose local index no longer follows
// the remote listing. It never leaves the bridge.
var detachedProperty = types.PropertyKey{Name: "detached", Namespace: "urn:davstore:bridge"}

// Bridge serves resources from a relational store and fetches whatever is
// missing there from a remote server, materializing it on the way.
type Bridge struct {
	ns     types.Namespace
	local  *metastore.SQLStore
	remote storage.Remote
	logger *zap.SugaredLogger
}

var _ backend.Backend = &Bridge{}

func New(local *metastore.SQLStore, remote storage.Remote) *Bridge {
	return &Bridge{
		ns:     local.Namespace(),
		local:  local,
		remote: remote,
		logger: logger.NewLogger("bridge"),
	}
}

func (b *Bridge) Name() string {
	return BridgeBackend
}

func (b *Bridge) Namespace() types.Namespace {
	return b.ns
}

func (b *Bridge) Begin(ctx context.Context) (backend.Session, error) {
	return &session{
		bridge:  b,
		local:   b.local.BeginSession(ctx),
		missing: make(map[types.ResourceID]struct{}),
	}, nil
}

func (b *Bridge) Close() error {
	return b.local.Close()
}

type session struct {
	bridge *Bridge
	local  *metastore.Session

	// ids the remote reported missing during this session
	missing map[types.ResourceID]struct{}
}

var _ backend.Session = &session{}

func (s *session) ns() types.Namespace {
	return s.bridge.ns
}

// load returns the local row of id, fetching it from the remote first when needed.
func (s *session) load(ctx context.Context, id types.ResourceID) (*types.Resource, error) {
	res, err := s.local.Get(ctx, id)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}
	if _, ok := s.missing[id.Trimmed()]; ok {
		return nil, types.ErrNotFound
	}
	if err = s.fetch(ctx, id); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			s.missing[id.Trimmed()] = struct{}{}
		}
		return nil, err
	}
	return s.local.Get(ctx, id)
}

func (s *session) fetch(ctx context.Context, id types.ResourceID) error {
	defer trace.StartRegion(ctx, "bridge.fetch").End()
	defer logOperationLatency("fetch", time.Now())

	parentID, ok := s.ns().Parent(id)
	if !ok {
		return types.ErrNotFound
	}
	parent, err := s.load(ctx, parentID)
	if err != nil {
		return err
	}
	if !parent.IsCollection() {
		return types.ErrNotFound
	}
	name := s.ns().Name(id)
	entries, err := utils.ParseIndex(parent.Body)
	if err != nil {
		return types.StorageError(err)
	}
	// a detached parent knows all of its children, a clean one asks the remote
	if !parent.Properties.Bool(detachedProperty) {
		entries = s.reconcile(ctx, parent, entries)
	}
	if !containsName(entries, name) {
		return types.ErrNotFound
	}

	p, err := s.ns().Path(id)
	if err != nil {
		return err
	}
	entry, err := s.bridge.remote.Stat(ctx, p)
	if err != nil {
		return logOperationError("fetch", err)
	}

	res := &types.Resource{
		ID:         s.ns().ID(p, entry.IsCollection),
		Name:       name,
		Properties: entry.Properties.Without(types.ETagProperty),
	}
	if entry.IsCollection {
		res.Type = types.CollectionType
		children, err := s.bridge.remote.List(ctx, p)
		if err != nil {
			return logOperationError("fetch", err)
		}
		res.Body = utils.RenderIndex(remoteIndex(children))
	} else {
		res.Type = types.InferResourceType(res.Properties)
		if res.Body, err = s.bridge.remote.Read(ctx, p); err != nil {
			return logOperationError("fetch", err)
		}
	}
	s.bridge.logger.Debugw("materialize remote resource", "id", res.ID, "collection", entry.IsCollection)
	return s.local.Add(ctx, res, false)
}

// materialize loads id and, for collections, everything below it.
// It returns the ids of the collections it visited.
func (s *session) materialize(ctx context.Context, id types.ResourceID) ([]types.ResourceID, error) {
	res, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !res.IsCollection() {
		return nil, nil
	}
	collections := []types.ResourceID{res.ID}
	children, err := s.ListChildren(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		sub, err := s.materialize(ctx, child.ID)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		collections = append(collections, sub...)
	}
	return collections, nil
}

func (s *session) IsCollection(ctx context.Context, id types.ResourceID) (bool, error) {
	res, err := s.load(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return res.IsCollection(), nil
}

func (s *session) Get(ctx context.Context, id types.ResourceID) (*types.Resource, error) {
	defer trace.StartRegion(ctx, "bridge.Get").End()
	res, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return exported(res), nil
}

func (s *session) ListChildren(ctx context.Context, id types.ResourceID) ([]types.Child, error) {
	defer trace.StartRegion(ctx, "bridge.ListChildren").End()
	defer logOperationLatency("list_children", time.Now())

	res, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !res.IsCollection() {
		return []types.Child{}, nil
	}
	entries, err := utils.ParseIndex(res.Body)
	if err != nil {
		return nil, types.StorageError(err)
	}
	if !res.Properties.Bool(detachedProperty) {
		entries = s.reconcile(ctx, res, entries)
	}
	return s.children(res.ID, entries), nil
}

// reconcile compares the stored index with the remote listing. The remote wins.
func (s *session) reconcile(ctx context.Context, res *types.Resource, entries []utils.IndexEntry) []utils.IndexEntry {
	p, err := s.ns().Path(res.ID)
	if err != nil {
		return entries
	}
	remoteEntries, err := s.bridge.remote.List(ctx, p)
	if err != nil {
		s.bridge.logger.Warnw("list remote collection failed, serve local index", "id", res.ID, "err", err)
		return entries
	}
	remote := remoteIndex(remoteEntries)
	diff := utils.DiffIndex(entries, remote)
	if len(diff) == 0 {
		return entries
	}

	if len(bytes.TrimSpace(res.Body)) == 0 {
		s.bridge.logger.Debugw("index collection from remote", "id", res.ID)
	} else {
		s.bridge.logger.Warnw("collection listing drifted from remote", "id", res.ID, "difference", diff)
		reconcileDriftCounter.Inc()
	}
	err = s.local.Add(ctx, &types.Resource{
		ID:         res.ID,
		Type:       types.CollectionType,
		Properties: types.Properties{},
		Body:       utils.RenderIndex(remote),
	}, false)
	if err != nil {
		s.bridge.logger.Errorw("store reconciled index failed", "id", res.ID, "err", err)
	}
	return remote
}

func (s *session) children(parent types.ResourceID, entries []utils.IndexEntry) []types.Child {
	parentPath, _ := s.ns().Path(parent)
	result := make([]types.Child, 0, len(entries))
	for _, en := range entries {
		result = append(result, types.Child{
			Name: en.Name,
			ID:   s.ns().ID(joinPath(parentPath, en.Name), en.Collection),
		})
	}
	return result
}

func (s *session) Add(ctx context.Context, res *types.Resource, verifyEtag bool) error {
	defer trace.StartRegion(ctx, "bridge.Add").End()
	defer logOperationLatency("add", time.Now())
	if err := s.ns().Validate(res.ID); err != nil {
		return err
	}

	existing, err := s.load(ctx, res.ID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return err
	}

	incoming := *res
	incoming.Properties = res.Properties.Without(detachedProperty)
	if incoming.IsCollection() {
		incoming.Type = types.CollectionType
		if existing != nil {
			incoming.Body = existing.Body
		} else {
			incoming.Body = utils.RenderIndex(nil)
			incoming.Properties.SetBool(detachedProperty, true)
		}
	}
	if err = s.local.Add(ctx, &incoming, verifyEtag); err != nil {
		return err
	}
	delete(s.missing, res.ID.Trimmed())

	if existing == nil {
		return s.updateIndex(ctx, res.ID, func(entries []utils.IndexEntry) []utils.IndexEntry {
			return append(entries, utils.IndexEntry{Name: s.ns().Name(res.ID), Collection: incoming.IsCollection()})
		})
	}
	return nil
}

func (s *session) ChangeProperties(ctx context.Context, id types.ResourceID, diff types.Properties) error {
	defer trace.StartRegion(ctx, "bridge.ChangeProperties").End()
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	return s.local.ChangeProperties(ctx, id, diff.Without(detachedProperty))
}

func (s *session) Move(ctx context.Context, from, to types.ResourceID) error {
	defer trace.StartRegion(ctx, "bridge.Move").End()
	defer logOperationLatency("move", time.Now())
	return s.relocate(ctx, from, to, true)
}

func (s *session) Copy(ctx context.Context, from, to types.ResourceID) error {
	defer trace.StartRegion(ctx, "bridge.Copy").End()
	defer logOperationLatency("copy", time.Now())
	return s.relocate(ctx, from, to, false)
}

func (s *session) relocate(ctx context.Context, from, to types.ResourceID, move bool) error {
	if err := s.ns().Validate(to); err != nil {
		return err
	}
	if s.ns().IsRoot(from) || s.ns().IsRoot(to) || s.ns().Contains(from, to) {
		return fmt.Errorf("%w: cannot relocate %s to %s", types.ErrBadRequest, from, to)
	}
	collections, err := s.materialize(ctx, from)
	if err != nil {
		return err
	}
	if _, err = s.load(ctx, to); err == nil {
		return fmt.Errorf("%w: %s already exists", types.ErrConflict, to)
	} else if !errors.Is(err, types.ErrNotFound) {
		return err
	}
	if toParent, ok := s.ns().Parent(to); ok {
		if _, err = s.load(ctx, toParent); err != nil {
			return err
		}
	}

	if move {
		err = s.local.Move(ctx, from, to)
	} else {
		err = s.local.Copy(ctx, from, to)
	}
	if err != nil {
		return err
	}
	delete(s.missing, to.Trimmed())

	// relocated collections have no remote counterpart to follow
	for _, col := range collections {
		target := s.ns().Rebase(col, from, to).AsCollection()
		if err = s.detach(ctx, target); err != nil {
			return err
		}
	}

	if move {
		name := s.ns().Name(from)
		err = s.updateIndex(ctx, from, func(entries []utils.IndexEntry) []utils.IndexEntry {
			return removeName(entries, name)
		})
		if err != nil {
			return err
		}
	}
	isCollection := len(collections) > 0
	return s.updateIndex(ctx, to, func(entries []utils.IndexEntry) []utils.IndexEntry {
		return append(entries, utils.IndexEntry{Name: s.ns().Name(to), Collection: isCollection})
	})
}

func (s *session) Delete(ctx context.Context, id types.ResourceID) error {
	defer trace.StartRegion(ctx, "bridge.Delete").End()
	defer logOperationLatency("delete", time.Now())
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.local.Delete(ctx, id); err != nil {
		return err
	}
	name := s.ns().Name(id)
	return s.updateIndex(ctx, id, func(entries []utils.IndexEntry) []utils.IndexEntry {
		return removeName(entries, name)
	})
}

// updateIndex rewrites the index of the collection holding id and detaches it.
func (s *session) updateIndex(ctx context.Context, id types.ResourceID, fn func([]utils.IndexEntry) []utils.IndexEntry) error {
	parentID, ok := s.ns().Parent(id)
	if !ok {
		return nil
	}
	parent, err := s.local.Get(ctx, parentID)
	if err != nil {
		return err
	}
	entries, err := utils.ParseIndex(parent.Body)
	if err != nil {
		return types.StorageError(err)
	}
	if !parent.Properties.Bool(detachedProperty) {
		entries = s.reconcile(ctx, parent, entries)
	}
	return s.local.Add(ctx, &types.Resource{
		ID:         parent.ID,
		Type:       types.CollectionType,
		Properties: types.Properties{detachedProperty: types.PropertyTrue},
		Body:       utils.RenderIndex(fn(entries)),
	}, false)
}

func (s *session) detach(ctx context.Context, id types.ResourceID) error {
	diff := types.Properties{}
	diff.SetBool(detachedProperty, true)
	return s.local.ChangeProperties(ctx, id, diff)
}

func (s *session) Lock(ctx context.Context, id types.ResourceID, principal string, until time.Time, token string) (string, error) {
	if _, err := s.load(ctx, id); err != nil {
		return "", err
	}
	return s.local.Lock(ctx, id, principal, until, token)
}

func (s *session) Unlock(ctx context.Context, id types.ResourceID, token string) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	return s.local.Unlock(ctx, id, token)
}

func (s *session) Locked(ctx context.Context, id types.ResourceID) (types.LockInfo, error) {
	if _, err := s.load(ctx, id); err != nil {
		return types.LockInfo{}, err
	}
	return s.local.Locked(ctx, id)
}

// Search only sees what has been materialized.
func (s *session) Search(ctx context.Context, query types.SearchQuery) ([]*types.Resource, error) {
	result, err := s.local.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i] = exported(result[i])
	}
	return result, nil
}

func (s *session) Prepare(ctx context.Context) error {
	return s.local.Prepare(ctx)
}

func (s *session) Commit(ctx context.Context) error {
	return s.local.Commit(ctx)
}

func (s *session) Rollback(ctx context.Context) error {
	s.missing = make(map[types.ResourceID]struct{})
	return s.local.Rollback(ctx)
}

// exported hides the stored index and bookkeeping of res from callers.
func exported(res *types.Resource) *types.Resource {
	out := *res
	out.Properties = res.Properties.Without(detachedProperty)
	if out.IsCollection() {
		out.Body = nil
	}
	return &out
}

func remoteIndex(entries []storage.RemoteEntry) []utils.IndexEntry {
	result := make([]utils.IndexEntry, 0, len(entries))
	for _, en := range entries {
		result = append(result, utils.IndexEntry{Name: en.Name, Collection: en.IsCollection})
	}
	return result
}

func containsName(entries []utils.IndexEntry, name string) bool {
	for _, en := range entries {
		if en.Name == name {
			return true
		}
	}
	return false
}

func removeName(entries []utils.IndexEntry, name string) []utils.IndexEntry {
	result := entries[:0]
	for _, en := range entries {
		if en.Name != name {
			result = append(result, en)
		}
	}
	return result
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
