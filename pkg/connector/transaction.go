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
	"errors"
	"fmt"
	"runtime/trace"
	"time"

	"github.com/hyponet/eventbus"

	"github.com/basenana/davstore/pkg/backend"
	"github.com/basenana/davstore/pkg/events"
	"github.com/basenana/davstore/pkg/types"
)

const eventSource = "connector"

type outlivingLock struct {
	principal string
	until     time.Time
	token     string
}

// Transaction is one logical transaction. Its caches live as long as it does.
type Transaction struct {
	store     *Store
	session   backend.Session
	principal string
	cache     *transactionCache

	// locks to re-apply when the transaction aborts
	outliving map[types.ResourceID]outlivingLock
	// id -> last action, published after commit
	changed  map[types.ResourceID]string
	prepared bool
	closed   bool
}

var (
	_ Connector   = &Transaction{}
	_ Participant = &Transaction{}
)

func newTransaction(s *Store, sess backend.Session, principal string) *Transaction {
	return &Transaction{
		store:     s,
		session:   sess,
		principal: principal,
		cache:     newTransactionCache(s.ns, s.cacheSize),
		outliving: make(map[types.ResourceID]outlivingLock),
		changed:   make(map[types.ResourceID]string),
	}
}

func (t *Transaction) Principal() string {
	return t.principal
}

func (t *Transaction) check() error {
	if t.closed {
		return types.ErrTxClosed
	}
	return nil
}

func (t *Transaction) Get(ctx context.Context, id types.ResourceID) (*types.Resource, error) {
	defer trace.StartRegion(ctx, "connector.Get").End()
	defer logOperationLatency("get", time.Now())
	cid, err := t.Canonicalize(ctx, id)
	if err != nil {
		return nil, logOperationError("get", err)
	}
	if res, ok := t.cache.getResource(cid); ok {
		return res, nil
	}
	res, err := t.session.Get(ctx, cid)
	if err != nil {
		return nil, logOperationError("get", err)
	}
	t.cache.putResource(res)
	res.ID = cid
	return res, nil
}

// Exists reports whether id resolves to a resource.
func (t *Transaction) Exists(ctx context.Context, id types.ResourceID) (bool, error) {
	_, err := t.Get(ctx, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (t *Transaction) ListCollection(ctx context.Context, id types.ResourceID) ([]types.Child, error) {
	defer trace.StartRegion(ctx, "connector.ListCollection").End()
	defer logOperationLatency("list_collection", time.Now())
	cid, err := t.Canonicalize(ctx, id)
	if err != nil {
		return nil, logOperationError("list_collection", err)
	}
	if children, ok := t.cache.getChildren(cid); ok {
		return children, nil
	}
	children, err := t.session.ListChildren(ctx, cid)
	if err != nil {
		return nil, logOperationError("list_collection", err)
	}
	t.cache.putChildren(cid, children)
	return children, nil
}

func (t *Transaction) Add(ctx context.Context, res *types.Resource, verifyEtag bool) error {
	defer trace.StartRegion(ctx, "connector.Add").End()
	defer logOperationLatency("add", time.Now())
	if err := t.check(); err != nil {
		return err
	}
	cid, err := t.canonicalFor(res.ID, res.IsCollection())
	if err != nil {
		return logOperationError("add", err)
	}
	staged := *res
	staged.ID = cid
	// tombstones pass through: replacing a resource may delete stored keys
	staged.Properties = res.Properties.Copy()
	if staged.Name == "" {
		staged.Name = t.store.ns.Name(cid)
	}

	err = t.session.Add(ctx, &staged, verifyEtag)
	// the backend may have written part of the row before failing
	t.cache.invalidate(cid, false)
	t.cache.invalidateParent(cid)
	if err != nil {
		return logOperationError("add", err)
	}
	t.changed[cid] = events.ActionTypeAdd
	return nil
}

func (t *Transaction) ChangeProperties(ctx context.Context, id types.ResourceID, diff types.Properties) error {
	defer trace.StartRegion(ctx, "connector.ChangeProperties").End()
	defer logOperationLatency("change_properties", time.Now())
	cid, err := t.Canonicalize(ctx, id)
	if err != nil {
		return logOperationError("change_properties", err)
	}
	err = t.session.ChangeProperties(ctx, cid, diff.Without(types.UUIDProperty))
	t.cache.invalidate(cid, false)
	if err != nil {
		return logOperationError("change_properties", err)
	}
	t.changed[cid] = events.ActionTypeChangeProperties
	return nil
}

func (t *Transaction) Move(ctx context.Context, from, to types.ResourceID) error {
	defer trace.StartRegion(ctx, "connector.Move").End()
	defer logOperationLatency("move", time.Now())
	src, dst, err := t.relocation(ctx, from, to)
	if err != nil {
		return logOperationError("move", err)
	}
	err = t.session.Move(ctx, src, dst)
	t.cache.invalidate(src, true)
	t.cache.invalidateParent(src)
	t.cache.invalidate(dst, true)
	t.cache.invalidateParent(dst)
	if err != nil {
		return logOperationError("move", err)
	}
	t.changed[src] = events.ActionTypeMove
	t.changed[dst] = events.ActionTypeMove
	if lock, ok := t.outliving[src]; ok {
		delete(t.outliving, src)
		t.outliving[dst] = lock
	}
	return nil
}

func (t *Transaction) Copy(ctx context.Context, from, to types.ResourceID) error {
	defer trace.StartRegion(ctx, "connector.Copy").End()
	defer logOperationLatency("copy", time.Now())
	src, dst, err := t.relocation(ctx, from, to)
	if err != nil {
		return logOperationError("copy", err)
	}
	err = t.session.Copy(ctx, src, dst)
	t.cache.invalidate(dst, true)
	t.cache.invalidateParent(dst)
	if err != nil {
		return logOperationError("copy", err)
	}
	t.changed[dst] = events.ActionTypeCopy
	return nil
}

// relocation resolves the source and shapes the target like it.
func (t *Transaction) relocation(ctx context.Context, from, to types.ResourceID) (types.ResourceID, types.ResourceID, error) {
	src, err := t.Canonicalize(ctx, from)
	if err != nil {
		return "", "", err
	}
	if err = t.store.ns.Validate(to); err != nil {
		return "", "", err
	}
	isDir := src.IsCollection()
	if !isDir && !t.store.canonicalizeDirs {
		if isDir, err = t.session.IsCollection(ctx, src); err != nil {
			return "", "", err
		}
	}
	dst, err := t.canonicalFor(to, isDir)
	if err != nil {
		return "", "", err
	}
	return src, dst, nil
}

func (t *Transaction) Delete(ctx context.Context, id types.ResourceID) error {
	defer trace.StartRegion(ctx, "connector.Delete").End()
	defer logOperationLatency("delete", time.Now())
	cid, err := t.Canonicalize(ctx, id)
	if err != nil {
		return logOperationError("delete", err)
	}
	err = t.session.Delete(ctx, cid)
	t.cache.invalidate(cid, true)
	t.cache.invalidateParent(cid)
	if err != nil {
		return logOperationError("delete", err)
	}
	t.changed[cid] = events.ActionTypeDelete
	for lid := range t.outliving {
		if t.store.ns.Contains(cid, lid) {
			delete(t.outliving, lid)
		}
	}
	return nil
}

// Lock takes an advisory lock. A lock with Outlive set is re-applied when
// this transaction aborts; other locks go away with the rollback.
func (t *Transaction) Lock(ctx context.Context, id types.ResourceID, attr types.LockAttr) (string, error) {
	defer trace.StartRegion(ctx, "connector.Lock").End()
	defer logOperationLatency("lock", time.Now())
	cid, err := t.Canonicalize(ctx, id)
	if err != nil {
		return "", logOperationError("lock", err)
	}
	if attr.Until.IsZero() {
		return "", fmt.Errorf("%w: lock of %s has no expiry", types.ErrBadRequest, cid)
	}
	principal := attr.Principal
	if principal == "" {
		principal = t.principal
	}

	token, err := t.session.Lock(ctx, cid, principal, attr.Until, "")
	t.cache.invalidateProperties(cid)
	if err != nil {
		return "", logOperationError("lock", err)
	}
	if attr.Outlive {
		t.outliving[cid] = outlivingLock{principal: principal, until: attr.Until, token: token}
	}
	t.changed[cid] = events.ActionTypeLock
	return token, nil
}

func (t *Transaction) Unlock(ctx context.Context, id types.ResourceID, token string) error {
	defer trace.StartRegion(ctx, "connector.Unlock").End()
	defer logOperationLatency("unlock", time.Now())
	cid, err := t.Canonicalize(ctx, id)
	if err != nil {
		return logOperationError("unlock", err)
	}
	err = t.session.Unlock(ctx, cid, token)
	t.cache.invalidateProperties(cid)
	if err != nil {
		return logOperationError("unlock", err)
	}
	delete(t.outliving, cid)
	t.changed[cid] = events.ActionTypeUnlock
	return nil
}

// Locked reports the active lock of id; expired locks read as unlocked.
func (t *Transaction) Locked(ctx context.Context, id types.ResourceID) (types.LockInfo, error) {
	defer trace.StartRegion(ctx, "connector.Locked").End()
	cid, err := t.Canonicalize(ctx, id)
	if err != nil {
		return types.LockInfo{}, logOperationError("locked", err)
	}
	info, err := t.session.Locked(ctx, cid)
	if err != nil {
		return types.LockInfo{}, logOperationError("locked", err)
	}
	if !info.Active(time.Now()) {
		return types.LockInfo{}, nil
	}
	info.Owned = info.Principal == t.principal
	return info, nil
}

// Search is best effort: a backend that cannot search yields nothing.
func (t *Transaction) Search(ctx context.Context, query types.SearchQuery) ([]*types.Resource, error) {
	defer trace.StartRegion(ctx, "connector.Search").End()
	defer logOperationLatency("search", time.Now())
	if err := t.check(); err != nil {
		return nil, err
	}
	result, err := t.session.Search(ctx, query)
	if err != nil {
		if errors.Is(err, types.ErrNotImplemented) {
			t.store.logger.Warnw("backend does not support search", "backend", t.store.backend.Name(), "expression", query.Expression)
			return []*types.Resource{}, nil
		}
		return nil, logOperationError("search", err)
	}
	if query.Limit > 0 && len(result) > query.Limit {
		result = result[:query.Limit]
	}
	return result, nil
}

// Invalidate drops every cached view of ids and their descendants.
func (t *Transaction) Invalidate(ids ...types.ResourceID) {
	for _, id := range ids {
		t.cache.invalidate(id, true)
		t.cache.invalidateParent(id)
	}
}

func (t *Transaction) Prepare(ctx context.Context) error {
	defer trace.StartRegion(ctx, "connector.Prepare").End()
	if err := t.check(); err != nil {
		return err
	}
	if err := t.session.Prepare(ctx); err != nil {
		t.store.logger.Warnw("prepare transaction failed, abort", "principal", t.principal, "err", err)
		if abortErr := t.Abort(ctx); abortErr != nil {
			t.store.logger.Errorw("abort after failed prepare failed", "err", abortErr)
		}
		return logOperationError("prepare", err)
	}
	t.prepared = true
	return nil
}

// Commit prepares if needed and makes the staged changes durable. A failure
// after a successful prepare is not recoverable.
func (t *Transaction) Commit(ctx context.Context) error {
	defer trace.StartRegion(ctx, "connector.Commit").End()
	defer logOperationLatency("commit", time.Now())
	if err := t.check(); err != nil {
		return err
	}
	if !t.prepared {
		if err := t.Prepare(ctx); err != nil {
			return err
		}
	}

	t.closed = true
	t.cache.purge()
	if err := t.session.Commit(ctx); err != nil {
		t.store.logger.Errorw("commit failed after prepare", "principal", t.principal, "err", err)
		if rbErr := t.session.Rollback(ctx); rbErr != nil {
			t.store.logger.Errorw("rollback after failed commit failed", "err", rbErr)
		}
		return logOperationError("commit", fmt.Errorf("%w: %w", types.ErrCommitFailed, err))
	}
	t.publish()
	return nil
}

// Abort discards staged changes and restores the outliving locks taken here.
// Aborting a finished transaction is a no-op.
func (t *Transaction) Abort(ctx context.Context) error {
	defer trace.StartRegion(ctx, "connector.Abort").End()
	if t.closed {
		return nil
	}
	t.closed = true
	t.cache.purge()
	if err := t.session.Rollback(ctx); err != nil {
		t.store.logger.Errorw("rollback session failed", "err", err)
		return logOperationError("abort", err)
	}
	if len(t.outliving) == 0 {
		return nil
	}
	return logOperationError("abort", t.reapplyLocks(ctx))
}

func (t *Transaction) reapplyLocks(ctx context.Context) error {
	sess, err := t.store.backend.Begin(ctx)
	if err != nil {
		return types.StorageError(err)
	}
	t.changed = make(map[types.ResourceID]string)
	for id, lock := range t.outliving {
		_, err = sess.Lock(ctx, id, lock.principal, lock.until, lock.token)
		if errors.Is(err, types.ErrNotFound) {
			// created by the aborted transaction
			t.store.logger.Warnw("resource of outliving lock is gone", "id", id)
			continue
		}
		if err != nil {
			t.store.logger.Errorw("re-apply lock failed", "id", id, "principal", lock.principal, "err", err)
			_ = sess.Rollback(ctx)
			return err
		}
		t.changed[id] = events.ActionTypeLock
	}
	if err = sess.Prepare(ctx); err == nil {
		err = sess.Commit(ctx)
	}
	if err != nil {
		_ = sess.Rollback(ctx)
		return err
	}
	t.publish()
	return nil
}

func (t *Transaction) publish() {
	for id, action := range t.changed {
		eventbus.Publish(events.ResourceActionTopic(events.ActionTypeInvalidated),
			events.BuildResourceEvent(events.ActionTypeInvalidated, eventSource, id, action, t.principal))
	}
	t.changed = make(map[types.ResourceID]string)
}
