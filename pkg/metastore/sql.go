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

package metastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/trace"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/basenana/davstore/config"
	"github.com/basenana/davstore/pkg/backend"
	"github.com/basenana/davstore/pkg/cel"
	"github.com/basenana/davstore/pkg/metastore/db"
	"github.com/basenana/davstore/pkg/types"
	"github.com/basenana/davstore/utils"
	"github.com/basenana/davstore/utils/logger"
)

type SQLStore struct {
	*gorm.DB

	ns     types.Namespace
	logger *zap.SugaredLogger
}

var _ backend.Backend = &SQLStore{}

func newSqliteStore(ns types.Namespace, meta config.Meta, inMemory bool) (*SQLStore, error) {
	dsn := meta.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	if inMemory {
		dsn = meta.Path + "?_pragma=foreign_keys(1)"
	}
	dbEntity, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: db.NewDbLogger(), TranslateError: true})
	if err != nil {
		return nil, err
	}

	dbConn, err := dbEntity.DB()
	if err != nil {
		return nil, err
	}
	if inMemory {
		// every connection of an in-memory sqlite sees its own database
		dbConn.SetMaxOpenConns(1)
	}

	if err = dbConn.Ping(); err != nil {
		return nil, err
	}
	return buildSqlStore(ns, dbEntity)
}

func newPostgresStore(ns types.Namespace, meta config.Meta) (*SQLStore, error) {
	dbEntity, err := gorm.Open(postgres.Open(meta.DSN), &gorm.Config{Logger: db.NewDbLogger(), TranslateError: true})
	if err != nil {
		return nil, err
	}

	dbConn, err := dbEntity.DB()
	if err != nil {
		return nil, err
	}

	dbConn.SetMaxIdleConns(5)
	dbConn.SetMaxOpenConns(50)
	dbConn.SetConnMaxLifetime(time.Hour)

	if err = dbConn.Ping(); err != nil {
		return nil, err
	}
	return buildSqlStore(ns, dbEntity)
}

func buildSqlStore(ns types.Namespace, dbEntity *gorm.DB) (*SQLStore, error) {
	s := &SQLStore{DB: dbEntity, ns: ns, logger: logger.NewLogger("metastore")}

	if err := db.Migrate(s.DB); err != nil {
		return nil, db.SqlError2Error(err)
	}
	if err := s.ensureRoot(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) ensureRoot(ctx context.Context) error {
	_, err := getItem(s.WithContext(ctx), db.RootPath)
	if err == nil || !errors.Is(err, types.ErrNotFound) {
		return err
	}
	now := time.Now()
	root := &db.StorageItem{
		ID:           utils.GenerateNewID(),
		IsCollection: true,
		Properties: db.JSONProperties{
			types.MetaNamespace: {types.ResourceTypeProperty.Name: string(types.CollectionType)},
			types.DAVNamespace:  {types.ContentTypeProperty.Name: types.CollectionContentType},
		},
		ETag:       utils.NewETag(),
		Version:    1,
		CreatedAt:  now.UnixNano(),
		ModifiedAt: now.UnixNano(),
	}
	res := s.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(root)
	if res.Error != nil {
		s.logger.Errorw("create root collection failed", "err", res.Error)
		return db.SqlError2Error(res.Error)
	}
	return nil
}

func (s *SQLStore) Name() string {
	return config.RelationalBackend
}

func (s *SQLStore) Namespace() types.Namespace {
	return s.ns
}

func (s *SQLStore) Begin(ctx context.Context) (backend.Session, error) {
	return s.BeginSession(ctx), nil
}

// BeginSession is Begin with the concrete session type, used by the bridge.
func (s *SQLStore) BeginSession(ctx context.Context) *Session {
	return &Session{store: s}
}

func (s *SQLStore) Close() error {
	conn, err := s.DB.DB()
	if err != nil {
		return err
	}
	return conn.Close()
}

func (s *SQLStore) toResource(item *db.StorageItem) *types.Resource {
	props := types.PropertiesFromGroups(item.Properties)
	props[types.ETagProperty] = item.ETag
	return types.NewResource(s.ns.ID(item.Path(), item.IsCollection), item.Name, props, item.Body)
}

// Session keeps one database transaction, begun with the first write.
// Reads before that run against the pool.
type Session struct {
	store  *SQLStore
	tx     *gorm.DB
	closed bool
}

var _ backend.Session = &Session{}

func (s *Session) reader(ctx context.Context) *gorm.DB {
	if s.tx != nil {
		return s.tx.WithContext(ctx)
	}
	return s.store.WithContext(ctx)
}

func (s *Session) write(ctx context.Context, operation string, fn func(tx *gorm.DB) error) error {
	if s.closed {
		return types.ErrTxClosed
	}
	if s.tx == nil {
		tx := s.store.DB.Begin()
		if tx.Error != nil {
			s.store.logger.Errorw("begin transaction failed", "operation", operation, "err", tx.Error)
			return db.SqlError2Error(tx.Error)
		}
		s.tx = tx
	}

	// one savepoint per operation, a failed operation leaves the session usable
	err := s.tx.WithContext(ctx).Transaction(fn)
	if err != nil {
		logOperationError(operation, err)
		if !types.IsKnownError(err) {
			s.store.logger.Errorw("write operation failed", "operation", operation, "err", err)
		}
		return db.SqlError2Error(err)
	}
	return nil
}

func (s *Session) path(id types.ResourceID) (string, error) {
	return s.store.ns.Path(id)
}

func (s *Session) IsCollection(ctx context.Context, id types.ResourceID) (bool, error) {
	defer trace.StartRegion(ctx, "metastore.sql.IsCollection").End()
	p, err := s.path(id)
	if err != nil {
		return false, err
	}
	item, err := getItem(s.reader(ctx).Select("id", "is_collection"), p)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return false, nil
		}
		logOperationError("is_collection", err)
		return false, err
	}
	return item.IsCollection, nil
}

func (s *Session) Get(ctx context.Context, id types.ResourceID) (*types.Resource, error) {
	defer trace.StartRegion(ctx, "metastore.sql.Get").End()
	defer logOperationLatency("get", time.Now())
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	item, err := getItem(s.reader(ctx), p)
	if err != nil {
		logOperationError("get", err)
		return nil, err
	}
	return s.store.toResource(item), nil
}

func (s *Session) ListChildren(ctx context.Context, id types.ResourceID) ([]types.Child, error) {
	defer trace.StartRegion(ctx, "metastore.sql.ListChildren").End()
	defer logOperationLatency("list_children", time.Now())
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	reader := s.reader(ctx)
	item, err := getItem(reader.Select("id", "is_collection"), p)
	if err != nil {
		logOperationError("list_children", err)
		return nil, err
	}
	if !item.IsCollection {
		return []types.Child{}, nil
	}

	var rows []db.StorageItem
	res := s.reader(ctx).Select("parent_path", "name", "is_collection").
		Where("parent_path = ?", p).Order("name").Find(&rows)
	if res.Error != nil {
		logOperationError("list_children", res.Error)
		return nil, db.SqlError2Error(res.Error)
	}
	children := make([]types.Child, 0, len(rows))
	for i := range rows {
		children = append(children, types.Child{
			Name: rows[i].Name,
			ID:   s.store.ns.ID(rows[i].Path(), rows[i].IsCollection),
		})
	}
	return children, nil
}

func (s *Session) Add(ctx context.Context, res *types.Resource, verifyEtag bool) error {
	defer trace.StartRegion(ctx, "metastore.sql.Add").End()
	defer logOperationLatency("add", time.Now())
	p, err := s.path(res.ID)
	if err != nil {
		return err
	}
	return s.write(ctx, "add", func(tx *gorm.DB) error {
		now := time.Now()
		incoming := withDefaults(res, now)

		existing, err := getItem(tx, p)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return err
		}
		if existing != nil {
			if verifyEtag && res.ETag != "" && res.ETag != existing.ETag {
				return fmt.Errorf("%w: etag of %s is %s, caller has %s", types.ErrConflict, res.ID, existing.ETag, res.ETag)
			}
			if existing.IsCollection != res.IsCollection() {
				return fmt.Errorf("%w: %s cannot change between collection and leaf", types.ErrConflict, res.ID)
			}
			merged := types.PropertiesFromGroups(existing.Properties).Merge(incoming)
			return updateVersioned(tx, existing, map[string]interface{}{
				"body":        res.Body,
				"properties":  db.JSONProperties(merged.Grouped()),
				"etag":        utils.NewETag(),
				"modified_at": now.UnixNano(),
			})
		}

		parentPath, name := db.SplitPath(p)
		if p != db.RootPath {
			if err = checkParent(tx, parentPath); err != nil {
				return err
			}
		}
		item := &db.StorageItem{
			ID:           utils.GenerateNewID(),
			ParentPath:   parentPath,
			Name:         name,
			IsCollection: res.IsCollection(),
			Body:         res.Body,
			Properties:   db.JSONProperties(incoming.Strip().Grouped()),
			ETag:         utils.NewETag(),
			Version:      1,
			CreatedAt:    now.UnixNano(),
			ModifiedAt:   now.UnixNano(),
		}
		if err = tx.Create(item).Error; err != nil {
			return db.SqlError2Error(err)
		}
		return nil
	})
}

func (s *Session) ChangeProperties(ctx context.Context, id types.ResourceID, diff types.Properties) error {
	defer trace.StartRegion(ctx, "metastore.sql.ChangeProperties").End()
	defer logOperationLatency("change_properties", time.Now())
	p, err := s.path(id)
	if err != nil {
		return err
	}
	diff = diff.Without(types.UUIDProperty, types.ETagProperty)
	return s.write(ctx, "change_properties", func(tx *gorm.DB) error {
		item, err := getItem(tx, p)
		if err != nil {
			return err
		}
		merged := types.PropertiesFromGroups(item.Properties).Merge(diff)
		return updateVersioned(tx, item, map[string]interface{}{
			"properties":  db.JSONProperties(merged.Grouped()),
			"etag":        utils.NewETag(),
			"modified_at": time.Now().UnixNano(),
		})
	})
}

func (s *Session) Move(ctx context.Context, from, to types.ResourceID) error {
	defer trace.StartRegion(ctx, "metastore.sql.Move").End()
	defer logOperationLatency("move", time.Now())
	fromPath, toPath, err := s.relocationPaths(from, to)
	if err != nil {
		return err
	}
	return s.write(ctx, "move", func(tx *gorm.DB) error {
		src, err := getItem(tx.Select("id", "parent_path", "name", "is_collection", "version"), fromPath)
		if err != nil {
			return err
		}
		if err = checkTarget(tx, toPath); err != nil {
			return err
		}

		var descendants []*db.StorageItem
		res := tx.Select("id", "parent_path", "version").Scopes(db.SubtreeScope(fromPath)).Find(&descendants)
		if res.Error != nil {
			return db.SqlError2Error(res.Error)
		}

		now := time.Now().UnixNano()
		newParent, newName := db.SplitPath(toPath)
		err = updateVersioned(tx, src, map[string]interface{}{
			"parent_path": newParent,
			"name":        newName,
			"etag":        utils.NewETag(),
			"modified_at": now,
		})
		if err != nil {
			return err
		}
		for _, d := range descendants {
			err = updateVersioned(tx, d, map[string]interface{}{
				"parent_path": toPath + strings.TrimPrefix(d.ParentPath, fromPath),
				"modified_at": now,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Session) Copy(ctx context.Context, from, to types.ResourceID) error {
	defer trace.StartRegion(ctx, "metastore.sql.Copy").End()
	defer logOperationLatency("copy", time.Now())
	fromPath, toPath, err := s.relocationPaths(from, to)
	if err != nil {
		return err
	}
	return s.write(ctx, "copy", func(tx *gorm.DB) error {
		src, err := getItem(tx, fromPath)
		if err != nil {
			return err
		}
		if err = checkTarget(tx, toPath); err != nil {
			return err
		}

		var descendants []*db.StorageItem
		res := tx.Scopes(db.SubtreeScope(fromPath)).Find(&descendants)
		if res.Error != nil {
			return db.SqlError2Error(res.Error)
		}

		now := time.Now().UnixNano()
		clones := make([]*db.StorageItem, 0, len(descendants)+1)
		newParent, newName := db.SplitPath(toPath)
		clones = append(clones, cloneItem(src, newParent, newName, now))
		for _, d := range descendants {
			clones = append(clones, cloneItem(d, toPath+strings.TrimPrefix(d.ParentPath, fromPath), d.Name, now))
		}
		if res = tx.Create(&clones); res.Error != nil {
			return db.SqlError2Error(res.Error)
		}
		return nil
	})
}

func (s *Session) Delete(ctx context.Context, id types.ResourceID) error {
	defer trace.StartRegion(ctx, "metastore.sql.Delete").End()
	defer logOperationLatency("delete", time.Now())
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if p == db.RootPath {
		return fmt.Errorf("%w: the root collection cannot be deleted", types.ErrBadRequest)
	}
	return s.write(ctx, "delete", func(tx *gorm.DB) error {
		item, err := getItem(tx.Select("id", "version"), p)
		if err != nil {
			return err
		}
		ids := []int64{item.ID}
		var subIDs []int64
		if res := tx.Model(&db.StorageItem{}).Scopes(db.SubtreeScope(p)).Pluck("id", &subIDs); res.Error != nil {
			return db.SqlError2Error(res.Error)
		}
		ids = append(ids, subIDs...)

		if res := tx.Where("item_id IN ?", ids).Delete(&db.ResourceLock{}); res.Error != nil {
			return db.SqlError2Error(res.Error)
		}
		res := tx.Where("id = ? AND version = ?", item.ID, item.Version).Delete(&db.StorageItem{})
		if res.Error != nil {
			return db.SqlError2Error(res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s changed concurrently", types.ErrConflict, id)
		}
		if len(subIDs) > 0 {
			if res = tx.Where("id IN ?", subIDs).Delete(&db.StorageItem{}); res.Error != nil {
				return db.SqlError2Error(res.Error)
			}
		}
		return nil
	})
}

func (s *Session) Lock(ctx context.Context, id types.ResourceID, principal string, until time.Time, token string) (string, error) {
	defer trace.StartRegion(ctx, "metastore.sql.Lock").End()
	p, err := s.path(id)
	if err != nil {
		return "", err
	}
	err = s.write(ctx, "lock", func(tx *gorm.DB) error {
		item, err := getItem(tx.Select("id"), p)
		if err != nil {
			return err
		}
		current, err := getLock(tx, item.ID)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return err
		}
		if current != nil && current.Until > time.Now().UnixNano() {
			if current.Principal != principal {
				return fmt.Errorf("%w: %s is held by %s", types.ErrLocked, id, current.Principal)
			}
			if token == "" {
				token = current.Token
			}
		}
		if token == "" {
			token = utils.NewLockToken()
		}
		lock := &db.ResourceLock{ItemID: item.ID, Principal: principal, Token: token, Until: until.UnixNano()}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"principal", "token", "until"}),
		}).Create(lock)
		return db.SqlError2Error(res.Error)
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *Session) Unlock(ctx context.Context, id types.ResourceID, token string) error {
	defer trace.StartRegion(ctx, "metastore.sql.Unlock").End()
	p, err := s.path(id)
	if err != nil {
		return err
	}
	return s.write(ctx, "unlock", func(tx *gorm.DB) error {
		item, err := getItem(tx.Select("id"), p)
		if err != nil {
			return err
		}
		current, err := getLock(tx, item.ID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return nil
			}
			return err
		}
		active := current.Until > time.Now().UnixNano()
		if active && token != "" && token != current.Token {
			return fmt.Errorf("%w: token does not match the lock on %s", types.ErrLocked, id)
		}
		return db.SqlError2Error(tx.Where("item_id = ?", item.ID).Delete(&db.ResourceLock{}).Error)
	})
}

func (s *Session) Locked(ctx context.Context, id types.ResourceID) (types.LockInfo, error) {
	defer trace.StartRegion(ctx, "metastore.sql.Locked").End()
	p, err := s.path(id)
	if err != nil {
		return types.LockInfo{}, err
	}
	reader := s.reader(ctx)
	item, err := getItem(reader.Select("id"), p)
	if err != nil {
		return types.LockInfo{}, err
	}
	current, err := getLock(s.reader(ctx), item.ID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return types.LockInfo{}, nil
		}
		return types.LockInfo{}, err
	}
	return types.LockInfo{
		Principal: current.Principal,
		Until:     time.Unix(0, current.Until),
		Token:     current.Token,
	}, nil
}

func (s *Session) Search(ctx context.Context, query types.SearchQuery) ([]*types.Resource, error) {
	defer trace.StartRegion(ctx, "metastore.sql.Search").End()
	defer logOperationLatency("search", time.Now())
	matcher, err := cel.Compile(query.Expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrBadRequest, err)
	}

	var (
		result  []*types.Resource
		scanner = newItemScanner(s.reader(ctx).Model(&db.StorageItem{}))
	)
	for {
		item, err := scanner.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		res := s.store.toResource(item)
		if !matcher.Match(res) {
			continue
		}
		result = append(result, res)
		if query.Limit > 0 && len(result) >= query.Limit {
			break
		}
	}
	return result, nil
}

// Prepare only checks that the session is still open. Conflicting writers are
// rejected earlier by the version-checked updates of updateVersioned, whose
// row locks are held until commit.
func (s *Session) Prepare(ctx context.Context) error {
	defer trace.StartRegion(ctx, "metastore.sql.Prepare").End()
	if s.closed {
		return types.ErrTxClosed
	}
	return nil
}

func (s *Session) Commit(ctx context.Context) error {
	defer trace.StartRegion(ctx, "metastore.sql.Commit").End()
	if s.closed {
		return types.ErrTxClosed
	}
	s.closed = true
	if s.tx == nil {
		return nil
	}
	if err := s.tx.Commit().Error; err != nil {
		logOperationError("commit", err)
		s.store.logger.Errorw("commit failed", "err", err)
		return types.StorageError(err)
	}
	return nil
}

func (s *Session) Rollback(ctx context.Context) error {
	defer trace.StartRegion(ctx, "metastore.sql.Rollback").End()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.tx == nil {
		return nil
	}
	if err := s.tx.Rollback().Error; err != nil {
		logOperationError("rollback", err)
		return types.StorageError(err)
	}
	return nil
}

func (s *Session) relocationPaths(from, to types.ResourceID) (string, string, error) {
	fromPath, err := s.path(from)
	if err != nil {
		return "", "", err
	}
	toPath, err := s.path(to)
	if err != nil {
		return "", "", err
	}
	if fromPath == db.RootPath || toPath == db.RootPath {
		return "", "", fmt.Errorf("%w: the root collection cannot be relocated", types.ErrBadRequest)
	}
	if toPath == fromPath || strings.HasPrefix(toPath, fromPath+"/") {
		return "", "", fmt.Errorf("%w: cannot relocate %s into itself", types.ErrBadRequest, from)
	}
	return fromPath, toPath, nil
}

func getItem(tx *gorm.DB, p string) (*db.StorageItem, error) {
	parent, name := db.SplitPath(p)
	item := &db.StorageItem{}
	res := tx.Where("parent_path = ? AND name = ?", parent, name).First(item)
	if res.Error != nil {
		return nil, db.SqlError2Error(res.Error)
	}
	return item, nil
}

func getLock(tx *gorm.DB, itemID int64) (*db.ResourceLock, error) {
	lock := &db.ResourceLock{}
	res := tx.Where("item_id = ?", itemID).First(lock)
	if res.Error != nil {
		return nil, db.SqlError2Error(res.Error)
	}
	return lock, nil
}

func checkParent(tx *gorm.DB, parentPath string) error {
	parent, err := getItem(tx.Select("id", "is_collection"), parentPath)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("%w: parent collection %s", types.ErrNotFound, parentPath)
		}
		return err
	}
	if !parent.IsCollection {
		return fmt.Errorf("%w: parent %s is not a collection", types.ErrConflict, parentPath)
	}
	return nil
}

func checkTarget(tx *gorm.DB, targetPath string) error {
	_, err := getItem(tx.Select("id"), targetPath)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s already exists", types.ErrConflict, targetPath)
	case !errors.Is(err, types.ErrNotFound):
		return err
	}
	parentPath, _ := db.SplitPath(targetPath)
	return checkParent(tx, parentPath)
}

func updateVersioned(tx *gorm.DB, item *db.StorageItem, updates map[string]interface{}) error {
	updates["version"] = item.Version + 1
	res := tx.Model(&db.StorageItem{}).Where("id = ? AND version = ?", item.ID, item.Version).Updates(updates)
	if res.Error != nil {
		return db.SqlError2Error(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: item %d changed concurrently", types.ErrConflict, item.ID)
	}
	return nil
}

func cloneItem(src *db.StorageItem, parentPath, name string, now int64) *db.StorageItem {
	props := make(db.JSONProperties, len(src.Properties))
	for ns, group := range src.Properties {
		cp := make(map[string]string, len(group))
		for k, v := range group {
			cp[k] = v
		}
		props[ns] = cp
	}
	return &db.StorageItem{
		ID:           utils.GenerateNewID(),
		ParentPath:   parentPath,
		Name:         name,
		IsCollection: src.IsCollection,
		Body:         src.Body,
		Properties:   props,
		ETag:         utils.NewETag(),
		Version:      1,
		CreatedAt:    now,
		ModifiedAt:   now,
	}
}
