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
	"path"
	"time"

	"gorm.io/gorm"

	"github.com/basenana/davstore/config"
	"github.com/basenana/davstore/pkg/types"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const testPrefix = "http://xml.zeit.de/"

var testNS = types.NewNamespace(testPrefix)

func buildNewSqliteStore(dbName string) *SQLStore {
	result, err := New(testNS, config.Meta{
		Type: SqliteMeta,
		Path: path.Join(workdir, dbName),
	})
	Expect(err).Should(BeNil())
	return result
}

// inSession runs fn in a fresh session and commits it.
func inSession(store *SQLStore, fn func(s *Session)) {
	ctx := context.TODO()
	s := store.BeginSession(ctx)
	fn(s)
	Expect(s.Prepare(ctx)).Should(BeNil())
	Expect(s.Commit(ctx)).Should(BeNil())
}

func newCollection(id string) *types.Resource {
	return &types.Resource{ID: types.ResourceID(id), Type: types.CollectionType, Properties: types.Properties{}}
}

func newLeaf(id, body string, props types.Properties) *types.Resource {
	if props == nil {
		props = types.Properties{}
	}
	return &types.Resource{ID: types.ResourceID(id), Type: "article", Properties: props, Body: []byte(body)}
}

var _ = Describe("TestSqliteResourceOperation", func() {
	var (
		store *SQLStore
		ctx   = context.TODO()
	)

	BeforeEach(func() {
		if store == nil {
			store = buildNewSqliteStore("test_resource.db")
		}
	})

	Context("bootstrap", func() {
		It("should have a root collection", func() {
			inSession(store, func(s *Session) {
				root, err := s.Get(ctx, testPrefix)
				Expect(err).Should(BeNil())
				Expect(root.Type).Should(Equal(types.CollectionType))
				Expect(root.ContentType).Should(Equal(types.CollectionContentType))

				isColl, err := s.IsCollection(ctx, "http://xml.zeit.de")
				Expect(err).Should(BeNil())
				Expect(isColl).Should(BeTrue())
			})
		})
	})

	Context("add then get", func() {
		It("should round trip properties and body", func() {
			key := types.PropertyKey{Name: "author", Namespace: "http://namespaces.zeit.de/CMS/document"}
			inSession(store, func(s *Session) {
				Expect(s.Add(ctx, newCollection(testPrefix+"x/"), true)).Should(BeNil())
				Expect(s.Add(ctx, newLeaf(testPrefix+"x/y", "hi", types.Properties{key: "jane"}), true)).Should(BeNil())

				children, err := s.ListChildren(ctx, testPrefix+"x/")
				Expect(err).Should(BeNil())
				Expect(children).Should(Equal([]types.Child{{Name: "y", ID: testPrefix + "x/y"}}))
			})
			inSession(store, func(s *Session) {
				res, err := s.Get(ctx, testPrefix+"x/y")
				Expect(err).Should(BeNil())
				Expect(string(res.Body)).Should(Equal("hi"))
				Expect(res.Properties[key]).Should(Equal("jane"))
				Expect(string(res.Type)).Should(Equal("article"))
				Expect(res.ETag).ShouldNot(BeEmpty())

				isColl, err := s.IsCollection(ctx, testPrefix+"x/y")
				Expect(err).Should(BeNil())
				Expect(isColl).Should(BeFalse())
			})
		})
		It("should refuse a missing parent", func() {
			s := store.BeginSession(ctx)
			err := s.Add(ctx, newLeaf(testPrefix+"nope/y", "hi", nil), true)
			Expect(errors.Is(err, types.ErrNotFound)).Should(BeTrue())
			Expect(s.Rollback(ctx)).Should(BeNil())
		})
		It("should reject foreign ids before touching the database", func() {
			s := store.BeginSession(ctx)
			_, err := s.Get(ctx, "http://example.com/x")
			Expect(errors.Is(err, types.ErrBadRequest)).Should(BeTrue())
			Expect(s.tx).Should(BeNil())
		})
	})

	Context("etag verification", func() {
		It("should raise conflict for a stale etag", func() {
			inSession(store, func(s *Session) {
				Expect(s.Add(ctx, newLeaf(testPrefix+"etag", "v1", nil), true)).Should(BeNil())
			})
			var stale string
			inSession(store, func(s *Session) {
				res, err := s.Get(ctx, testPrefix+"etag")
				Expect(err).Should(BeNil())
				stale = res.ETag

				update := newLeaf(testPrefix+"etag", "v2", nil)
				update.ETag = stale
				Expect(s.Add(ctx, update, true)).Should(BeNil())
			})
			inSession(store, func(s *Session) {
				update := newLeaf(testPrefix+"etag", "v3", nil)
				update.ETag = stale
				err := s.Add(ctx, update, true)
				Expect(errors.Is(err, types.ErrConflict)).Should(BeTrue())

				Expect(s.Add(ctx, update, false)).Should(BeNil())
				res, err := s.Get(ctx, testPrefix+"etag")
				Expect(err).Should(BeNil())
				Expect(string(res.Body)).Should(Equal("v3"))
			})
		})
	})

	Context("change properties", func() {
		It("should merge and drop tombstoned keys", func() {
			a := types.PropertyKey{Name: "a", Namespace: "ns"}
			b := types.PropertyKey{Name: "b", Namespace: "ns"}
			c := types.PropertyKey{Name: "c", Namespace: "other"}
			inSession(store, func(s *Session) {
				Expect(s.Add(ctx, newLeaf(testPrefix+"props", "", types.Properties{a: "1", b: "2"}), true)).Should(BeNil())
				Expect(s.ChangeProperties(ctx, testPrefix+"props", types.Properties{
					b: types.DeleteProperty,
					c: "3",
				})).Should(BeNil())
			})
			inSession(store, func(s *Session) {
				res, err := s.Get(ctx, testPrefix+"props")
				Expect(err).Should(BeNil())
				Expect(res.Properties[a]).Should(Equal("1"))
				Expect(res.Properties[c]).Should(Equal("3"))
				_, ok := res.Properties[b]
				Expect(ok).Should(BeFalse())
			})
		})
	})

	Context("move and copy", func() {
		It("should relocate a subtree", func() {
			inSession(store, func(s *Session) {
				Expect(s.Add(ctx, newCollection(testPrefix+"src/"), true)).Should(BeNil())
				Expect(s.Add(ctx, newCollection(testPrefix+"src/sub/"), true)).Should(BeNil())
				Expect(s.Add(ctx, newLeaf(testPrefix+"src/sub/doc", "body", nil), true)).Should(BeNil())
				Expect(s.Move(ctx, testPrefix+"src/", testPrefix+"dst/")).Should(BeNil())
			})
			inSession(store, func(s *Session) {
				_, err := s.Get(ctx, testPrefix+"src/")
				Expect(err).Should(Equal(types.ErrNotFound))
				res, err := s.Get(ctx, testPrefix+"dst/sub/doc")
				Expect(err).Should(BeNil())
				Expect(string(res.Body)).Should(Equal("body"))

				children, err := s.ListChildren(ctx, testPrefix+"dst/")
				Expect(err).Should(BeNil())
				Expect(children).Should(Equal([]types.Child{{Name: "sub", ID: testPrefix + "dst/sub/"}}))
			})
		})
		It("should duplicate a subtree", func() {
			inSession(store, func(s *Session) {
				Expect(s.Copy(ctx, testPrefix+"dst/", testPrefix+"dup/")).Should(BeNil())
			})
			inSession(store, func(s *Session) {
				orig, err := s.Get(ctx, testPrefix+"dst/sub/doc")
				Expect(err).Should(BeNil())
				dup, err := s.Get(ctx, testPrefix+"dup/sub/doc")
				Expect(err).Should(BeNil())
				Expect(dup.Body).Should(Equal(orig.Body))
				Expect(dup.ETag).ShouldNot(Equal(orig.ETag))
			})
		})
		It("should refuse existing targets and self nesting", func() {
			s := store.BeginSession(ctx)
			defer s.Rollback(ctx)
			Expect(errors.Is(s.Move(ctx, testPrefix+"dst/", testPrefix+"dup/"), types.ErrConflict)).Should(BeTrue())
			Expect(errors.Is(s.Copy(ctx, testPrefix+"dst/", testPrefix+"dst/sub/again/"), types.ErrBadRequest)).Should(BeTrue())
			Expect(errors.Is(s.Move(ctx, testPrefix+"missing", testPrefix+"other"), types.ErrNotFound)).Should(BeTrue())
		})
	})

	Context("delete", func() {
		It("should cascade and fail on repeat", func() {
			inSession(store, func(s *Session) {
				Expect(s.Delete(ctx, testPrefix+"dup/")).Should(BeNil())
				_, err := s.Get(ctx, testPrefix+"dup/sub/doc")
				Expect(err).Should(Equal(types.ErrNotFound))
			})
			s := store.BeginSession(ctx)
			defer s.Rollback(ctx)
			Expect(errors.Is(s.Delete(ctx, testPrefix+"dup/"), types.ErrNotFound)).Should(BeTrue())
		})
	})
})

var _ = Describe("TestSqliteLockOperation", func() {
	var (
		store *SQLStore
		ctx   = context.TODO()
		id    = types.ResourceID(testPrefix + "locked")
	)

	BeforeEach(func() {
		if store == nil {
			store = buildNewSqliteStore("test_lock.db")
		}
	})

	It("should lock, refresh and unlock", func() {
		var token string
		inSession(store, func(s *Session) {
			Expect(s.Add(ctx, newLeaf(string(id), "", nil), true)).Should(BeNil())

			var err error
			token, err = s.Lock(ctx, id, "alice", time.Now().Add(time.Hour), "")
			Expect(err).Should(BeNil())
			Expect(token).ShouldNot(BeEmpty())
		})
		inSession(store, func(s *Session) {
			info, err := s.Locked(ctx, id)
			Expect(err).Should(BeNil())
			Expect(info.Principal).Should(Equal("alice"))
			Expect(info.Token).Should(Equal(token))

			refreshed, err := s.Lock(ctx, id, "alice", time.Now().Add(2*time.Hour), "")
			Expect(err).Should(BeNil())
			Expect(refreshed).Should(Equal(token))

			_, err = s.Lock(ctx, id, "bob", time.Now().Add(time.Hour), "")
			Expect(errors.Is(err, types.ErrLocked)).Should(BeTrue())

			Expect(errors.Is(s.Unlock(ctx, id, "wrong-token"), types.ErrConflict)).Should(BeTrue())
			Expect(s.Unlock(ctx, id, token)).Should(BeNil())
		})
		inSession(store, func(s *Session) {
			info, err := s.Locked(ctx, id)
			Expect(err).Should(BeNil())
			Expect(info.Token).Should(BeEmpty())
			Expect(s.Unlock(ctx, id, "")).Should(BeNil())
		})
	})

	It("should let another principal take an expired lock", func() {
		inSession(store, func(s *Session) {
			_, err := s.Lock(ctx, id, "alice", time.Now().Add(-time.Minute), "")
			Expect(err).Should(BeNil())
			token, err := s.Lock(ctx, id, "bob", time.Now().Add(time.Hour), "")
			Expect(err).Should(BeNil())
			info, err := s.Locked(ctx, id)
			Expect(err).Should(BeNil())
			Expect(info.Principal).Should(Equal("bob"))
			Expect(info.Token).Should(Equal(token))
		})
	})

	It("should drop locks with their resource", func() {
		inSession(store, func(s *Session) {
			Expect(s.Delete(ctx, id)).Should(BeNil())
			Expect(s.Add(ctx, newLeaf(string(id), "", nil), true)).Should(BeNil())
			info, err := s.Locked(ctx, id)
			Expect(err).Should(BeNil())
			Expect(info.Token).Should(BeEmpty())
		})
	})
})

var _ = Describe("TestSqliteSessionOperation", func() {
	var (
		store *SQLStore
		ctx   = context.TODO()
	)

	BeforeEach(func() {
		if store == nil {
			store = buildNewSqliteStore("test_session.db")
		}
	})

	It("should discard staged writes on rollback", func() {
		s := store.BeginSession(ctx)
		Expect(s.Add(ctx, newLeaf(testPrefix+"ghost", "boo", nil), true)).Should(BeNil())
		_, err := s.Get(ctx, testPrefix+"ghost")
		Expect(err).Should(BeNil())
		Expect(s.Rollback(ctx)).Should(BeNil())

		inSession(store, func(s *Session) {
			_, err := s.Get(ctx, testPrefix+"ghost")
			Expect(err).Should(Equal(types.ErrNotFound))
		})
	})

	It("should refuse an update based on a stale version", func() {
		inSession(store, func(s *Session) {
			Expect(s.Add(ctx, newLeaf(testPrefix+"versioned", "v1", nil), true)).Should(BeNil())
		})
		s := store.BeginSession(ctx)
		p, err := s.path(testPrefix + "versioned")
		Expect(err).Should(BeNil())
		err = s.write(ctx, "stale_update", func(tx *gorm.DB) error {
			item, err := getItem(tx, p)
			if err != nil {
				return err
			}
			stale := *item
			stale.Version--
			return updateVersioned(tx, &stale, map[string]interface{}{"body": []byte("lost")})
		})
		Expect(errors.Is(err, types.ErrConflict)).Should(BeTrue())

		Expect(s.Prepare(ctx)).Should(BeNil())
		Expect(s.Rollback(ctx)).Should(BeNil())
		Expect(s.Prepare(ctx)).Should(Equal(types.ErrTxClosed))

		inSession(store, func(s *Session) {
			res, err := s.Get(ctx, testPrefix+"versioned")
			Expect(err).Should(BeNil())
			Expect(string(res.Body)).Should(Equal("v1"))
		})
	})

	It("should refuse writes after commit", func() {
		s := store.BeginSession(ctx)
		Expect(s.Commit(ctx)).Should(BeNil())
		Expect(s.Add(ctx, newLeaf(testPrefix+"late", "", nil), true)).Should(Equal(types.ErrTxClosed))
		Expect(s.Commit(ctx)).Should(Equal(types.ErrTxClosed))
	})

	It("should search with CEL", func() {
		inSession(store, func(s *Session) {
			Expect(s.Add(ctx, newLeaf(testPrefix+"pic.png", "", types.Properties{types.ContentTypeProperty: "image/png"}), true)).Should(BeNil())
			Expect(s.Add(ctx, &types.Resource{ID: testPrefix + "raw.png", Properties: types.Properties{types.ContentTypeProperty: "image/png"}}, true)).Should(BeNil())
		})
		inSession(store, func(s *Session) {
			found, err := s.Search(ctx, types.SearchQuery{Expression: `content_type == "image/png"`})
			Expect(err).Should(BeNil())
			Expect(found).Should(HaveLen(2))

			found, err = s.Search(ctx, types.SearchQuery{Expression: `resource_type == "image"`})
			Expect(err).Should(BeNil())
			Expect(found).Should(HaveLen(1))
			Expect(found[0].ID).Should(Equal(types.ResourceID(testPrefix + "raw.png")))

			_, err = s.Search(ctx, types.SearchQuery{Expression: `resource_type ==`})
			Expect(errors.Is(err, types.ErrBadRequest)).Should(BeTrue())
		})
	})

	It("should page through more rows than one fetch holds", func() {
		inSession(store, func(s *Session) {
			for i := 0; i < itemFetchPageSize+50; i++ {
				Expect(s.Add(ctx, newLeaf(fmt.Sprintf("%sbulk-%03d", testPrefix, i), "", nil), true)).Should(BeNil())
			}
		})
		inSession(store, func(s *Session) {
			found, err := s.Search(ctx, types.SearchQuery{Expression: `name.startsWith("bulk-")`})
			Expect(err).Should(BeNil())
			Expect(found).Should(HaveLen(itemFetchPageSize + 50))

			found, err = s.Search(ctx, types.SearchQuery{Expression: `name.startsWith("bulk-")`, Limit: 7})
			Expect(err).Should(BeNil())
			Expect(found).Should(HaveLen(7))
		})
	})
})
