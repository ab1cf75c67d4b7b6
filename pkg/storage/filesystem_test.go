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
	"net/http"
	"os"
	"path"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/davstore/config"
	"github.com/basenana/davstore/pkg/backend"
	"github.com/basenana/davstore/pkg/types"
)

var _ = Describe("TestParseMetaProperties", func() {
	It("read attributes and ranked tags from head", func() {
		props, err := ParseMetaProperties([]byte(articleFixture))
		Expect(err).Should(BeNil())
		Expect(props.Value(types.PropertyKey{Name: "author", Namespace: types.DocumentNamespace})).Should(Equal("Jane Doe"))
		Expect(props.Value(types.PropertyKey{Name: "year", Namespace: types.DocumentNamespace})).Should(Equal("2024"))

		keywords := props.Value(types.KeywordsProperty)
		Expect(keywords).Should(HavePrefix(rankedTagsOpen))
		Expect(keywords).Should(ContainSubstring("<rankedTags><tag>Berlin</tag></rankedTags>"))
		Expect(keywords).Should(HaveSuffix("</tag:rankedTags>"))
	})
	It("ignore attributes outside head", func() {
		props, err := ParseMetaProperties([]byte(`<a><body><attribute ns="x" name="y">z</attribute></body></a>`))
		Expect(err).Should(BeNil())
		Expect(props).Should(BeEmpty())
	})
	It("keep empty attribute values", func() {
		props, err := ParseMetaProperties([]byte(`<a><head><attribute ns="x" name="y"/></head></a>`))
		Expect(err).Should(BeNil())
		v, ok := props.Get(types.PropertyKey{Name: "y", Namespace: "x"})
		Expect(ok).Should(BeTrue())
		Expect(v).Should(Equal(""))
	})
})

var _ = Describe("TestFilesystemBackend", func() {
	var (
		ctx  = context.TODO()
		ns   = types.NewNamespace("")
		root string
		sess backend.Session
	)

	BeforeEach(func() {
		root = path.Join(workdir, "filesystem")
		writeFixture(root, "article", articleFixture)
		writeFixture(root, "folder/note.txt", "hello")
		writeFixture(root, "folder/note.txt.meta", noteMetaFixture)
		writeFixture(root, "folder/photo.png", pngFixture)
		writeFixture(root, "folder/orphan.meta", "<meta/>")
		writeFixture(root, "folder/.hidden", "x")
		writeFixture(root, "folder/sub/leaf", "leaf")

		fs, err := NewFilesystem(ns, config.Filesystem{Root: root})
		Expect(err).Should(BeNil())
		sess, err = fs.Begin(ctx)
		Expect(err).Should(BeNil())
	})

	Context("read resources", func() {
		It("get a file with inline properties", func() {
			res, err := sess.Get(ctx, ns.ID("article", false))
			Expect(err).Should(BeNil())
			Expect(res.Name).Should(Equal("article"))
			Expect(res.Type).Should(Equal(types.UnknownType))
			Expect(string(res.Body)).Should(Equal(articleFixture))
			Expect(res.Properties.Value(types.PropertyKey{Name: "author", Namespace: types.DocumentNamespace})).Should(Equal("Jane Doe"))
		})
		It("prefer the sidecar properties", func() {
			res, err := sess.Get(ctx, ns.ID("folder/note.txt", false))
			Expect(err).Should(BeNil())
			Expect(res.Type).Should(Equal(types.ResourceType("text")))
			Expect(res.ContentType).Should(Equal("text/plain"))
			Expect(string(res.Body)).Should(Equal("hello"))
		})
		It("sniff images without a type property", func() {
			res, err := sess.Get(ctx, ns.ID("folder/photo.png", false))
			Expect(err).Should(BeNil())
			Expect(res.Type).Should(Equal(types.ImageType))
		})
		It("get a directory as collection", func() {
			res, err := sess.Get(ctx, ns.ID("folder", true))
			Expect(err).Should(BeNil())
			Expect(res.Type).Should(Equal(types.CollectionType))
			Expect(res.ContentType).Should(Equal(types.CollectionContentType))
			Expect(res.Body).Should(BeEmpty())
		})
		It("report collections", func() {
			isDir, err := sess.IsCollection(ctx, ns.ID("folder", false))
			Expect(err).Should(BeNil())
			Expect(isDir).Should(BeTrue())
			isDir, err = sess.IsCollection(ctx, ns.ID("missing", false))
			Expect(err).Should(BeNil())
			Expect(isDir).Should(BeFalse())
		})
		It("missing resource should be not found", func() {
			_, err := sess.Get(ctx, ns.ID("folder/missing", false))
			Expect(err).Should(Equal(types.ErrNotFound))
		})
		It("serve unreadable bodies as empty", func() {
			unreadable := map[string]bool{
				path.Join(root, "article"):         true,
				path.Join(root, "folder/note.txt"): true,
			}
			readFile = func(name string) ([]byte, error) {
				if unreadable[name] {
					return nil, errors.New("input/output error")
				}
				return os.ReadFile(name)
			}
			defer func() { readFile = os.ReadFile }()

			res, err := sess.Get(ctx, ns.ID("folder/note.txt", false))
			Expect(err).Should(BeNil())
			Expect(res.Body).Should(BeEmpty())
			Expect(res.ContentType).Should(Equal("text/plain"))

			res, err = sess.Get(ctx, ns.ID("article", false))
			Expect(err).Should(BeNil())
			Expect(res.Body).Should(BeEmpty())
			Expect(res.Type).Should(Equal(types.UnknownType))
		})
		It("foreign id should be bad request", func() {
			_, err := sess.Get(ctx, "http://example.com/article")
			Expect(err).Should(MatchError(types.ErrBadRequest))
		})
	})

	Context("list children", func() {
		It("hide dotfiles and sidecars", func() {
			children, err := sess.ListChildren(ctx, ns.ID("folder", true))
			Expect(err).Should(BeNil())
			Expect(children).Should(Equal([]types.Child{
				{Name: "note.txt", ID: ns.ID("folder/note.txt", false)},
				{Name: "orphan.meta", ID: ns.ID("folder/orphan.meta", false)},
				{Name: "photo.png", ID: ns.ID("folder/photo.png", false)},
				{Name: "sub", ID: ns.ID("folder/sub", true)},
			}))
		})
		It("list the root", func() {
			children, err := sess.ListChildren(ctx, ns.Root())
			Expect(err).Should(BeNil())
			Expect(children).Should(ContainElement(types.Child{Name: "folder", ID: ns.ID("folder", true)}))
			Expect(children).Should(ContainElement(types.Child{Name: "article", ID: ns.ID("article", false)}))
		})
		It("list a leaf should be empty", func() {
			children, err := sess.ListChildren(ctx, ns.ID("article", false))
			Expect(err).Should(BeNil())
			Expect(children).Should(BeEmpty())
		})
		It("list missing should be not found", func() {
			_, err := sess.ListChildren(ctx, ns.ID("nothing", true))
			Expect(err).Should(Equal(types.ErrNotFound))
		})
	})

	Context("read only", func() {
		It("reject mutations", func() {
			id := ns.ID("article", false)
			Expect(sess.Add(ctx, types.NewResource(id, "article", nil, nil), false)).Should(Equal(types.ErrNotImplemented))
			Expect(sess.ChangeProperties(ctx, id, types.Properties{})).Should(Equal(types.ErrNotImplemented))
			Expect(sess.Move(ctx, id, ns.ID("other", false))).Should(Equal(types.ErrNotImplemented))
			Expect(sess.Copy(ctx, id, ns.ID("other", false))).Should(Equal(types.ErrNotImplemented))
			Expect(sess.Delete(ctx, id)).Should(Equal(types.ErrNotImplemented))
			_, err := sess.Lock(ctx, id, "zope.user", time.Now().Add(time.Hour), "")
			Expect(err).Should(Equal(types.ErrNotImplemented))
			Expect(sess.Unlock(ctx, id, "")).Should(Equal(types.ErrNotImplemented))
		})
		It("refuse lock queries", func() {
			info, err := sess.Locked(ctx, ns.ID("article", false))
			Expect(err).Should(Equal(types.ErrNotImplemented))
			Expect(info.Token).Should(BeEmpty())
		})
		It("degrade search to empty", func() {
			result, err := sess.Search(ctx, types.SearchQuery{Expression: "true"})
			Expect(err).Should(BeNil())
			Expect(result).Should(BeEmpty())
		})
	})

	Context("options", func() {
		It("keep directory ids without slash when canonicalization is off", func() {
			off := false
			fs, err := NewFilesystem(ns, config.Filesystem{Root: root, CanonicalizeDirectories: &off})
			Expect(err).Should(BeNil())
			Expect(fs.CanonicalizeDirectories()).Should(BeFalse())

			s, err := fs.Begin(ctx)
			Expect(err).Should(BeNil())
			children, err := s.ListChildren(ctx, ns.ID("folder", true))
			Expect(err).Should(BeNil())
			Expect(children).Should(ContainElement(types.Child{Name: "sub", ID: ns.ID("folder/sub", false)}))
		})
		It("set last modified from mtime", func() {
			fs, err := NewFilesystem(ns, config.Filesystem{Root: root, SetLastModifiedProperty: true})
			Expect(err).Should(BeNil())
			s, err := fs.Begin(ctx)
			Expect(err).Should(BeNil())

			res, err := s.Get(ctx, ns.ID("article", false))
			Expect(err).Should(BeNil())
			_, err = http.ParseTime(res.Properties.Value(types.LastModifiedProperty))
			Expect(err).Should(BeNil())
		})
		It("refuse a missing root", func() {
			_, err := NewFilesystem(ns, config.Filesystem{Root: path.Join(root, "nothing")})
			Expect(err).ShouldNot(BeNil())
		})
	})
})
