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

package davserver

import (
	"context"
	"net/http/httptest"
	"os"
	"path"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/davstore/config"
	"github.com/basenana/davstore/pkg/storage"
	"github.com/basenana/davstore/pkg/types"
)

var _ = Describe("TestDAVServer", func() {
	var (
		ctx    = context.TODO()
		dir    string
		ts     *httptest.Server
		remote storage.Remote
	)

	BeforeEach(func() {
		dir = path.Join(workdir, "served")
		Expect(os.MkdirAll(path.Join(dir, "folder"), 0755)).Should(BeNil())
		Expect(os.WriteFile(path.Join(dir, "folder", "doc.txt"), []byte("served"), 0644)).Should(BeNil())

		srv, err := New(config.DAVServer{Enable: true, Port: 1, Dir: dir})
		Expect(err).Should(BeNil())
		ts = httptest.NewServer(srv.Handler())

		remote, err = storage.NewWebdavRemote(config.Remote{ServerURL: ts.URL})
		Expect(err).Should(BeNil())
	})

	AfterEach(func() {
		ts.Close()
	})

	It("serve the directory to the bridge remote", func() {
		entries, err := remote.List(ctx, "/folder")
		Expect(err).Should(BeNil())
		Expect(entries).Should(HaveLen(1))
		Expect(entries[0].Name).Should(Equal("doc.txt"))
		Expect(entries[0].IsCollection).Should(BeFalse())

		data, err := remote.Read(ctx, "/folder/doc.txt")
		Expect(err).Should(BeNil())
		Expect(string(data)).Should(Equal("served"))

		_, err = remote.Stat(ctx, "/folder/missing")
		Expect(err).Should(MatchError(types.ErrNotFound))
	})

	It("refuse a missing directory", func() {
		_, err := New(config.DAVServer{Enable: true, Port: 1, Dir: path.Join(workdir, "nothing")})
		Expect(err).ShouldNot(BeNil())
		_, err = New(config.DAVServer{Enable: true, Dir: dir})
		Expect(err).ShouldNot(BeNil())
	})
})
