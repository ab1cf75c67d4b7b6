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

package config

import (
	"encoding/json"
	"os"
	"path"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("TestVerify", func() {
	var workdir string

	BeforeEach(func() {
		var err error
		workdir, err = os.MkdirTemp(os.TempDir(), "davstore-config-")
		Expect(err).Should(BeNil())
	})
	AfterEach(func() {
		_ = os.RemoveAll(workdir)
	})

	Context("default config", func() {
		It("should pass verify and fill defaults", func() {
			cfg, err := DefaultConfig(workdir)
			Expect(err).Should(BeNil())
			cfg.Cache.Size = 0
			cfg.Prefix = "http://example.org/cms"
			Expect(Verify(&cfg)).Should(BeNil())
			Expect(cfg.Cache.Size).Should(Equal(DefaultCacheSize))
			Expect(cfg.Prefix).Should(Equal("http://example.org/cms/"))
		})
	})

	Context("broken configs", func() {
		It("should reject unknown backend type", func() {
			cfg := Config{Backend: Backend{Type: "s3"}}
			Expect(Verify(&cfg)).ShouldNot(BeNil())
		})
		It("should reject a missing filesystem root", func() {
			cfg := Config{Backend: Backend{Type: FilesystemBackend, Filesystem: &Filesystem{Root: path.Join(workdir, "missing")}}}
			Expect(Verify(&cfg)).ShouldNot(BeNil())
		})
		It("should require remote for bridge", func() {
			cfg := Config{Backend: Backend{Type: BridgeBackend, Meta: &Meta{Type: MemoryMeta}}}
			Expect(Verify(&cfg)).ShouldNot(BeNil())
		})
		It("should require sqlite path", func() {
			cfg := Config{Backend: Backend{Type: RelationalBackend, Meta: &Meta{Type: SqliteMeta}}}
			Expect(Verify(&cfg)).ShouldNot(BeNil())
		})
		It("should reject a malformed remote url", func() {
			cfg := Config{Backend: Backend{
				Type:   BridgeBackend,
				Meta:   &Meta{Type: MemoryMeta},
				Remote: &Remote{ServerURL: "not a url"},
			}}
			Expect(Verify(&cfg)).ShouldNot(BeNil())
		})
	})

	Context("load from file", func() {
		It("should load and verify", func() {
			raw, err := json.Marshal(Config{
				Backend: Backend{Type: FilesystemBackend, Filesystem: &Filesystem{Root: workdir}},
			})
			Expect(err).Should(BeNil())
			FilePath = LocalConfigFilePath(workdir)
			Expect(os.WriteFile(FilePath, raw, 0644)).Should(BeNil())

			cfg, err := NewConfigLoader().GetConfig()
			Expect(err).Should(BeNil())
			Expect(cfg.Prefix).Should(Equal(DefaultIDPrefix))
			Expect(cfg.Backend.Filesystem.Canonicalize()).Should(BeTrue())
		})
		It("should reject unknown fields", func() {
			target := path.Join(workdir, "unknown.json")
			Expect(os.WriteFile(target, []byte(`{"backend":{"type":"filesystem"},"bogus":1}`), 0644)).Should(BeNil())
			_, err := NewFileLoader(target).GetConfig()
			Expect(err).ShouldNot(BeNil())
		})
		It("should fail on missing file", func() {
			_, err := NewFileLoader(path.Join(workdir, "absent.json")).GetConfig()
			Expect(err).ShouldNot(BeNil())
		})
	})
})
