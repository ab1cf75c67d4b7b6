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

package cel

import (
	"github.com/basenana/davstore/pkg/types"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("TestMatcher", func() {
	res := types.NewResource("http://xml.zeit.de/2024/photo.jpg", "photo.jpg", types.Properties{
		types.ContentTypeProperty: "image/jpeg",
		types.KeywordsProperty:    "politics",
	}, []byte("x"))

	It("should match on plain variables", func() {
		m, err := Compile(`resource_type == "image" && name.endsWith(".jpg")`)
		Expect(err).Should(BeNil())
		Expect(m.Match(res)).Should(BeTrue())
	})
	It("should keep the builtin type function", func() {
		m, err := Compile(`type(name) == string && resource_type != "collection"`)
		Expect(err).Should(BeNil())
		Expect(m.Match(res)).Should(BeTrue())
	})
	It("should look up namespaced properties", func() {
		m, err := Compile(`props.property("keywords", "http://namespaces.zeit.de/CMS/tagging") == "politics"`)
		Expect(err).Should(BeNil())
		Expect(m.Match(res)).Should(BeTrue())

		m, err = Compile(`props.property("missing", "DAV:") == ""`)
		Expect(err).Should(BeNil())
		Expect(m.Match(res)).Should(BeTrue())
	})
	It("should treat evaluation errors as a miss", func() {
		m, err := Compile(`props["nope"]["nope"] == "x"`)
		Expect(err).Should(BeNil())
		Expect(m.Match(res)).Should(BeFalse())
	})
	It("should reject non-bool and broken expressions", func() {
		_, err := Compile(`name`)
		Expect(err).ShouldNot(BeNil())
		_, err = Compile(`name ==`)
		Expect(err).ShouldNot(BeNil())
	})
})
