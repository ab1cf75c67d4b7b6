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

package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/davstore/cmd/apps/apis/apitool"
	"github.com/basenana/davstore/config"
	"github.com/basenana/davstore/pkg/types"
)

type testResponse struct {
	Status int             `json:"status"`
	Error  *apitool.Error  `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func doRequest(method, target, principal string, body interface{}) (int, testResponse) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).Should(BeNil())
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, target, reader)
	Expect(err).Should(BeNil())
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set(apitool.PrincipalHeader, principal)
	}

	w := httptest.NewRecorder()
	testRouter.ServeHTTP(w, req)

	var resp testResponse
	Expect(json.Unmarshal(w.Body.Bytes(), &resp)).Should(BeNil())
	return w.Code, resp
}

func withID(target, id string) string {
	return target + "?id=" + url.QueryEscape(id)
}

var _ = Describe("REST V1 Resource API", func() {
	BeforeEach(func() {
		doRequest(http.MethodDelete, withID("/api/v1/resource", "/rest"), "", nil)
		code, _ := doRequest(http.MethodPut, "/api/v1/resource", "", PutResourceRequest{ID: "/rest/", Collection: true})
		Expect(code).Should(Equal(http.StatusOK))
	})

	It("should create and read a resource", func() {
		code, resp := doRequest(http.MethodPut, "/api/v1/resource", "", PutResourceRequest{
			ID:          "/rest/doc",
			ContentType: "text/plain",
			Properties:  map[string]map[string]string{types.DocumentNamespace: {"author": "Jane"}},
			Body:        []byte("hello"),
		})
		Expect(code).Should(Equal(http.StatusOK))
		var created ResourceInfo
		Expect(json.Unmarshal(resp.Data, &created)).Should(BeNil())
		Expect(created.ID).Should(Equal(config.DefaultIDPrefix + "rest/doc"))
		Expect(created.ETag).ShouldNot(BeEmpty())

		code, resp = doRequest(http.MethodGet, withID("/api/v1/resource", "/rest/doc")+"&body=true", "", nil)
		Expect(code).Should(Equal(http.StatusOK))
		var got ResourceInfo
		Expect(json.Unmarshal(resp.Data, &got)).Should(BeNil())
		Expect(string(got.Body)).Should(Equal("hello"))
		Expect(got.ContentType).Should(Equal("text/plain"))
		Expect(got.Properties[types.DocumentNamespace]["author"]).Should(Equal("Jane"))
	})

	It("should list children and canonicalize collections", func() {
		code, _ := doRequest(http.MethodPut, "/api/v1/resource", "", PutResourceRequest{ID: "/rest/sub", Collection: true})
		Expect(code).Should(Equal(http.StatusOK))

		code, resp := doRequest(http.MethodGet, withID("/api/v1/children", "/rest"), "", nil)
		Expect(code).Should(Equal(http.StatusOK))
		var children []ChildInfo
		Expect(json.Unmarshal(resp.Data, &children)).Should(BeNil())
		Expect(children).Should(Equal([]ChildInfo{{Name: "sub", ID: config.DefaultIDPrefix + "rest/sub/"}}))

		code, resp = doRequest(http.MethodGet, withID("/api/v1/canonical", "/rest/sub"), "", nil)
		Expect(code).Should(Equal(http.StatusOK))
		var canonical CanonicalID
		Expect(json.Unmarshal(resp.Data, &canonical)).Should(BeNil())
		Expect(canonical.ID).Should(Equal(config.DefaultIDPrefix + "rest/sub/"))
	})

	It("should map store errors to status codes", func() {
		code, resp := doRequest(http.MethodGet, withID("/api/v1/resource", "/rest/missing"), "", nil)
		Expect(code).Should(Equal(http.StatusNotFound))
		Expect(resp.Error.Code).Should(Equal(apitool.ApiNotFoundError))

		code, _ = doRequest(http.MethodGet, withID("/api/v1/resource", "http://example.com/doc"), "", nil)
		Expect(code).Should(Equal(http.StatusBadRequest))

		code, _ = doRequest(http.MethodGet, "/api/v1/resource", "", nil)
		Expect(code).Should(Equal(http.StatusBadRequest))

		code, _ = doRequest(http.MethodPost, "/api/v1/search", "", SearchRequest{Expression: "name =="})
		Expect(code).Should(Equal(http.StatusBadRequest))
	})

	It("should reject stale etags", func() {
		code, resp := doRequest(http.MethodPut, "/api/v1/resource", "", PutResourceRequest{ID: "/rest/doc", Body: []byte("v1")})
		Expect(code).Should(Equal(http.StatusOK))
		var created ResourceInfo
		Expect(json.Unmarshal(resp.Data, &created)).Should(BeNil())

		code, _ = doRequest(http.MethodPut, "/api/v1/resource", "", PutResourceRequest{ID: "/rest/doc", Body: []byte("v2"), ETag: created.ETag})
		Expect(code).Should(Equal(http.StatusOK))
		code, resp = doRequest(http.MethodPut, "/api/v1/resource", "", PutResourceRequest{ID: "/rest/doc", Body: []byte("v3"), ETag: created.ETag})
		Expect(code).Should(Equal(http.StatusConflict))
		Expect(resp.Error.Code).Should(Equal(apitool.ApiConflictError))

		skip := false
		code, _ = doRequest(http.MethodPut, "/api/v1/resource", "", PutResourceRequest{ID: "/rest/doc", Body: []byte("v3"), ETag: created.ETag, VerifyETag: &skip})
		Expect(code).Should(Equal(http.StatusOK))
	})

	It("should change properties and relocate", func() {
		code, _ := doRequest(http.MethodPut, "/api/v1/resource", "", PutResourceRequest{
			ID:         "/rest/doc",
			Properties: map[string]map[string]string{types.DocumentNamespace: {"author": "Jane", "year": "2009"}},
		})
		Expect(code).Should(Equal(http.StatusOK))

		code, resp := doRequest(http.MethodPatch, "/api/v1/resource/properties", "", ChangePropertiesRequest{
			ID:     "/rest/doc",
			Set:    map[string]map[string]string{types.DocumentNamespace: {"author": "John"}},
			Remove: []types.PropertyKey{{Name: "year", Namespace: types.DocumentNamespace}},
		})
		Expect(code).Should(Equal(http.StatusOK))
		var changed ResourceInfo
		Expect(json.Unmarshal(resp.Data, &changed)).Should(BeNil())
		Expect(changed.Properties[types.DocumentNamespace]).Should(HaveKeyWithValue("author", "John"))
		Expect(changed.Properties[types.DocumentNamespace]).ShouldNot(HaveKey("year"))

		code, _ = doRequest(http.MethodPost, "/api/v1/resource/copy", "", RelocateRequest{From: "/rest/doc", To: "/rest/copied"})
		Expect(code).Should(Equal(http.StatusOK))
		code, resp = doRequest(http.MethodPost, "/api/v1/resource/move", "", RelocateRequest{From: "/rest/doc", To: "/rest/moved"})
		Expect(code).Should(Equal(http.StatusOK))
		var target CanonicalID
		Expect(json.Unmarshal(resp.Data, &target)).Should(BeNil())
		Expect(target.ID).Should(Equal(config.DefaultIDPrefix + "rest/moved"))

		code, _ = doRequest(http.MethodGet, withID("/api/v1/resource", "/rest/doc"), "", nil)
		Expect(code).Should(Equal(http.StatusNotFound))
		code, _ = doRequest(http.MethodGet, withID("/api/v1/resource", "/rest/copied"), "", nil)
		Expect(code).Should(Equal(http.StatusOK))
	})

	It("should lock per principal", func() {
		code, _ := doRequest(http.MethodPut, "/api/v1/resource", "", PutResourceRequest{ID: "/rest/doc"})
		Expect(code).Should(Equal(http.StatusOK))

		code, resp := doRequest(http.MethodPost, "/api/v1/lock", "alice", LockRequest{ID: "/rest/doc", TimeoutSeconds: 60})
		Expect(code).Should(Equal(http.StatusOK))
		var token LockToken
		Expect(json.Unmarshal(resp.Data, &token)).Should(BeNil())
		Expect(token.Token).ShouldNot(BeEmpty())

		code, resp = doRequest(http.MethodGet, withID("/api/v1/lock", "/rest/doc"), "bob", nil)
		Expect(code).Should(Equal(http.StatusOK))
		var detail LockDetail
		Expect(json.Unmarshal(resp.Data, &detail)).Should(BeNil())
		Expect(detail.Locked).Should(BeTrue())
		Expect(detail.Principal).Should(Equal("alice"))
		Expect(detail.Owned).Should(BeFalse())

		code, resp = doRequest(http.MethodPost, "/api/v1/lock", "bob", LockRequest{ID: "/rest/doc", TimeoutSeconds: 60})
		Expect(code).Should(Equal(http.StatusLocked))
		Expect(resp.Error.Code).Should(Equal(apitool.ApiLockedError))

		code, _ = doRequest(http.MethodPost, "/api/v1/lock/release", "alice", UnlockRequest{ID: "/rest/doc", Token: token.Token})
		Expect(code).Should(Equal(http.StatusOK))
		code, resp = doRequest(http.MethodGet, withID("/api/v1/lock", "/rest/doc"), "bob", nil)
		Expect(code).Should(Equal(http.StatusOK))
		Expect(json.Unmarshal(resp.Data, &detail)).Should(BeNil())
		Expect(detail.Locked).Should(BeFalse())
	})

	It("should search by expression", func() {
		code, _ := doRequest(http.MethodPut, "/api/v1/resource", "", PutResourceRequest{ID: "/rest/needle", ContentType: "text/plain"})
		Expect(code).Should(Equal(http.StatusOK))

		code, resp := doRequest(http.MethodPost, "/api/v1/search", "", SearchRequest{Expression: `name == "needle"`})
		Expect(code).Should(Equal(http.StatusOK))
		var found []ResourceInfo
		Expect(json.Unmarshal(resp.Data, &found)).Should(BeNil())
		Expect(found).Should(HaveLen(1))
		Expect(found[0].ID).Should(Equal(config.DefaultIDPrefix + "rest/needle"))
	})
})
