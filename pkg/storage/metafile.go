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
	"bytes"
	"encoding/xml"
	"errors"
	"io"

	"github.com/basenana/davstore/pkg/types"
)

const rankedTagsOpen = `<tag:rankedTags xmlns:tag="http://namespaces.zeit.de/CMS/tagging">`

type metaAttribute struct {
	Name string `xml:"name,attr"`
	NS   string `xml:"ns,attr"`
	Text string `xml:",chardata"`
}

// ParseMetaProperties reads the properties of a .meta sidecar or of a content
// file carrying the same head section. Every head/attribute element becomes a
// property; a head/rankedTags element becomes the tagging keywords property.
func ParseMetaProperties(data []byte) (types.Properties, error) {
	var (
		props = types.Properties{}
		dec   = xml.NewDecoder(bytes.NewReader(data))
		stack []string
	)
	dec.Strict = false

	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			if parent != "head" {
				stack = append(stack, t.Name.Local)
				continue
			}
			switch t.Name.Local {
			case "attribute":
				attr := metaAttribute{}
				if err = dec.DecodeElement(&attr, &t); err != nil {
					return nil, err
				}
				props[types.PropertyKey{Name: attr.Name, Namespace: attr.NS}] = attr.Text
			case "rankedTags":
				if err = dec.Skip(); err != nil {
					return nil, err
				}
				raw := data[offset:dec.InputOffset()]
				props[types.KeywordsProperty] = rankedTagsOpen + string(bytes.TrimSpace(raw)) + "</tag:rankedTags>"
			default:
				stack = append(stack, t.Name.Local)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return props, nil
}
