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

package utils

import (
	"bytes"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const parentDirectoryAnchor = "Parent Directory"

// IndexEntry is one anchor of a directory index page.
type IndexEntry struct {
	Name       string
	Collection bool
}

// RenderIndex writes a sorted, de-duplicated index page, one row per entry.
// Collections get a trailing "/" in the href but not in the anchor text.
func RenderIndex(entries []IndexEntry) []byte {
	entries = normalizeIndex(entries)
	buf := &bytes.Buffer{}
	buf.WriteString("<table>\n")
	for _, en := range entries {
		href := en.Name
		if en.Collection {
			href += "/"
		}
		fmt.Fprintf(buf, "<tr><td><a href=\"%s\">%s</a></td></tr>\n", html.EscapeString(href), html.EscapeString(en.Name))
	}
	buf.WriteString("</table>\n")
	return buf.Bytes()
}

// ParseIndex reads the anchors RenderIndex writes, and also the tables of
// generated server indexes, skipping parent links and absolute hrefs.
func ParseIndex(body []byte) ([]IndexEntry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []IndexEntry{}, nil
	}
	query, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	entries := make([]IndexEntry, 0)
	query.Find("td > a").Each(func(i int, selection *goquery.Selection) {
		text := selection.Text()
		href, _ := selection.Attr("href")
		if text == parentDirectoryAnchor || strings.HasPrefix(href, "/") {
			return
		}
		entries = append(entries, IndexEntry{
			Name:       strings.TrimSuffix(text, "/"),
			Collection: strings.HasSuffix(href, "/"),
		})
	})
	return normalizeIndex(entries), nil
}

// DiffIndex returns the names present in only one of a and b.
func DiffIndex(a, b []IndexEntry) []string {
	seen := make(map[IndexEntry]int)
	for _, en := range a {
		seen[en] |= 1
	}
	for _, en := range b {
		seen[en] |= 2
	}
	var diff []string
	for en, mark := range seen {
		if mark != 3 {
			diff = append(diff, en.Name)
		}
	}
	sort.Strings(diff)
	return diff
}

func normalizeIndex(entries []IndexEntry) []IndexEntry {
	byName := make(map[string]IndexEntry, len(entries))
	for _, en := range entries {
		if en.Name == "" {
			continue
		}
		byName[en.Name] = en
	}
	result := make([]IndexEntry, 0, len(byName))
	for _, en := range byName {
		result = append(result, en)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
