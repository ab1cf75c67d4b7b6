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
	"io"
	"time"

	"gorm.io/gorm"

	"github.com/basenana/davstore/pkg/metastore/db"
)

const itemFetchPageSize = 100

// itemScanner walks storage_item in id order, one page per query, so a
// full-table search never holds the whole table in memory.
type itemScanner struct {
	query  *gorm.DB
	buf    []db.StorageItem
	lastID int64
	done   bool
}

func newItemScanner(query *gorm.DB) *itemScanner {
	return &itemScanner{query: query}
}

// Next returns io.EOF once every row has been read.
func (s *itemScanner) Next(ctx context.Context) (*db.StorageItem, error) {
	if len(s.buf) == 0 {
		if s.done {
			return nil, io.EOF
		}
		if err := s.fetch(ctx); err != nil {
			return nil, err
		}
		if len(s.buf) == 0 {
			return nil, io.EOF
		}
	}
	item := s.buf[0]
	s.buf = s.buf[1:]
	return &item, nil
}

func (s *itemScanner) fetch(ctx context.Context) error {
	defer logOperationLatency("item_scanner.fetch", time.Now())
	var page []db.StorageItem
	res := s.query.WithContext(ctx).Where("id > ?", s.lastID).Order("id").Limit(itemFetchPageSize).Find(&page)
	if res.Error != nil {
		logOperationError("item_scanner.fetch", res.Error)
		return db.SqlError2Error(res.Error)
	}
	if len(page) < itemFetchPageSize {
		s.done = true
	}
	if len(page) > 0 {
		s.lastID = page[len(page)-1].ID
	}
	s.buf = page
	return nil
}
