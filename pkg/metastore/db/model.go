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

package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"path"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

const RootPath = "/"

type StorageItem struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement:false"`
	ParentPath   string         `gorm:"column:parent_path;uniqueIndex:item_location,priority:1"`
	Name         string         `gorm:"column:name;uniqueIndex:item_location,priority:2"`
	IsCollection bool           `gorm:"column:is_collection"`
	Body         []byte         `gorm:"column:body"`
	Properties   JSONProperties `gorm:"column:properties"`
	ETag         string         `gorm:"column:etag"`
	Version      int64          `gorm:"column:version"`
	CreatedAt    int64          `gorm:"column:created_at"`
	ModifiedAt   int64          `gorm:"column:modified_at"`

	Lock *ResourceLock `gorm:"foreignKey:ItemID;references:ID;constraint:OnDelete:CASCADE"`
}

func (i *StorageItem) TableName() string {
	return "storage_item"
}

func (i *StorageItem) Path() string {
	return JoinPath(i.ParentPath, i.Name)
}

type ResourceLock struct {
	ItemID    int64  `gorm:"column:item_id;primaryKey;autoIncrement:false"`
	Principal string `gorm:"column:principal"`
	Token     string `gorm:"column:token;index:lock_token"`
	Until     int64  `gorm:"column:until"`
}

func (l *ResourceLock) TableName() string {
	return "resource_lock"
}

// JSONProperties is the namespace -> name -> value layout of a property column.
type JSONProperties map[string]map[string]string

func (p JSONProperties) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (p *JSONProperties) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = JSONProperties{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported properties column type %T", src)
	}
	result := JSONProperties{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return err
		}
	}
	*p = result
	return nil
}

func (JSONProperties) GormDataType() string {
	return "json"
}

func (JSONProperties) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	default:
		return "TEXT"
	}
}

// SplitPath returns the row key of p. The root is ("", "").
func SplitPath(p string) (parent, name string) {
	p = path.Clean("/" + p)
	if p == RootPath {
		return "", ""
	}
	return path.Dir(p), path.Base(p)
}

func JoinPath(parent, name string) string {
	if parent == "" {
		return RootPath
	}
	return path.Join(parent, name)
}
