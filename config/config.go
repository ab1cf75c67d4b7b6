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

const (
	FilesystemBackend = "filesystem"
	RelationalBackend = "relational"
	BridgeBackend     = "bridge"

	MemoryMeta   = "memory"
	SqliteMeta   = "sqlite"
	PostgresMeta = "postgres"
)

type Config struct {
	Prefix  string  `json:"prefix" validate:"omitempty,url"`
	Backend Backend `json:"backend"`
	Cache   Cache   `json:"cache"`

	Api       Api        `json:"api"`
	DAVServer *DAVServer `json:"dav_server,omitempty"`

	SentryDSN string `json:"sentry_dsn,omitempty"`
	Debug     bool   `json:"debug,omitempty"`
}

type Backend struct {
	Type       string      `json:"type" validate:"required,oneof=filesystem relational bridge"`
	Filesystem *Filesystem `json:"filesystem,omitempty"`
	Meta       *Meta       `json:"meta,omitempty"`
	Remote     *Remote     `json:"remote,omitempty"`
}

type Filesystem struct {
	Root                    string `json:"root" validate:"required"`
	CanonicalizeDirectories *bool  `json:"canonicalize_directories,omitempty"`
	SetLastModifiedProperty bool   `json:"set_lastmodified_property,omitempty"`
}

func (f Filesystem) Canonicalize() bool {
	if f.CanonicalizeDirectories == nil {
		return true
	}
	return *f.CanonicalizeDirectories
}

type Meta struct {
	Type string `json:"type" validate:"required,oneof=memory sqlite postgres"`
	Path string `json:"path,omitempty"`
	DSN  string `json:"dsn,omitempty"`
}

type Remote struct {
	ServerURL      string `json:"server_url" validate:"required,url"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	Root           string `json:"root,omitempty"`
	Insecure       bool   `json:"insecure,omitempty"`
	MaxConcurrency int    `json:"max_concurrency,omitempty" validate:"gte=0"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" validate:"gte=0"`
}

type Cache struct {
	// Size bounds each transaction-scoped cache; zero uses the default.
	Size int `json:"size" validate:"gte=0"`
}

type Api struct {
	Enable bool   `json:"enable"`
	Host   string `json:"host"`
	Port   int    `json:"port" validate:"gte=0,lte=65535"`
	Pprof  bool   `json:"pprof"`
}

// DAVServer serves a local directory over WebDAV, a stand-in remote for the bridge backend.
type DAVServer struct {
	Enable bool   `json:"enable"`
	Host   string `json:"host"`
	Port   int    `json:"port" validate:"gte=0,lte=65535"`
	Dir    string `json:"dir"`
}
