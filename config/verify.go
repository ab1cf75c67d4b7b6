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
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultCacheSize = 1024
	DefaultIDPrefix  = "http://xml.zeit.de/"
)

var validate = validator.New()

type verifier func(config *Config) error

var verifiers = []verifier{
	setDefaultValue,
	validateStruct,
	checkApiConfig,
	checkBackendConfig,
	checkDAVServerConfig,
}

func setDefaultValue(config *Config) error {
	if config.Prefix == "" {
		config.Prefix = DefaultIDPrefix
	}
	if !strings.HasSuffix(config.Prefix, "/") {
		config.Prefix += "/"
	}
	if config.Cache.Size == 0 {
		config.Cache.Size = DefaultCacheSize
	}
	return nil
}

func validateStruct(config *Config) error {
	err := validate.Struct(config)
	if err == nil {
		return nil
	}
	if vErrs, ok := err.(validator.ValidationErrors); ok && len(vErrs) > 0 {
		e := vErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

func checkApiConfig(config *Config) error {
	aCfg := config.Api
	if !aCfg.Enable {
		return nil
	}
	if aCfg.Host == "" || aCfg.Port == 0 {
		return fmt.Errorf("api.host or api.port not config")
	}
	return nil
}

func checkBackendConfig(config *Config) error {
	b := config.Backend
	switch b.Type {
	case FilesystemBackend:
		if b.Filesystem == nil {
			return fmt.Errorf("backend.filesystem not config")
		}
		info, err := os.Stat(b.Filesystem.Root)
		if err != nil {
			return fmt.Errorf("check backend.filesystem.root error: %s", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("backend.filesystem.root %s is not a directory", b.Filesystem.Root)
		}
		return nil
	case RelationalBackend:
		return checkMetaConfig(b.Meta)
	case BridgeBackend:
		if b.Remote == nil {
			return fmt.Errorf("backend.remote not config")
		}
		return checkMetaConfig(b.Meta)
	default:
		return fmt.Errorf("unknown backend type %s", b.Type)
	}
}

func checkMetaConfig(m *Meta) error {
	if m == nil {
		return fmt.Errorf("backend.meta not config")
	}
	switch m.Type {
	case MemoryMeta:
		return nil
	case SqliteMeta:
		if m.Path == "" {
			return fmt.Errorf("path for sqlite db file is empty")
		}
		return nil
	case PostgresMeta:
		if m.DSN == "" {
			return fmt.Errorf("db dsn is empty")
		}
		return nil
	default:
		return fmt.Errorf("unknown meta type %s", m.Type)
	}
}

func checkDAVServerConfig(config *Config) error {
	d := config.DAVServer
	if d == nil || !d.Enable {
		return nil
	}
	if d.Host == "" || d.Port == 0 {
		return fmt.Errorf("dav_server.host or dav_server.port not config")
	}
	if d.Dir == "" {
		return fmt.Errorf("dav_server.dir is empty")
	}
	return nil
}

func Verify(cfg *Config) error {
	for _, f := range verifiers {
		if err := f(cfg); err != nil {
			return err
		}
	}
	return nil
}
