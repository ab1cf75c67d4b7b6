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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

const ConfigPathEnv = "DAVSTORE_CONFIG"

// FilePath is bound to the --config flag.
var FilePath string

type Loader interface {
	GetConfig() (Config, error)
}

type fileLoader struct {
	path string
}

func (l fileLoader) GetConfig() (cfg Config, err error) {
	target := l.path
	if target == "" {
		target = FilePath
	}
	if env := os.Getenv(ConfigPathEnv); env != "" && target == "" {
		target = env
	}
	if target == "" {
		return cfg, fmt.Errorf("--config not set")
	}

	raw, err := os.ReadFile(target)
	if err != nil {
		return cfg, fmt.Errorf("read config %s failed: %w", target, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err = decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s failed: %w", target, err)
	}
	if err = Verify(&cfg); err != nil {
		return cfg, fmt.Errorf("verify config failed: %w", err)
	}
	return cfg, nil
}

// NewConfigLoader reads the file named by --config, falling back to $DAVSTORE_CONFIG.
func NewConfigLoader() Loader {
	return fileLoader{}
}

func NewFileLoader(path string) Loader {
	return fileLoader{path: path}
}
