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
	"runtime/debug"
	"strings"
)

var (
	gitTag    string
	gitCommit string
)

type Version struct {
	Tag string `json:"tag"`
	Git string `json:"git"`
	Go  string `json:"go"`
}

func (v Version) String() string {
	if v.Git == "" {
		return v.Tag
	}
	return fmt.Sprintf("%s (%s)", v.Tag, v.Git)
}

// VersionInfo prefers the ldflags stamped values and falls back to the module build info.
func VersionInfo() Version {
	v := Version{Tag: "v0.0.0-dev", Git: gitCommit}
	if gitTag != "" {
		v.Tag = "v" + strings.TrimPrefix(gitTag, "v")
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v
	}
	v.Go = info.GoVersion
	if gitTag == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v.Tag = info.Main.Version
	}
	if v.Git == "" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				v.Git = s.Value
			}
		}
	}
	return v
}
