// Copyright 2022 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"github.com/BurntSushi/toml"

	"github.com/ngocbd/omniscidb/internal/moerr"
)

// CacheConfig is the process-level TOML configuration for the foreign
// storage cache and its file manager, loaded the way the teacher's own
// cmd/db-server loads storage options: one toml.DecodeFile call per
// sub-config struct.
type CacheConfig struct {
	BasePath         string `toml:"base-path"`
	CacheDirectory   string `toml:"cache-directory"`
	PageSizeBytes    int64  `toml:"page-size-bytes"`
	MaxCachedBytes   int64  `toml:"max-cached-bytes"`
	CompressPages    bool   `toml:"compress-pages"`
}

// DefaultCacheConfig mirrors filemgr's own defaults so a missing config
// file still produces a usable cache.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		BasePath:       ".",
		CacheDirectory: "foreigncache",
		PageSizeBytes:  2 * 1024 * 1024,
		MaxCachedBytes: 512 * 1024 * 1024,
		CompressPages:  true,
	}
}

// LoadCacheConfig decodes path into cfg, starting from DefaultCacheConfig
// so unset fields keep their defaults.
func LoadCacheConfig(path string) (CacheConfig, error) {
	cfg := DefaultCacheConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return CacheConfig{}, moerr.Wrap(moerr.ErrNotADirectory, err, "loading cache config from %s", path)
	}
	return cfg, nil
}
