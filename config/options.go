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

// Package config validates and normalises the persisted string options on
// a foreign-table definition (spec.md §6), and loads the cache's own
// process-level TOML configuration.
package config

import (
	"regexp"
	"strings"
	"time"

	"github.com/ngocbd/omniscidb/internal/moerr"
)

// Option keys recognised on a foreign-table definition.
const (
	KeyRefreshUpdateType    = "REFRESH_UPDATE_TYPE"
	KeyRefreshTimingType    = "REFRESH_TIMING_TYPE"
	KeyRefreshStartDateTime = "REFRESH_START_DATE_TIME"
	KeyRefreshInterval      = "REFRESH_INTERVAL"
	KeyStorageType          = "STORAGE_TYPE"
	KeyFilePath             = "FILE_PATH"
)

const (
	UpdateTypeAll    = "ALL"
	UpdateTypeAppend = "APPEND"

	TimingTypeManual    = "MANUAL"
	TimingTypeScheduled = "SCHEDULED"

	StorageTypeLocalFile = "LOCAL_FILE"
)

// validKeys is the full set of option names a foreign table may specify.
var validKeys = map[string]bool{
	KeyRefreshUpdateType:    true,
	KeyRefreshTimingType:    true,
	KeyRefreshStartDateTime: true,
	KeyRefreshInterval:      true,
	KeyStorageType:          true,
	KeyFilePath:             true,
}

// upperCaseOptions is the subset of option keys whose *values* (not just
// keys) are normalised to upper case on ingestion; FILE_PATH is excluded
// since paths are case-sensitive on most filesystems.
var upperCaseOptions = map[string]bool{
	KeyRefreshUpdateType: true,
	KeyRefreshTimingType: true,
	KeyStorageType:       true,
}

// alterableOptions is the subset of option keys an ALTER TABLE may change
// after creation.
var alterableOptions = map[string]bool{
	KeyRefreshUpdateType:    true,
	KeyRefreshTimingType:    true,
	KeyRefreshStartDateTime: true,
	KeyRefreshInterval:      true,
}

var refreshIntervalPattern = regexp.MustCompile(`(?i)^\d+[shd]$`)

// RefreshOptions is the normalised, validated form of a foreign table's
// refresh configuration.
type RefreshOptions struct {
	UpdateType    string
	TimingType    string
	StartDateTime time.Time
	HasStartDateTime bool
	Interval      string
	StorageType   string
	FilePath      string
}

// Normalize upper-cases every option key, and upper-cases values for keys
// in upperCaseOptions, rejecting any key not in validKeys.
func Normalize(raw map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		upperKey := strings.ToUpper(k)
		if !validKeys[upperKey] {
			return nil, moerr.New(moerr.ErrInvalidOption, "Invalid foreign table option \"%s\".", k)
		}
		if upperCaseOptions[upperKey] {
			v = strings.ToUpper(v)
		}
		out[upperKey] = v
	}
	return out, nil
}

// ParseRefreshOptions normalises raw and applies defaults and cross-field
// validation (spec.md §6, edge case 9: a scheduled refresh requires
// REFRESH_START_DATE_TIME, not in the past).
func ParseRefreshOptions(raw map[string]string, now time.Time) (RefreshOptions, error) {
	norm, err := Normalize(raw)
	if err != nil {
		return RefreshOptions{}, err
	}

	opts := RefreshOptions{
		UpdateType:  UpdateTypeAll,
		TimingType:  TimingTypeManual,
		StorageType: StorageTypeLocalFile,
	}
	if v, ok := norm[KeyRefreshUpdateType]; ok {
		if v != UpdateTypeAll && v != UpdateTypeAppend {
			return RefreshOptions{}, moerr.New(moerr.ErrInvalidOptionValue, "Invalid value \"%s\" for option \"%s\".", v, KeyRefreshUpdateType)
		}
		opts.UpdateType = v
	}
	if v, ok := norm[KeyRefreshTimingType]; ok {
		if v != TimingTypeManual && v != TimingTypeScheduled {
			return RefreshOptions{}, moerr.New(moerr.ErrInvalidOptionValue, "Invalid value \"%s\" for option \"%s\".", v, KeyRefreshTimingType)
		}
		opts.TimingType = v
	}
	if v, ok := norm[KeyStorageType]; ok {
		opts.StorageType = v
	}
	if v, ok := norm[KeyFilePath]; ok {
		opts.FilePath = collapseSeparators(v)
	}
	if v, ok := norm[KeyRefreshInterval]; ok {
		if !refreshIntervalPattern.MatchString(v) {
			return RefreshOptions{}, moerr.New(moerr.ErrInvalidOptionValue, "Invalid value \"%s\" for option \"%s\".", v, KeyRefreshInterval)
		}
		opts.Interval = v
	}

	if v, ok := norm[KeyRefreshStartDateTime]; ok {
		t, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			return RefreshOptions{}, moerr.New(moerr.ErrInvalidOptionValue, "Invalid value \"%s\" for option \"%s\".", v, KeyRefreshStartDateTime)
		}
		if t.Before(now) {
			return RefreshOptions{}, moerr.New(moerr.ErrInvalidOptionValue, "%s option must not be in the past.", strings.ToLower(KeyRefreshStartDateTime))
		}
		opts.StartDateTime = t
		opts.HasStartDateTime = true
	}

	if opts.TimingType == TimingTypeScheduled && !opts.HasStartDateTime {
		return RefreshOptions{}, moerr.New(moerr.ErrInvalidOptionValue, "refresh_start_date_time option must be provided for scheduled refreshes.")
	}

	return opts, nil
}

// ValidateAlter rejects an ALTER TABLE attempt to change a non-alterable
// option key.
func ValidateAlter(key string) error {
	upperKey := strings.ToUpper(key)
	if !validKeys[upperKey] {
		return moerr.New(moerr.ErrInvalidOption, "Invalid foreign table option \"%s\".", key)
	}
	if !alterableOptions[upperKey] {
		return moerr.New(moerr.ErrOptionNotAlterable, "Altering foreign table option \"%s\" is not currently supported.", key)
	}
	return nil
}

// collapseSeparators folds any run of "/" down to a single "/", matching
// the BASE_PATH join rule spec.md §6 calls for.
func collapseSeparators(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	return path
}
