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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ngocbd/omniscidb/config"
	"github.com/ngocbd/omniscidb/internal/logutil"
	"github.com/ngocbd/omniscidb/pkg/foreigncache/cache"
	"github.com/ngocbd/omniscidb/pkg/foreigncache/filemgr"
	"github.com/ngocbd/omniscidb/pkg/foreigncache/manager"
	"github.com/ngocbd/omniscidb/pkg/foreigncache/wrapper"
	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

var cfgFile string

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "coredb-cache-tool",
		Short: "Inspect and administer the foreign storage cache",
	}
	root.PersistentFlags().StringVar(&cfgFile, "cfg", "./cache.toml", "toml configuration for the cache")
	root.AddCommand(statCommand(), clearCommand(), refreshCommand())
	return root
}

func openCache() (*cache.Cache, func(), error) {
	cfg, err := config.LoadCacheConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	fm, err := filemgr.Open(cfg.CacheDirectory, cfg.PageSizeBytes, cfg.CompressPages)
	if err != nil {
		return nil, nil, err
	}
	c, err := cache.New(fm, cfg.CacheDirectory, cfg.PageSizeBytes, cfg.MaxCachedBytes)
	if err != nil {
		fm.Close()
		return nil, nil, err
	}
	return c, func() { fm.Close() }, nil
}

func statCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stat <db-id> <table-id>",
		Short: "Print cached chunk and metadata counts for a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbID, tableID, err := parseTablePrefix(args)
			if err != nil {
				return err
			}
			c, closeFn, err := openCache()
			if err != nil {
				return err
			}
			defer closeFn()

			prefix := layout.NewTableKey(dbID, tableID)
			chunks := c.GetCachedChunksForKeyPrefix(prefix)
			meta := c.GetCachedMetadataVecForKeyPrefix(prefix)
			fmt.Printf("table %d.%d: %d cached chunks, %d cached metadata entries\n", dbID, tableID, len(chunks), len(meta))
			return nil
		},
	}
	return cmd
}

func clearCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear <db-id> <table-id>",
		Short: "Evict every cached chunk and metadata entry for a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbID, tableID, err := parseTablePrefix(args)
			if err != nil {
				return err
			}
			c, closeFn, err := openCache()
			if err != nil {
				return err
			}
			defer closeFn()

			prefix := layout.NewTableKey(dbID, tableID)
			if err := c.ClearForTablePrefix(prefix); err != nil {
				return err
			}
			logutil.Info(fmt.Sprintf("cleared cache for table %d.%d", dbID, tableID))
			return nil
		},
	}
	return cmd
}

func refreshCommand() *cobra.Command {
	var csvPath string
	var appendMode bool

	cmd := &cobra.Command{
		Use:   "refresh <db-id> <table-id>",
		Short: "Refresh a CSV-backed foreign table's cached fragments",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbID, tableID, err := parseTablePrefix(args)
			if err != nil {
				return err
			}
			if csvPath == "" {
				return fmt.Errorf("--file-path is required")
			}
			c, closeFn, err := openCache()
			if err != nil {
				return err
			}
			defer closeFn()

			mgr := manager.New(c)
			w := wrapper.NewCsvWrapper(dbID, tableID, csvPath, ',')
			updateType := config.UpdateTypeAll
			if appendMode {
				updateType = config.UpdateTypeAppend
			}
			mgr.RegisterTable(dbID, tableID, w, config.RefreshOptions{UpdateType: updateType})

			tableKey := layout.NewTableKey(dbID, tableID)
			if err := mgr.RefreshTable(tableKey, !appendMode); err != nil {
				return err
			}
			logutil.Info(fmt.Sprintf("refreshed table %d.%d from %s", dbID, tableID, csvPath))
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "file-path", "", "path to the CSV file backing this table")
	cmd.Flags().BoolVar(&appendMode, "append", false, "use append-mode refresh instead of full replace")
	return cmd
}

func parseTablePrefix(args []string) (int32, int32, error) {
	var dbID, tableID int
	if _, err := fmt.Sscanf(args[0], "%d", &dbID); err != nil {
		return 0, 0, fmt.Errorf("invalid db-id %q: %w", args[0], err)
	}
	if _, err := fmt.Sscanf(args[1], "%d", &tableID); err != nil {
		return 0, 0, fmt.Errorf("invalid table-id %q: %w", args[1], err)
	}
	return int32(dbID), int32(tableID), nil
}
