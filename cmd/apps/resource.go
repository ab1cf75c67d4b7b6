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

package apps

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/basenana/davstore/config"
	"github.com/basenana/davstore/pkg/connector"
	"github.com/basenana/davstore/pkg/types"
)

var (
	principal string
	withBody  bool
	limit     int
)

func init() {
	for _, c := range []*cobra.Command{getCmd, lsCmd, canonicalCmd, searchCmd} {
		c.Flags().StringVar(&principal, "principal", "davstore.cli", "principal running the transaction")
		RootCmd.AddCommand(c)
	}
	getCmd.Flags().BoolVar(&withBody, "body", false, "print the body instead of the metadata")
	searchCmd.Flags().IntVar(&limit, "limit", 0, "max results, zero means unlimited")
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, tx *connector.Transaction, ns types.Namespace) error {
			res, err := tx.Get(ctx, resolveID(ns, args[0]))
			if err != nil {
				return err
			}
			if withBody {
				_, err = os.Stdout.Write(res.Body)
				return err
			}
			return printJSON(map[string]interface{}{
				"id":           res.ID,
				"name":         res.Name,
				"type":         res.Type,
				"content_type": res.ContentType,
				"etag":         res.ETag,
				"properties":   res.Properties.Grouped(),
			})
		})
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls <id>",
	Short: "List the children of a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, tx *connector.Transaction, ns types.Namespace) error {
			children, err := tx.ListCollection(ctx, resolveID(ns, args[0]))
			if err != nil {
				return err
			}
			for _, c := range children {
				fmt.Printf("%s\t%s\n", c.Name, c.ID)
			}
			return nil
		})
	},
}

var canonicalCmd = &cobra.Command{
	Use:   "canonical <id>",
	Short: "Print the canonical form of an id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, tx *connector.Transaction, ns types.Namespace) error {
			id, err := tx.Canonicalize(ctx, resolveID(ns, args[0]))
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <expression>",
	Short: "Search resources with a CEL expression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, tx *connector.Transaction, ns types.Namespace) error {
			result, err := tx.Search(ctx, types.SearchQuery{Expression: args[0], Limit: limit})
			if err != nil {
				return err
			}
			for _, res := range result {
				fmt.Println(res.ID)
			}
			return nil
		})
	},
}

func withStore(fn func(ctx context.Context, tx *connector.Transaction, ns types.Namespace) error) error {
	cfg, err := config.NewConfigLoader().GetConfig()
	if err != nil {
		return err
	}
	store, err := connector.New(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	return store.Do(ctx, principal, func(tx *connector.Transaction) error {
		return fn(ctx, tx, store.Namespace())
	})
}

// resolveID accepts a full id or a path below the prefix.
func resolveID(ns types.Namespace, raw string) types.ResourceID {
	if strings.Contains(raw, "://") {
		return types.ResourceID(raw)
	}
	return types.ResourceID(ns.Prefix + strings.TrimPrefix(raw, "/"))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}
