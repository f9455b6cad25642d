// Command nexusd-tool is the nexusdb administrative CLI: it drives the
// collection-management REST surface from the command line through
// pkg/client.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/nexusdb/pkg/client"
)

var (
	Version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "nexusd-tool",
	Short:   "nexusdb administrative CLI",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8599", "nexusd REST server address")
	rootCmd.AddCommand(collectionCmd)
}

func newClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("server")
	return client.NewClient(addr)
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage collections",
}

func init() {
	collectionCreateCmd.Flags().Int("number-of-shards", 1, "number of shards")
	collectionCreateCmd.Flags().Int("replication-factor", 1, "replication factor")
	collectionCreateCmd.Flags().StringSlice("shard-keys", nil, "shard key attribute names")
	collectionCreateCmd.Flags().Bool("edge", false, "create an edge collection instead of a document collection")

	collectionCmd.AddCommand(collectionCreateCmd, collectionListCmd, collectionGetCmd,
		collectionTruncateCmd, collectionDeleteCmd, collectionRenameCmd)
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		numberOfShards, _ := cmd.Flags().GetInt("number-of-shards")
		replicationFactor, _ := cmd.Flags().GetInt("replication-factor")
		shardKeys, _ := cmd.Flags().GetStringSlice("shard-keys")
		edge, _ := cmd.Flags().GetBool("edge")

		opts := map[string]any{
			"numberOfShards":    numberOfShards,
			"replicationFactor": replicationFactor,
		}
		if len(shardKeys) > 0 {
			opts["shardKeys"] = shardKeys
		}
		if edge {
			opts["type"] = "edge"
		}

		ctx, cancel := withTimeout()
		defer cancel()
		created, err := newClient(cmd).CreateCollection(ctx, args[0], opts)
		if err != nil {
			return fmt.Errorf("creating collection: %w", err)
		}
		fmt.Printf("created collection %q (object id %d)\n", created.Name, created.ObjectID)
		return nil
	},
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout()
		defer cancel()
		collections, err := newClient(cmd).ListCollections(ctx)
		if err != nil {
			return fmt.Errorf("listing collections: %w", err)
		}
		for _, c := range collections {
			fmt.Printf("%s\tshards=%d\treplication=%d\n", c.Name, c.NumberOfShards, c.ReplicationFactor)
		}
		return nil
	},
}

var collectionGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Show a collection's properties and document count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout()
		defer cancel()
		c := newClient(cmd)
		info, err := c.GetCollection(ctx, args[0])
		if err != nil {
			return fmt.Errorf("fetching collection: %w", err)
		}
		count, err := c.DocumentCount(ctx, args[0])
		if err != nil {
			return fmt.Errorf("fetching document count: %w", err)
		}
		fmt.Printf("name: %s\nobject id: %d\nshards: %d\nreplication factor: %d\ndocuments: %d\n",
			info.Name, info.ObjectID, info.NumberOfShards, info.ReplicationFactor, count)
		return nil
	},
}

var collectionTruncateCmd = &cobra.Command{
	Use:   "truncate NAME",
	Short: "Remove every document from a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout()
		defer cancel()
		if err := newClient(cmd).TruncateCollection(ctx, args[0]); err != nil {
			return fmt.Errorf("truncating collection: %w", err)
		}
		fmt.Printf("truncated %q\n", args[0])
		return nil
	},
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Drop a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout()
		defer cancel()
		if err := newClient(cmd).DeleteCollection(ctx, args[0]); err != nil {
			return fmt.Errorf("deleting collection: %w", err)
		}
		fmt.Printf("deleted %q\n", args[0])
		return nil
	},
}

var collectionRenameCmd = &cobra.Command{
	Use:   "rename OLD_NAME NEW_NAME",
	Short: "Rename a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout()
		defer cancel()
		if err := newClient(cmd).RenameCollection(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("renaming collection: %w", err)
		}
		fmt.Printf("renamed %q to %q\n", args[0], args[1])
		return nil
	},
}
