// Command luma-cli is a one-shot command-line client over pkg/engine,
// structured the way the teacher's cmd/cli wraps pkg/storage, but built
// on urfave/cli/v3 subcommands (the pack's CLI library, per
// oarkflow-velocity/cli) instead of the teacher's bespoke REPL loop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/lumadb/luma/pkg/engine"
	"github.com/lumadb/luma/pkg/lsm"
)

func main() {
	app := buildApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildApp() *cli.Command {
	return &cli.Command{
		Name:  "luma-cli",
		Usage: "interact with a Luma storage engine instance",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Value: "./data/luma-cli", Usage: "storage data directory"},
			&cli.IntFlag{Name: "shards", Value: 16, Usage: "number of routing shards"},
		},
		Commands: []*cli.Command{
			collectionCommand(),
			docCommand(),
			kvCommand(),
			vectorCommand(),
		},
	}
}

func openEngine(cmd *cli.Command) (*engine.Engine, error) {
	return engine.Open(engine.Options{
		LSM:       lsm.Options{DataDir: cmd.Root().String("data")},
		NumShards: uint32(cmd.Root().Int("shards")),
	})
}

func collectionCommand() *cli.Command {
	return &cli.Command{
		Name:  "collection",
		Usage: "manage document collections",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "create a new collection",
				ArgsUsage: "<name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEngine(cmd)
					if err != nil {
						return err
					}
					defer e.Close()
					return e.CreateCollection(cmd.Args().First())
				},
			},
			{
				Name:  "list",
				Usage: "list all collections",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEngine(cmd)
					if err != nil {
						return err
					}
					defer e.Close()
					for _, name := range e.ListCollections() {
						fmt.Println(name)
					}
					return nil
				},
			},
			{
				Name:      "describe",
				Usage:     "show a collection's metadata",
				ArgsUsage: "<name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEngine(cmd)
					if err != nil {
						return err
					}
					defer e.Close()
					c, err := e.DescribeCollection(cmd.Args().First())
					if err != nil {
						return err
					}
					fmt.Printf("name=%s count=%d\n", c.Name, c.Count)
					return nil
				},
			},
			{
				Name:      "drop",
				Usage:     "drop a collection and all its documents",
				ArgsUsage: "<name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEngine(cmd)
					if err != nil {
						return err
					}
					defer e.Close()
					return e.DropCollection(cmd.Args().First())
				},
			},
		},
	}
}

func docCommand() *cli.Command {
	return &cli.Command{
		Name:  "doc",
		Usage: "insert/get/update/delete documents",
		Commands: []*cli.Command{
			{
				Name:      "insert",
				ArgsUsage: "<collection> <json>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEngine(cmd)
					if err != nil {
						return err
					}
					defer e.Close()
					args := cmd.Args()
					if args.Len() < 2 {
						return fmt.Errorf("usage: doc insert <collection> <json>")
					}
					if !json.Valid([]byte(args.Get(1))) {
						return fmt.Errorf("value must be valid JSON")
					}
					id, err := e.Insert(ctx, args.Get(0), []byte(args.Get(1)))
					if err != nil {
						return err
					}
					fmt.Println(id)
					return nil
				},
			},
			{
				Name:      "get",
				ArgsUsage: "<collection> <id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEngine(cmd)
					if err != nil {
						return err
					}
					defer e.Close()
					args := cmd.Args()
					doc, ok, err := e.Get(args.Get(0), args.Get(1))
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("not found")
					}
					fmt.Println(string(doc))
					return nil
				},
			},
			{
				Name:      "delete",
				ArgsUsage: "<collection> <id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEngine(cmd)
					if err != nil {
						return err
					}
					defer e.Close()
					args := cmd.Args()
					ok, err := e.Delete(ctx, args.Get(0), args.Get(1))
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("not found")
					}
					return nil
				},
			},
		},
	}
}

func kvCommand() *cli.Command {
	return &cli.Command{
		Name:  "kv",
		Usage: "flat key-value table operations",
		Commands: []*cli.Command{
			{
				Name:      "put",
				ArgsUsage: "<table> <key> <value>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEngine(cmd)
					if err != nil {
						return err
					}
					defer e.Close()
					args := cmd.Args()
					return e.KVPut(args.Get(0), args.Get(1), []byte(args.Get(2)))
				},
			},
			{
				Name:      "get",
				ArgsUsage: "<table> <key>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEngine(cmd)
					if err != nil {
						return err
					}
					defer e.Close()
					args := cmd.Args()
					v, ok, err := e.KVGet(args.Get(0), args.Get(1))
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("not found")
					}
					fmt.Println(string(v))
					return nil
				},
			},
			{
				Name:      "delete",
				ArgsUsage: "<table> <key>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEngine(cmd)
					if err != nil {
						return err
					}
					defer e.Close()
					args := cmd.Args()
					return e.KVDelete(args.Get(0), args.Get(1))
				},
			},
		},
	}
}

func vectorCommand() *cli.Command {
	return &cli.Command{
		Name:  "vector",
		Usage: "vector collection search",
		Commands: []*cli.Command{
			{
				Name:      "create",
				ArgsUsage: "<collection> <dim>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEngine(cmd)
					if err != nil {
						return err
					}
					defer e.Close()
					args := cmd.Args()
					var dim int
					if _, err := fmt.Sscanf(args.Get(1), "%d", &dim); err != nil {
						return fmt.Errorf("invalid dim: %w", err)
					}
					return e.CreateVectorCollection(args.Get(0), dim)
				},
			},
			{
				Name:      "search",
				ArgsUsage: "<collection> <k> <json-vector>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEngine(cmd)
					if err != nil {
						return err
					}
					defer e.Close()
					args := cmd.Args()
					var k int
					if _, err := fmt.Sscanf(args.Get(1), "%d", &k); err != nil {
						return fmt.Errorf("invalid k: %w", err)
					}
					var vec []float64
					if err := json.Unmarshal([]byte(args.Get(2)), &vec); err != nil {
						return fmt.Errorf("invalid vector json: %w", err)
					}
					matches, err := e.VectorSearch(args.Get(0), vec, k)
					if err != nil {
						return err
					}
					for _, m := range matches {
						fmt.Printf("%s\t%.4f\n", m.ID, m.Score)
					}
					return nil
				},
			},
		},
	}
}
