package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/ingest"
	"MovieDHT/internal/logger"
	zapfactory "MovieDHT/internal/logger/zap"
	"MovieDHT/internal/node/config"
	"MovieDHT/internal/node/overlay"

	"github.com/peterh/liner"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "config/node/config.yaml", "path to configuration file")
	protocol := flag.String("protocol", "", "override dht.protocol (ring | mesh | modulo)")
	nodes := flag.Int("nodes", -1, "override dht.bootstrap.nodes")
	dataset := flag.String("dataset", "", "override dataset.path")
	verbose := flag.Bool("v", false, "log overlay events to stdout")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Printf("using defaults: %v", err)
		cfg = config.DefaultConfig()
	}
	if *protocol != "" {
		cfg.DHT.Protocol = *protocol
	}
	if *nodes >= 0 {
		cfg.DHT.Bootstrap.Nodes = *nodes
	}
	if *dataset != "" {
		cfg.Dataset.Path = *dataset
	}
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger = &logger.NopLogger{}
	if *verbose {
		cfg.Logger.Mode = "stdout"
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewZapAdapter(zapLog)
	}

	d, err := overlay.NewFromConfig(cfg.DHT, lgr)
	if err != nil {
		log.Fatalf("failed to initialize overlay: %v", err)
	}
	names := make([]string, cfg.DHT.Bootstrap.Nodes)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", cfg.DHT.Bootstrap.Prefix, i)
	}
	if _, err := d.JoinAll(names); err != nil {
		log.Fatalf("failed to bootstrap overlay: %v", err)
	}

	ctx := context.Background()
	if cfg.Dataset.Path != "" {
		loader := ingest.NewLoader(
			ingest.WithLogger(lgr.Named("ingest")),
			ingest.WithBatchSize(cfg.Dataset.BatchSize),
			ingest.WithWorkers(cfg.Dataset.Workers),
		)
		st, err := loader.LoadFile(ctx, cfg.Dataset.Path, d)
		if err != nil {
			log.Fatalf("failed to load dataset: %v", err)
		}
		fmt.Printf("Loaded %d movies (%d skipped) in %s\n", st.Loaded, st.Skipped, st.Duration.Round(time.Millisecond))
	}

	fmt.Printf("MovieDHT interactive shell. %s overlay with %d nodes\n", d.Protocol(), d.Len())
	fmt.Println("Available commands: get/pget/put/update/delete/join/leave/nodes/node/metrics/hot/help/exit")
	fmt.Println("")

	// Setup liner shell
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(fmt.Sprintf("dht[%s:%d]> ", d.Protocol(), d.Len()))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("Aborted")
				continue
			}
			break
		}
		line.AppendHistory(input)

		args := splitArgs(input)
		if len(args) == 0 {
			continue
		}
		cmd := args[0]

		switch cmd {

		case "get", "pget":
			if len(args) < 2 {
				fmt.Printf("Usage: %s <title>\n", cmd)
				continue
			}
			title := strings.Join(args[1:], " ")
			start := time.Now()
			var res overlay.Result
			if cmd == "pget" {
				res, err = d.GetParallel(ctx, title)
			} else {
				res, err = d.Get(ctx, title)
			}
			latency := time.Since(start)
			if err != nil {
				fmt.Printf("Lookup failed: %v | latency=%s\n", err, latency)
				continue
			}
			printResult(res, latency)

		case "put", "update":
			if len(args) < 3 {
				fmt.Printf("Usage: %s <title> <id> [attr=value ...]\n", cmd)
				fmt.Printf("Example: %s \"The Matrix\" 603 release_date=1999-03-30\n", cmd)
				continue
			}
			attrs, err := parseAttrs(args[3:])
			if err != nil {
				fmt.Println(err)
				continue
			}
			attrs["title"] = args[1]
			rec := domain.NewRecord(args[2], attrs)
			if cmd == "put" {
				owner, err := d.Put(ctx, args[1], rec)
				if err != nil {
					fmt.Printf("Put failed: %v\n", err)
					continue
				}
				fmt.Printf("Stored on %s\n", owner)
				continue
			}
			ok, err := d.Update(ctx, args[1], args[2], rec)
			if err != nil {
				fmt.Printf("Update failed: %v\n", err)
				continue
			}
			fmt.Printf("Updated: %t\n", ok)

		case "delete", "del":
			if len(args) != 3 {
				fmt.Println("Usage: delete <title> <id>")
				continue
			}
			ok, err := d.Delete(ctx, args[1], args[2])
			if err != nil {
				fmt.Printf("Delete failed: %v\n", err)
				continue
			}
			fmt.Printf("Deleted: %t\n", ok)

		case "join":
			if len(args) != 2 {
				fmt.Println("Usage: join <name>")
				continue
			}
			n, err := d.Join(args[1])
			if err != nil {
				fmt.Printf("Join failed: %v\n", err)
				continue
			}
			fmt.Printf("Joined %s\n", n)

		case "leave", "fail":
			if len(args) != 2 {
				fmt.Printf("Usage: %s <name>\n", cmd)
				continue
			}
			n, err := d.Leave(args[1])
			if err != nil {
				fmt.Printf("Leave failed: %v\n", err)
				continue
			}
			fmt.Printf("Removed %s\n", n)

		case "nodes":
			for _, v := range d.Views() {
				fmt.Printf("  %-20s id=%s keys=%d records=%d\n",
					v.Node.Name, d.Space().ToHexString(v.Node.ID), v.Keys, v.Records)
			}

		case "node":
			if len(args) != 2 {
				fmt.Println("Usage: node <name>")
				continue
			}
			v, ok := d.View(args[1])
			if !ok {
				fmt.Printf("No member named %s\n", args[1])
				continue
			}
			printJSON(v)

		case "metrics", "stats":
			printJSON(d.Snapshot(false, 0))

		case "hot", "hotkeys":
			hot := d.HotKeys(10)
			if len(hot) == 0 {
				fmt.Println("  (none)")
				continue
			}
			for i, h := range hot {
				mark := ""
				if h.IsAbove {
					mark = " HOT"
				}
				fmt.Printf("  [%d] %s rate=%.2f total=%d%s\n", i+1, h.Key, h.Rate, h.Total, mark)
			}

		case "help", "?":
			fmt.Println("Available commands:")
			fmt.Println("  get <title>                       - Look up a title from the default entry node")
			fmt.Println("  pget <title>                      - Look up a title from several entry nodes at once")
			fmt.Println("  put <title> <id> [k=v ...]        - Store a movie")
			fmt.Println("  update <title> <id> [k=v ...]     - Replace the movie with that id")
			fmt.Println("  delete <title> <id>               - Remove the movie with that id")
			fmt.Println("  join <name>                       - Add a node")
			fmt.Println("  leave <name>                      - Remove a node (simulated failure)")
			fmt.Println("  nodes                             - List nodes with their store sizes")
			fmt.Println("  node <name>                       - Show one node's routing state")
			fmt.Println("  metrics                           - Show routing statistics")
			fmt.Println("  hot                               - Show the most read titles")
			fmt.Println("  help                              - Show this help")
			fmt.Println("  exit                              - Exit shell")
			fmt.Println("")
			fmt.Println("Quote titles that contain spaces:")
			fmt.Println("  get \"The Matrix\"")

		case "exit", "quit", "q":
			fmt.Println("Bye!")
			return

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
			fmt.Println("Type 'help' for available commands")
		}
	}
}

func printResult(res overlay.Result, latency time.Duration) {
	source := "primary"
	if res.FromReplica {
		source = "replica"
	}
	fmt.Printf("Found: %d | Hops: %d | Owner: %s (%s) | Latency: %s\n",
		len(res.Records), res.Hops, res.Owner, source, latency)
	for _, r := range res.Records {
		fmt.Printf("  id=%s", r.ID)
		for k, v := range r.Attrs {
			if k == "overview" && len(v) > 80 {
				v = v[:80] + "..."
			}
			fmt.Printf(" %s=%q", k, v)
		}
		fmt.Println()
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Failed to render: %v\n", err)
		return
	}
	fmt.Println(string(out))
}

func parseAttrs(args []string) (map[string]string, error) {
	attrs := make(map[string]string, len(args)+1)
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid attribute %q (want key=value)", a)
		}
		attrs[k] = v
	}
	return attrs, nil
}

// splitArgs splits on whitespace, keeping double-quoted runs together.
func splitArgs(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote bool
		has   bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quote = !quote
			has = true
		case !quote && (r == ' ' || r == '\t'):
			if has {
				out = append(out, cur.String())
				cur.Reset()
				has = false
			}
		default:
			cur.WriteRune(r)
			has = true
		}
	}
	if has {
		out = append(out, cur.String())
	}
	return out
}
