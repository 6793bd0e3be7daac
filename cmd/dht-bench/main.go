package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/ingest"
	"MovieDHT/internal/node/config"
	"MovieDHT/internal/node/overlay"
)

type params struct {
	protocols   []string
	minNodes    int
	maxNodes    int
	step        int
	keys        int
	lookups     int
	zipf        float64
	replication int
	failStep    float64
	failNodes   int
	parallel    bool
	seed        int64
}

type row struct {
	experiment  string
	protocol    string
	nodes       int
	replication int
	removed     int
	lookups     int
	found       int
	avgHops     float64
	maxHops     int
	replicaHits int
	keysMoved   uint64
	avgLatency  time.Duration
}

var header = []string{
	"experiment", "protocol", "nodes", "replication", "removed", "lookups", "found",
	"avg_hops", "max_hops", "replica_hits", "keys_moved", "avg_latency_us",
}

func (r row) record() []string {
	return []string{
		r.experiment,
		r.protocol,
		strconv.Itoa(r.nodes),
		strconv.Itoa(r.replication),
		strconv.Itoa(r.removed),
		strconv.Itoa(r.lookups),
		strconv.Itoa(r.found),
		strconv.FormatFloat(r.avgHops, 'f', 3, 64),
		strconv.Itoa(r.maxHops),
		strconv.Itoa(r.replicaHits),
		strconv.FormatUint(r.keysMoved, 10),
		strconv.FormatFloat(float64(r.avgLatency.Nanoseconds())/1e3, 'f', 2, 64),
	}
}

func main() {
	protocols := flag.String("protocols", "ring,mesh,modulo", "Comma separated topologies to measure")
	minNodes := flag.Int("min", 20, "Smallest overlay size")
	maxNodes := flag.Int("max", 300, "Largest overlay size")
	step := flag.Int("step", 20, "Overlay size increment")
	keys := flag.Int("keys", 5000, "Synthetic titles to store when no dataset is given")
	dataset := flag.String("dataset", "", "Movie CSV to store instead of synthetic titles")
	lookups := flag.Int("lookups", 10000, "Lookups per measurement")
	zipf := flag.Float64("zipf", 1.2, "Zipf alpha for key popularity (must be > 1.0)")
	replication := flag.Int("replication", 3, "Replication factor for the failure experiment")
	failStep := flag.Float64("fail-step", 0.1, "Fraction of the initial nodes removed per failure round")
	failNodes := flag.Int("fail-nodes", 300, "Overlay size for the failure experiment (0 disables it)")
	parallel := flag.Bool("parallel", false, "Use the parallel lookup")
	seed := flag.Int64("seed", 1, "Random seed")
	output := flag.String("output", "results.csv", "Output file")
	flag.Parse()

	p := params{
		protocols:   strings.Split(*protocols, ","),
		minNodes:    *minNodes,
		maxNodes:    *maxNodes,
		step:        *step,
		keys:        *keys,
		lookups:     *lookups,
		zipf:        *zipf,
		replication: *replication,
		failStep:    *failStep,
		failNodes:   *failNodes,
		parallel:    *parallel,
		seed:        *seed,
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("MovieDHT Benchmark\n")
	fmt.Printf("Protocols: %s\n", strings.Join(p.protocols, ", "))
	fmt.Printf("Nodes: %d..%d step %d\n", p.minNodes, p.maxNodes, p.step)
	fmt.Printf("Lookups: %d (zipf %.2f)\n", p.lookups, p.zipf)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	// Validate parameters
	if p.minNodes < 1 || p.step < 1 || p.maxNodes < p.minNodes {
		fmt.Printf("Error: invalid node range %d..%d step %d\n", p.minNodes, p.maxNodes, p.step)
		os.Exit(1)
	}
	// Go's rand.NewZipf requires exponent (alpha) > 1
	if p.zipf <= 1.0 {
		fmt.Printf("Error: --zipf must be > 1.0 (got %.2f)\n", p.zipf)
		os.Exit(1)
	}
	if p.failStep <= 0 || p.failStep >= 1 {
		fmt.Printf("Error: --fail-step must be in (0, 1) (got %.2f)\n", p.failStep)
		os.Exit(1)
	}

	movies, err := loadMovies(*dataset, p.keys)
	if err != nil {
		fmt.Printf("Error loading movies: %v\n", err)
		os.Exit(1)
	}
	if len(movies) < 2 {
		fmt.Println("Error: need at least two movies")
		os.Exit(1)
	}

	// Open output
	file, err := os.Create(*output)
	if err != nil {
		fmt.Printf("Error creating file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	defer w.Flush()
	if err := w.Write(header); err != nil {
		fmt.Printf("Error writing header: %v\n", err)
		os.Exit(1)
	}

	emit := func(r row) {
		if err := w.Write(r.record()); err != nil {
			fmt.Printf("Error writing row: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%-8s %-7s nodes=%-4d removed=%-4d found=%d/%d avg_hops=%.2f max=%d moved=%d\n",
			r.experiment, r.protocol, r.nodes, r.removed, r.found, r.lookups, r.avgHops, r.maxHops, r.keysMoved)
	}

	start := time.Now()
	ctx := context.Background()
	for _, protocol := range p.protocols {
		for n := p.minNodes; n <= p.maxNodes; n += p.step {
			r, err := scale(ctx, p, protocol, n, movies)
			if err != nil {
				fmt.Printf("Error in scale run (%s, %d nodes): %v\n", protocol, n, err)
				os.Exit(1)
			}
			emit(r)
		}
	}

	if p.failNodes > 0 {
		rows, err := failure(ctx, p, p.failNodes, movies)
		if err != nil {
			fmt.Printf("Error in failure run: %v\n", err)
			os.Exit(1)
		}
		for _, r := range rows {
			emit(r)
		}
	}

	fmt.Println("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("\nResults saved to: %s\n", *output)
}

func loadMovies(path string, synthetic int) ([]ingest.Movie, error) {
	if path == "" {
		movies := make([]ingest.Movie, synthetic)
		for i := range movies {
			title := fmt.Sprintf("Movie %d", i)
			movies[i] = ingest.Movie{
				Title:  title,
				Record: domain.NewRecord(strconv.Itoa(i), map[string]string{"title": title}),
			}
		}
		return movies, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	movies, _, err := ingest.NewLoader().Parse(context.Background(), f)
	return movies, err
}

func build(ctx context.Context, protocol string, nodes, replication int, movies []ingest.Movie) (*overlay.DHT, error) {
	cfg := config.DefaultConfig().DHT
	cfg.Protocol = protocol
	cfg.ReplicationFactor = replication

	d, err := overlay.NewFromConfig(cfg, nil)
	if err != nil {
		return nil, err
	}
	names := make([]string, nodes)
	for i := range names {
		names[i] = fmt.Sprintf("node%d", i)
	}
	if _, err := d.JoinAll(names); err != nil {
		return nil, err
	}
	for _, m := range movies {
		if _, err := d.Put(ctx, m.Title, m.Record); err != nil && !errors.Is(err, domain.ErrInvalidKey) {
			return nil, err
		}
	}
	return d, nil
}

// measure runs p.lookups zipf-distributed reads against d.
func measure(ctx context.Context, p params, d *overlay.DHT, movies []ingest.Movie, rng *rand.Rand) (row, error) {
	zipfGen := rand.NewZipf(rng, p.zipf, 1.5, uint64(len(movies)-1))
	var r row
	var elapsed time.Duration
	for range p.lookups {
		m := movies[zipfGen.Uint64()]
		start := time.Now()
		var res overlay.Result
		var err error
		if p.parallel {
			res, err = d.GetParallel(ctx, m.Title)
		} else {
			res, err = d.Get(ctx, m.Title)
		}
		elapsed += time.Since(start)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidKey) {
				continue
			}
			return row{}, err
		}
		r.lookups++
		r.avgHops += float64(res.Hops)
		r.maxHops = max(r.maxHops, res.Hops)
		if res.Found() {
			r.found++
		}
		if res.FromReplica {
			r.replicaHits++
		}
	}
	if r.lookups > 0 {
		r.avgHops /= float64(r.lookups)
		r.avgLatency = elapsed / time.Duration(r.lookups)
	}
	return r, nil
}

// scale measures hops at one overlay size, then adds one node and reports
// how many keys moved.
func scale(ctx context.Context, p params, protocol string, nodes int, movies []ingest.Movie) (row, error) {
	d, err := build(ctx, protocol, nodes, 0, movies)
	if err != nil {
		return row{}, err
	}
	r, err := measure(ctx, p, d, movies, rand.New(rand.NewSource(p.seed)))
	if err != nil {
		return row{}, err
	}

	before := d.RoutingMetrics().KeysTransferred
	if _, err := d.Join(fmt.Sprintf("node%d", nodes)); err != nil {
		return row{}, err
	}
	r.keysMoved = d.RoutingMetrics().KeysTransferred - before

	r.experiment = "scale"
	r.protocol = protocol
	r.nodes = nodes
	return r, nil
}

// failure removes random ring members in rounds and measures how many
// reads the replicas still answer.
func failure(ctx context.Context, p params, nodes int, movies []ingest.Movie) ([]row, error) {
	d, err := build(ctx, config.ProtocolRing, nodes, p.replication, movies)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(p.seed))
	batch := max(1, int(float64(nodes)*p.failStep))

	var rows []row
	removed := 0
	for d.Len() > 0 {
		r, err := measure(ctx, p, d, movies, rand.New(rand.NewSource(p.seed)))
		if err != nil {
			return nil, err
		}
		r.experiment = "failure"
		r.protocol = config.ProtocolRing
		r.nodes = d.Len()
		r.replication = p.replication
		r.removed = removed
		rows = append(rows, r)

		if d.Len() <= batch {
			break
		}
		members := d.Nodes()
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		for _, n := range members[:batch] {
			if _, err := d.LeaveID(n.ID); err != nil {
				return nil, err
			}
			removed++
		}
	}
	return rows, nil
}
