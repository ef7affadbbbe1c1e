// Command popbench load tests a running popserver.
//
// Connections pick sample rows deterministically and issue a GET followed by a PUT
// of the same city, so two runs with the same flags send the same requests.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"
)

func main() {
	log.SetPrefix("popbench: ")

	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://localhost:5555", "server base URL")
	flag.StringVar(&opts.dataPath, "data", "static/city_populations.csv", "CSV of city,state,population sample rows")
	flag.IntVar(&opts.samples, "samples", 24, "number of leading rows requests are drawn from")
	flag.IntVar(&opts.connections, "connections", 100, "concurrent connections")
	flag.IntVar(&opts.requests, "requests", 100, "GET/PUT pairs sent by each connection")
	flag.Int64Var(&opts.seed, "seed", 1, "random seed")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rows, err := loadSamples(ctx, opts.dataPath, opts.samples)
	if err != nil {
		log.Fatal(err)
	}

	start := time.Now()
	res, err := bench(ctx, opts, rows)
	if err != nil {
		log.Fatal(err)
	}
	res.print(os.Stdout, time.Since(start))

	if res.failures != 0 {
		fmt.Fprintf(os.Stderr, "popbench: %d unexpected responses\n", res.failures)
		os.Exit(1)
	}
}
