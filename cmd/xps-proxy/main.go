package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	xps "github.com/ehrlich-b/go-xps"
	"github.com/ehrlich-b/go-xps/internal/logging"
)

func main() {
	var (
		listen   = flag.String("listen", "0.0.0.0:8001,0.0.0.0:8002,0.0.0.0:8003,0.0.0.0:8004", "Comma-separated list of host:port addresses to listen on")
		upstream = flag.String("upstream", "", "Upstream host:port to proxy to (empty for echo mode)")
		thresh   = flag.Int("pipe-thresh", xps.DefaultPipeBuffThresh, "Per-pipe back-pressure threshold in bytes")
		verbose  = flag.Bool("v", false, "Verbose output")
		stats    = flag.Bool("stats", false, "Print metrics on shutdown")
	)
	flag.Parse()

	// Set up logging
	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = zerolog.DebugLevel
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	params := xps.DefaultParams()
	params.ListenAddrs = splitAddrs(*listen)
	params.Upstream = *upstream
	params.PipeBuffThresh = *thresh
	params.Logger = logger

	metrics := xps.NewMetrics()
	params.Observer = metrics

	if len(params.ListenAddrs) == 0 {
		logger.Error().Msg("no listen addresses")
		os.Exit(1)
	}

	core, err := xps.NewCore(params)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create core")
		os.Exit(1)
	}

	if *upstream == "" {
		logger.Info().Msg("running in echo mode")
	} else {
		logger.Info().Str("upstream", *upstream).Msg("running in proxy mode")
	}

	core.HandleSignals()

	if err := core.Start(); err != nil {
		logger.Error().Err(err).Msg("core failed")
		core.Destroy()
		os.Exit(1)
	}

	// Start returned: shutdown was requested, tear down on this goroutine
	core.Destroy()

	if *stats {
		s := metrics.Snapshot()
		fmt.Printf("uptime: %s\n", s.Uptime)
		fmt.Printf("accepted: %d (errors %d)\n", s.Accepted, s.AcceptErrors)
		fmt.Printf("closed: %d local, %d by peer\n", s.Closed, s.PeerClosed)
		fmt.Printf("recv: %d ops, %d bytes\n", s.RecvOps, s.RecvBytes)
		fmt.Printf("send: %d ops, %d bytes\n", s.SendOps, s.SentBytes)
		fmt.Printf("would-block: %d, pipes destroyed: %d, compactions: %d\n",
			s.WouldBlocks, s.PipesDestroyed, s.Compactions)
	}

	os.Exit(0)
}

func splitAddrs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
