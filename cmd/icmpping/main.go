package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/EdgeCast/icmpping"
)

const (
	debugLevel = 11
)

var (
	// Passed by "go build -ldflags" for the show version
	tag    string
	commit string
	date   string
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the exit code, so the deferred profile and socket cleanup
// happen before os.Exit
func run(args []string) int {

	flags := pflag.NewFlagSet("icmpping", pflag.ContinueOnError)

	port := flags.IntP("port", "p", icmpping.DefaultPort, "Ping specific port. Carried for compatibility, ICMP has no ports.")
	interval := flags.Float64P("interval", "i", 1.0, "Time interval between pings, in seconds.")
	count := flags.IntP("count", "c", 0, "Max number of packets to transmit. Unbounded when not set.")
	help := flags.BoolP("help", "h", false, "Print usage")

	timeout := flags.Float64P("timeout", "W", 1.0, "Time to wait for each reply, in seconds.")
	size := flags.IntP("size", "s", icmpping.DefaultPayloadSize, "Number of data bytes to send.")
	ttl := flags.IntP("ttl", "t", icmpping.DefaultTTL, "IP time to live of the echo requests.")
	startSeq := flags.Uint16("start-seq", 0, "First ICMP sequence number.")
	strictness := flags.String("strictness", "default", "Reply matching strictness: relaxed, default, strict.")
	unprivileged := flags.Bool("unprivileged", false, "Use udp4 ICMP datagram sockets instead of raw sockets.")

	version := flags.Bool("version", false, "show version")
	logLevel := flags.String("log", "warn", "Log level: Trace, Debug, Info, Warn, Error, Off")
	dl := flags.Int("debug", 1, "session and socket debug level")
	promBind := flags.String("promBind", "", "Prometheus /metrics HTTP bind socket, e.g. :8889. Disabled when empty.")
	promPath := flags.String("promPath", "/metrics", "Prometheus metrics path")
	pprof := flags.String("pprof", "", "enable profiling mode, options [cpu, mem, mutex, block, trace]")

	usage := func() {
		fmt.Fprintf(os.Stderr, "Usage: icmpping [options] hostname\n\nSend ICMP echo requests to hostname\n\n%s", flags.FlagUsages())
	}
	flags.Usage = usage

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if *help {
		usage()
		return 0
	}

	if *version {
		fmt.Println("icmpping\ttag:", tag, "\tcommit:", commit, "\tcompile date(UTC):", date)
		return 0
	}

	if flags.NArg() != 1 {
		usage()
		return 1
	}
	host := flags.Arg(0)

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "icmpping",
		Level: hclog.LevelFromString(*logLevel),
	})

	config := icmpping.DefaultConfig()
	config.Port = *port
	config.Interval = seconds(*interval)
	config.Timeout = seconds(*timeout)
	config.PayloadSize = *size
	config.TTL = *ttl
	config.SequenceStart = icmpping.Sequence(*startSeq)
	config.Privileged = !*unprivileged
	if flags.Changed("count") {
		if *count < 0 {
			fmt.Fprintf(os.Stderr, "invalid count of packets to transmit: %d\n", *count)
			return 1
		}
		config.Count = *count
	}
	s, err := icmpping.ParseStrictness(*strictness)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	config.Strictness = s

	// "github.com/pkg/profile"
	// https://dave.cheney.net/2013/07/07/introducing-profile-super-simple-profiling-for-go-programs
	// e.g. ./icmpping -c 100 -i 0.01 --pprof cpu 127.0.0.1
	// go tool pprof -http=":8081" icmpping cpu.pprof
	if opts, ok := profileOptions(*pprof); ok {
		defer profile.Start(opts...).Stop()
	} else {
		logger.Debug("No profiling")
	}

	metrics, err := icmpping.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("metrics registration failed", "error", err)
		return 1
	}
	if *promBind != "" {
		http.Handle(*promPath, promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
			},
		))
		go func() {
			if err := http.ListenAndServe(*promBind, nil); err != nil {
				logger.Error("Prometheus http listener failed", "error", err)
			}
		}()
		if debugLevel > 10 {
			logger.Info("Prometheus http listener started", "*promBind", *promBind, "*promPath", *promPath)
		}
	}

	// The signal goroutine only flips the token, the session loop does the rest
	canceler := icmpping.NewCanceler()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			canceler.Cancel()
		}
	}()

	session, err := icmpping.Open(logger, config, host, icmpping.DefaultResolver, canceler, os.Stdout, metrics)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR", err)
		return 1
	}
	session.DebugLevel = *dl
	session.Transport.DebugLevel = *dl

	if _, err := session.Run(); err != nil {
		if !errors.Is(err, icmpping.ErrForcedExit) {
			fmt.Fprintln(os.Stderr, "ERROR", err)
		}
		return 1
	}
	return 0
}

// profileOptions maps the --pprof mode to pkg/profile options.
// NoShutdownHook leaves SIGINT to the Canceler, otherwise profile exits 0 on
// the first interrupt, before the summary.
func profileOptions(mode string) ([]func(*profile.Profile), bool) {
	var p func(*profile.Profile)
	switch mode {
	case "cpu":
		p = profile.CPUProfile
	case "mem":
		p = profile.MemProfile // heap
	case "mutex":
		p = profile.MutexProfile
	case "block":
		p = profile.BlockProfile
	case "trace":
		p = profile.TraceProfile
	default:
		return nil, false
	}
	return []func(*profile.Profile){p, profile.ProfilePath("."), profile.Quiet, profile.NoShutdownHook}, true
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
