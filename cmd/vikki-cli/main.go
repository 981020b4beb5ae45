// Package main is a command-line viewer for a running vikki agent.
//
//	vikki-cli [flags] list
//	vikki-cli [flags] query <sensor> <from> <to>
//	vikki-cli [flags] watch <sensor>
//
// Timestamps are Unix seconds; "now" and negative offsets such as "-300"
// (relative to now) are accepted.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/cpp11nullptr/vikki/internal/client"
	"github.com/cpp11nullptr/vikki/internal/models"
	"github.com/cpp11nullptr/vikki/internal/sensor"
)

var (
	addr       = flag.StringP("addr", "a", "127.0.0.1:45555", "Agent address")
	caFile     = flag.String("ca", "", "CA certificate; enables TLS")
	certFile   = flag.String("cert", "", "Client certificate for mutual TLS")
	keyFile    = flag.String("key", "", "Client private key for mutual TLS")
	serverName = flag.String("server-name", "", "Expected server name in the agent certificate")
	timeout    = flag.Duration("timeout", 10*time.Second, "Request timeout")
	raw        = flag.Bool("raw", false, "Print payloads as hex instead of decoding them")
	verbose    = flag.BoolP("verbose", "v", false, "Log protocol debug output")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: vikki-cli [flags] list | query <sensor> <from> <to> | watch <sensor>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "vikki-cli: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = l
		defer logger.Sync()
	}

	var tlsConfig *tls.Config
	if *caFile != "" {
		cfg, err := client.LoadTLS(client.TLSFiles{
			CAFile:     *caFile,
			CertFile:   *certFile,
			KeyFile:    *keyFile,
			ServerName: *serverName,
		})
		if err != nil {
			return err
		}
		tlsConfig = cfg
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	c, err := client.Dial(dialCtx, *addr, tlsConfig, client.WithLogger(logger))
	if err != nil {
		return err
	}
	defer c.Close()

	switch cmd, rest := args[0], args[1:]; cmd {
	case "list":
		return list(ctx, c)
	case "query":
		if len(rest) != 3 {
			return errors.New("usage: query <sensor> <from> <to>")
		}
		now := time.Now()
		from, err := parseTimestamp(rest[1], now)
		if err != nil {
			return err
		}
		to, err := parseTimestamp(rest[2], now)
		if err != nil {
			return err
		}
		return query(ctx, c, rest[0], from, to)
	case "watch":
		if len(rest) != 1 {
			return errors.New("usage: watch <sensor>")
		}
		return watch(ctx, c, rest[0])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func list(ctx context.Context, c *client.Client) error {
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	names, err := c.ListSensors(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func query(ctx context.Context, c *client.Client, name string, from, to int64) error {
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	records, err := c.QuerySensorData(ctx, name, from, to)
	if err != nil {
		return err
	}
	for _, r := range records {
		printSample(models.Sample{Sensor: name, Timestamp: r.Timestamp, Payload: r.Payload})
	}
	return nil
}

func watch(ctx context.Context, c *client.Client, name string) error {
	c.OnPush(printSample)
	if err := c.Subscribe(name, true); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		// Best effort; the agent also forgets subscriptions on disconnect.
		_ = c.Subscribe(name, false)
		return nil
	case <-c.Done():
		return c.Err()
	}
}

func printSample(s models.Sample) {
	ts := time.Unix(s.Timestamp, 0).Format(time.RFC3339)
	if *raw {
		fmt.Printf("%s %s %x\n", ts, s.Sensor, s.Payload)
		return
	}
	text, err := sensor.Format(s.Sensor, s.Payload)
	if err != nil {
		fmt.Printf("%s %s <malformed: %v>\n", ts, s.Sensor, err)
		return
	}
	fmt.Printf("%s %s %s\n", ts, s.Sensor, text)
}

func parseTimestamp(s string, now time.Time) (int64, error) {
	if s == "now" {
		return now.Unix(), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	if v < 0 {
		return now.Unix() + v, nil
	}
	return v, nil
}
