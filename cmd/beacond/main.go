// Command beacond is a minimal standalone mDNS responder and browser.
//
// It registers one service via responder.Responder (probe, announce,
// answer queries, send a goodbye on exit) and simultaneously browses for
// the same service type via querier.Querier, so a single process
// demonstrates the full register → discover → goodbye lifecycle described
// in RFC 6762/6763 end to end.
//
// Process-level defaults (rate-limit threshold/cooldown, query timeout)
// come from the environment, following the teacher's own layering: the
// library packages take no env input, only this binary does.
//
// Usage:
//
//	BEACOND_RATE_LIMIT_THRESHOLD=100 go run ./cmd/beacond -name "My Service" -type _http._tcp.local -port 8080
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/nimbusdns/beacon/internal/records"
	"github.com/nimbusdns/beacon/querier"
	"github.com/nimbusdns/beacon/responder"
)

// daemonConfig holds process-level defaults loaded from the environment.
// Component construction itself still goes through the functional-options
// pattern below; this only supplies the values those options take.
type daemonConfig struct {
	RateLimitThreshold int           `env:"BEACOND_RATE_LIMIT_THRESHOLD" envDefault:"50"`
	RateLimitCooldown  time.Duration `env:"BEACOND_RATE_LIMIT_COOLDOWN" envDefault:"10s"`
	QueryTimeout       time.Duration `env:"BEACOND_QUERY_TIMEOUT" envDefault:"1s"`
}

func main() {
	instanceName := flag.String("name", "Beacon Daemon", "service instance name")
	serviceType := flag.String("type", "_http._tcp.local", "service type")
	port := flag.Int("port", 8080, "service port")
	flag.Parse()

	var cfg daemonConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("beacond: parse environment config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	r, err := responder.New(ctx,
		responder.WithLogger(logger),
		responder.WithRateLimit(cfg.RateLimitThreshold, cfg.RateLimitCooldown),
	)
	if err != nil {
		log.Fatalf("beacond: create responder: %v", err)
	}
	defer r.Close()

	svc := &responder.Service{
		InstanceName: *instanceName,
		ServiceType:  *serviceType,
		Port:         *port,
		TXTRecords:   []records.TXTEntry{{Key: "path", Value: []byte("/"), Present: true}},
	}
	if err := r.Register(svc); err != nil {
		log.Fatalf("beacond: register %q: %v", *instanceName, err)
	}
	fmt.Printf("registered %s.%s:%d\n", *instanceName, *serviceType, *port)

	q, err := querier.New(
		querier.WithTimeout(cfg.QueryTimeout),
		querier.WithRateLimit(true),
	)
	if err != nil {
		log.Fatalf("beacond: create querier: %v", err)
	}
	defer q.Close()

	unsubscribe, err := q.Browse(*serviceType, &querier.BrowseListener{
		OnServiceFound: func(info querier.ServiceInfo, fromCache bool) {
			fmt.Printf("found %s at %s:%d (cached=%v)\n", info.InstanceName, info.Hostname, info.Port, fromCache)
		},
		OnServiceRemoved: func(info querier.ServiceInfo) {
			fmt.Printf("removed %s\n", info.InstanceName)
		},
	})
	if err != nil {
		log.Fatalf("beacond: browse %q: %v", *serviceType, err)
	}
	defer unsubscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	fmt.Println("running, press Ctrl+C to exit")
	<-sigCh

	fmt.Println("shutting down")
	if err := r.Unregister(*instanceName); err != nil {
		log.Printf("beacond: unregister %q: %v", *instanceName, err)
	}
}
