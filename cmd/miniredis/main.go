// Binary miniredis runs an in-memory Redis stand-in for local development
// and integration tests against coordination.RedisStore, which otherwise
// needs a real Redis cluster reachable at config.RedisConfig.Addrs.
package main

import (
	"flag"
	"os"
	"os/signal"

	"github.com/alicebob/miniredis/v2"

	"github.com/quietpush/enclavecore/logger"
)

var (
	addr  = flag.String("addr", "localhost:6379", "bind address for the stand-in Redis instance")
	track = flag.String("track", "default", "track name this instance is standing in for, logged at startup for operator clarity")
)

func main() {
	flag.Parse()

	r := miniredis.NewMiniRedis()
	if err := r.StartAddr(*addr); err != nil {
		logger.Fatalf("starting miniredis at %v: %v", *addr, err)
	}
	defer r.Close()
	logger.Infow("miniredis listening", "addr", *addr, "track", *track,
		"genesisLockKey", "enclave/genesis-lock/"+*track, "peerKeyPrefix", "enclave/peers/"+*track+"/")

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	<-interrupts
	logger.Infof("received interrupt, shutting down...")
}
