// Command replay re-reads the chaincode event stream from a block height and
// prints each event in commit order, stopping at the DeletePrescription event
// that closes a prescription's history.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mesikahq/rxledger/internal/config"
	"github.com/mesikahq/rxledger/internal/ledger"
	"github.com/mesikahq/rxledger/internal/prescription"
)

func main() {
	startBlock := flag.Uint64("start", 0, "block height to replay from")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("Error loading .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	profile, err := ledger.LoadProfile(cfg.Fabric.ProfilePath)
	if err != nil {
		logger.Fatal("Failed to load connection profile", zap.Error(err))
	}

	conn, err := ledger.Connect(profile)
	if err != nil {
		logger.Fatal("Failed to connect to ledger peer", zap.Error(err))
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-interrupt
		cancel()
	}()

	network := conn.Network(cfg.Fabric.Channel)
	sink := prescription.SinkFunc(func(ctx context.Context, event *prescription.Event) error {
		fmt.Printf("block %d  %s  %s  status=%s\n",
			event.BlockNumber, event.Name, event.Prescription.ID, event.Prescription.Status)
		return nil
	})

	if err := prescription.Replay(ctx, network, cfg.Fabric.Chaincode, *startBlock, sink); err != nil {
		logger.Fatal("Replay failed", zap.Error(err))
	}
}
