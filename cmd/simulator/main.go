package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/simulator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	port := flag.Int("port", 9000, "simulator server port")
	seed := flag.Uint64("seed", 1, "seed for generated traffic")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger.Setup(*logLevel, "development")
	logger.SetAppName("log-simulator")
	logger.Info("Starting request log simulator")

	sim, err := simulator.New(simulator.Config{
		Port: *port,
		Seed: *seed,
	})
	if err != nil {
		return fmt.Errorf("failed to create simulator: %w", err)
	}

	if err := sim.Start(); err != nil {
		return fmt.Errorf("failed to start simulator: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down simulator")
	return sim.Stop()
}
