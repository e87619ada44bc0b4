package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/adrienschuler/storage-engine/pkg/server"
)

func main() {
	host := flag.String("host", "127.0.0.1", "Server host address")
	port := flag.Int("port", 8080, "Server port")
	dataDir := flag.String("data-dir", "./data", "Directory for engine storage")
	engineName := flag.String("engine", "lsm", "Storage engine to open: btree or lsm")
	authPassphrase := flag.String("auth-passphrase", "", "If set, require a bearer token derived from this passphrase")
	flag.Parse()

	config := server.DefaultConfig(*dataDir)
	config.Host = *host
	config.Port = *port
	config.EngineName = *engineName
	config.AuthPassphrase = *authPassphrase

	srv, err := server.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
