package main

import (
	"log"
	"os"

	"github.com/stopthephish/phishwatch/config"
	apperrors "github.com/stopthephish/phishwatch/internal/errors"
	"github.com/stopthephish/phishwatch/server"
)

// Exit codes: 1 for config or runtime failures, 2 when the mail server
// rejects the configured credentials.
const (
	exitFailure     = 1
	exitAuthFailure = 2
)

func main() {
	cfg, err := config.InitConfig()
	if err != nil {
		log.Printf("Config initialization failed: %v", err)
		os.Exit(exitFailure)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("phishwatch starting up...")

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Printf("Server setup failed: %v", err)
		os.Exit(exitFailure)
	}

	if err := srv.Run(); err != nil {
		log.Printf("phishwatch terminated: %v", err)
		if apperrors.IsAuthError(err) {
			os.Exit(exitAuthFailure)
		}
		os.Exit(exitFailure)
	}

	log.Println("Shutdown complete")
}
