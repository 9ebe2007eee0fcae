// Command emojibot runs the image-to-custom-emoji-pack service: it wires
// every internal component via internal/container and exposes a minimal
// admin/health HTTP surface. The chat-platform transport itself (message
// reception, media download, button callbacks) is an external collaborator
// per this service's own interface contract and is not implemented here.
package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/config"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/container"
)

func main() {
	logger := log.New(os.Stdout, "emojibot ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	c, err := container.New(cfg, logger)
	if err != nil {
		logger.Fatalf("container: %v", err)
	}
	c.Start()

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           c.HTTPHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Printf("admin surface listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Printf("shutting down...")

	_ = httpSrv.Close()
	c.Stop()
}
