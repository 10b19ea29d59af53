// Command mockbackend serves the development mock of the generation backend.
// Usage: go run ./cmd/mockbackend [port]
// Default port: 8787
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/mockbackend"
)

func main() {
	cfg := mockbackend.DefaultConfig()
	cfg.Logger = logging.NewStdoutLogger("mockbackend")

	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.ListenAddr = fmt.Sprintf("127.0.0.1:%d", port)
	}

	srv, err := mockbackend.NewServer(cfg)
	if err != nil {
		log.Fatalf("Server error: %v", err)
	}
	defer srv.Close()

	fmt.Println("===========================================")
	fmt.Println("   sitegen mock backend")
	fmt.Println("===========================================")
	fmt.Printf("API:       http://%s/api\n", cfg.ListenAddr)
	fmt.Printf("WebSocket: ws://%s/api/ws/jobs/{job_id}?token=...\n", cfg.ListenAddr)
	fmt.Printf("Storage:   http://%s/storage/%s/\n", cfg.ListenAddr, cfg.Bucket)
	fmt.Println()
	fmt.Println("Any bearer token is accepted; each token is its own user.")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpSrv := srv.HTTPServer()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
}
