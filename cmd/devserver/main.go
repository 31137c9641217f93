// devserver runs an in-memory Koursa REST backend for local development and manual testing.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"koursa/client/internal/config"
	"koursa/client/internal/devserver"
	"koursa/client/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	tokens, err := newTokenProvider(cfg)
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}
	srv, err := devserver.NewServer(devserver.Options{
		Tokens:        tokens,
		Hasher:        security.NewHasher(cfg.BcryptCost),
		ValidationTTL: cfg.ValidationTTL(),
	})
	if err != nil {
		log.Fatalf("devserver: %v", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.DevServerAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("devserver listening on %s (seed accounts use password %q)", cfg.DevServerAddr, devserver.SeedPassword)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down devserver...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("devserver stopped")
}

// newTokenProvider signs with JWT_PRIVATE_KEY, or with an ephemeral key when it is unset.
func newTokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey == "" {
		log.Printf("jwt: JWT_PRIVATE_KEY not set, tokens will not survive a restart")
	}
	priv, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL()), nil
}
