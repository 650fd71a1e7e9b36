// Command tracerpcd serves the debug_/trace_ JSON-RPC namespaces of
// spec.md §6 over HTTP, replaying transactions against a remote KV store
// through the Replay Executor. Wiring follows cmd/geth's own app/flags/
// main pattern: urfave/cli for the command surface, go-ethereum/log for
// output, go-ethereum/rpc for the JSON-RPC transport itself.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/exp"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"

	"github.com/erigontech/silkrpc-sub000/chain"
	"github.com/erigontech/silkrpc-sub000/executor"
	"github.com/erigontech/silkrpc-sub000/internal/flags"
	"github.com/erigontech/silkrpc-sub000/internal/reactor"
	"github.com/erigontech/silkrpc-sub000/internal/rpcapi"
	"github.com/erigontech/silkrpc-sub000/remotekv"
	"github.com/erigontech/silkrpc-sub000/state"
)

func main() {
	app := &cli.App{
		Name:   "tracerpcd",
		Usage:  "debug_/trace_ JSON-RPC service backed by a remote historical KV store",
		Flags:  flags.Flags,
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := flags.FromContext(c)
	if err != nil {
		return fmt.Errorf("tracerpcd: load config: %w", err)
	}

	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(cfg.Verbosity), true)))
	logger := log.New("module", "tracerpcd")

	if cfg.MetricsAddr != "" {
		metrics.Enable()
		exp.Setup(cfg.MetricsAddr)
		logger.Info("metrics endpoint enabled", "addr", cfg.MetricsAddr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	kv, err := remotekv.Dial(ctx, cfg.KVTarget, grpc.WithInsecure())
	if err != nil {
		return fmt.Errorf("tracerpcd: dial kv at %s: %w", cfg.KVTarget, err)
	}
	defer kv.Close()

	exec := &executor.Executor{
		Chain: chain.NewCache(),
		KV:    kv,
		Code:  state.NewCodeCache(cfg.CodeCacheMB << 20),
	}

	pool := reactor.New(cfg.Workers, cfg.WorkerQueue)
	defer pool.Close()

	resolver := newBlockResolver(kv)

	server := rpc.NewServer()
	if err := server.RegisterName("debug", rpcapi.NewDebugAPI(exec, resolver)); err != nil {
		return fmt.Errorf("tracerpcd: register debug namespace: %w", err)
	}
	if err := server.RegisterName("trace", rpcapi.NewTraceAPI(exec, resolver)); err != nil {
		return fmt.Errorf("tracerpcd: register trace namespace: %w", err)
	}

	handler := withPoolContext(pool, server)
	if cfg.JWTSecret != "" {
		secret, err := loadJWTSecret(cfg.JWTSecret)
		if err != nil {
			return fmt.Errorf("tracerpcd: load jwt secret: %w", err)
		}
		handler = withJWTAuth(secret, handler)
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", "err", err)
		}
	}()

	logger.Info("tracerpcd listening", "addr", cfg.HTTPAddr, "kv", cfg.KVTarget, "workers", cfg.Workers)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("tracerpcd: serve: %w", err)
	}
	return nil
}

// withPoolContext stashes the reactor pool in each request's context so
// rpcapi handlers that need to offload CPU-bound replay can reach it via
// reactor.FromContext, without threading the pool through every call.
func withPoolContext(pool *reactor.Pool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(reactor.WithPool(r.Context(), pool))
		next.ServeHTTP(w, r)
	})
}

// withJWTAuth enforces go-ethereum engine-API-style bearer auth: an
// HS256 token whose issued-at claim is within 5 seconds of the server's
// clock, signed with the shared secret (cmd/geth's own authenticated RPC
// listener follows the same scheme for the engine API).
func withJWTAuth(secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		if tokenStr == auth {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		if claims.IssuedAt == nil || time.Since(claims.IssuedAt.Time).Abs() > 5*time.Second {
			http.Error(w, "stale token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loadJWTSecret(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	secret, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("jwt secret must be hex-encoded: %w", err)
	}
	if len(secret) != 32 {
		return nil, errors.New("jwt secret must be 32 bytes")
	}
	return secret, nil
}

