// Package valkey stores collections in a Valkey (Redis-compatible) server.
package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"
)

// Options configure the connection.
type Options struct {
	Addrs    []string
	Password string
	DB       int
	TLS      bool
	Retries  int
}

// KV is a store.KV backed by plain GET/SET.
type KV struct {
	client  valkey.Client
	retries int
	log     *slog.Logger
}

// New connects and pings the server.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*KV, error) {
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("valkey: at least one address is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}

	co := valkey.ClientOption{
		InitAddress:      opts.Addrs,
		Password:         opts.Password,
		SelectDB:         opts.DB,
		ConnWriteTimeout: 5 * time.Second,
	}
	if opts.TLS {
		co.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(co)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	kv := &KV{client: client, retries: opts.Retries, log: logger}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := kv.Ping(pingCtx); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("connected to valkey", slog.Any("addrs", opts.Addrs))
	return kv, nil
}

// Read returns the value under key, or nil when the key does not exist.
func (k *KV) Read(ctx context.Context, key string) ([]byte, error) {
	res := k.doWithRetry(ctx, k.client.B().Get().Key(key).Build())
	b, err := res.AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("valkey get %s: %w", key, err)
	}
	return b, nil
}

// Write replaces the value under key.
func (k *KV) Write(ctx context.Context, key string, value []byte) error {
	cmd := k.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Build()
	if err := k.doWithRetry(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (k *KV) Ping(ctx context.Context) error {
	if err := k.client.Do(ctx, k.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping valkey: %w", err)
	}
	return nil
}

// Close releases the connections.
func (k *KV) Close() {
	k.client.Close()
}

// doWithRetry retries transport failures. A nil reply is a valid answer and is not retried.
func (k *KV) doWithRetry(ctx context.Context, cmd valkey.Completed) valkey.ValkeyResult {
	var res valkey.ValkeyResult
	for attempt := 0; attempt < k.retries; attempt++ {
		res = k.client.Do(ctx, cmd.Pin())
		err := res.Error()
		if err == nil || valkey.IsValkeyNil(err) || ctx.Err() != nil {
			break
		}

		k.log.Warn("valkey command failed",
			slog.Int("attempt", attempt+1),
			slog.Any("err", err),
		)
		select {
		case <-time.After(250 * time.Millisecond):
		case <-ctx.Done():
			return res
		}
	}
	return res
}
