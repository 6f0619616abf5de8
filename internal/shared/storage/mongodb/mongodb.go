package mongodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/telemetry"
)

// Options controls the client pool.
type Options struct {
	MaxPoolSize    uint64
	MinPoolSize    uint64
	ConnectTimeout time.Duration
	SocketTimeout  time.Duration
	PingTimeout    time.Duration
}

// DefaultOptions suits a single API process.
func DefaultOptions() Options {
	return Options{
		MaxPoolSize:    20,
		MinPoolSize:    2,
		ConnectTimeout: 5 * time.Second,
		SocketTimeout:  10 * time.Second,
		PingTimeout:    3 * time.Second,
	}
}

// Connect opens a client for uri and verifies the primary is reachable.
func Connect(ctx context.Context, uri string, opts Options) (*mongo.Client, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("MONGODB_URI is empty")
	}

	clientOpts := options.Client().ApplyURI(uri).
		SetMaxPoolSize(opts.MaxPoolSize).
		SetMinPoolSize(opts.MinPoolSize).
		SetConnectTimeout(opts.ConnectTimeout).
		SetSocketTimeout(opts.SocketTimeout)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	if err := Ping(ctx, client, opts.PingTimeout); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	telemetry.Info("mongodb connected", nil)
	return client, nil
}

// Ping checks that the primary answers within timeout.
func Ping(ctx context.Context, client *mongo.Client, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongodb: %w", err)
	}
	return nil
}
