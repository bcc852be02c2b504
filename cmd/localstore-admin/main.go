// Command localstore-admin runs the read-only admin API against a
// persistent-regime LocalStore backed by Cassandra, Redis, and an S3-API
// cold-archive bucket, all configured from environment variables.
// LOCALSTORE_FS_DOCS_DIR switches to a single-node regime instead: a
// directio-backed filesystem RemoteDocumentCache with in-process
// queue/target bookkeeping, for a deployment with no cluster to reach.
package main

import (
	"fmt"
	"log/slog"
	"os"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/admin"
	"github.com/sharedcode/localstore/auth"
	"github.com/sharedcode/localstore/aws_s3"
	"github.com/sharedcode/localstore/cassandra"
	"github.com/sharedcode/localstore/filesystem"
	"github.com/sharedcode/localstore/gc"
	"github.com/sharedcode/localstore/mutationqueue"
	"github.com/sharedcode/localstore/redis"
	"github.com/sharedcode/localstore/store"
	"github.com/sharedcode/localstore/targetcache"
)

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func main() {
	localstore.ConfigureLogging()

	userID := envOr("LOCALSTORE_USER_ID", "dev-user")

	var cfg store.Config
	if fsDir := os.Getenv("LOCALSTORE_FS_DOCS_DIR"); fsDir != "" {
		// Single-node regime: no Cassandra/Redis cluster to reach, so the
		// RemoteDocumentCache is a directio-backed DocumentStore and the
		// queue/target bookkeeping stay in-process.
		if err := os.MkdirAll(fsDir, 0o755); err != nil {
			slog.Error("creating filesystem document store dir", "error", err)
			os.Exit(1)
		}
		cfg = store.Config{
			RemoteCache: filesystem.NewDocumentStore(fsDir),
			Targets:     targetcache.New(),
			Queue:       mutationqueue.New(),
			GC:          gc.Deferred{},
		}
	} else {
		redisClient := redis.NewConnectionClient(redis.Options{
			Address:  envOr("LOCALSTORE_REDIS_ADDRESS", "localhost:6379"),
			Password: os.Getenv("LOCALSTORE_REDIS_PASSWORD"),
		})

		cassConn, err := cassandra.OpenConnection(cassandra.Config{
			ClusterHosts: []string{envOr("LOCALSTORE_CASSANDRA_HOST", "localhost:9042")},
			Keyspace:     envOr("LOCALSTORE_CASSANDRA_KEYSPACE", "localstore"),
		})
		if err != nil {
			slog.Error("connecting to cassandra", "error", err)
			os.Exit(1)
		}
		defer cassandra.CloseConnection()
		_ = cassConn

		cfg = store.Config{
			RemoteCache: cassandra.NewDocumentTable(redisClient),
			Targets:     cassandra.NewTargetTable(),
			Queue:       cassandra.NewMutationLog(userID),
			GC:          gc.Deferred{},
		}
	}

	if bucket := os.Getenv("LOCALSTORE_ARCHIVE_BUCKET"); bucket != "" {
		s3Client := aws_s3.Connect(aws_s3.Config{
			HostEndpointUrl: os.Getenv("LOCALSTORE_S3_ENDPOINT"),
			Region:          envOr("LOCALSTORE_S3_REGION", "us-east-1"),
			Username:        os.Getenv("LOCALSTORE_S3_ACCESS_KEY"),
			Password:        os.Getenv("LOCALSTORE_S3_SECRET_KEY"),
		})
		archiveStore := aws_s3.NewArchiveStore(s3Client, bucket)
		cfg.Archiver = aws_s3.SweepArchiver{Store: archiveStore}
	}

	s := store.New(cfg)

	verifier := auth.NewVerifier(auth.Config{
		OktaDomain:   os.Getenv("OKTA_DOMAIN"),
		OktaClientID: os.Getenv("OKTA_CLIENT_ID"),
	})

	srv := admin.New(s, verifier)
	addr := envOr("LOCALSTORE_ADMIN_ADDR", "localhost:8080")
	slog.Info("admin API listening", "addr", addr)
	if err := srv.Run(addr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
