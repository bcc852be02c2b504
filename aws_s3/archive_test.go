package aws_s3

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/gc"
)

// TestArchiveRoundTrip exercises the cold-archive tier against a local
// S3-API endpoint (e.g. LocalStack on 127.0.0.1:4566); it skips when one
// isn't reachable.
func TestArchiveRoundTrip(t *testing.T) {
	client := Connect(Config{
		HostEndpointUrl: "http://127.0.0.1:4566",
		Region:          "us-east-1",
		Username:        "test",
		Password:        "test",
	})
	ctx := context.Background()
	if _, err := client.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		t.Skipf("s3-api endpoint not reachable: %v", err)
	}

	mgr, err := NewBucketManager(client, "us-east-1")
	if err != nil {
		t.Fatalf("NewBucketManager: %v", err)
	}
	const bucket = "localstore-archive-test"
	_ = mgr.CreateArchiveBucket(ctx, bucket)
	defer mgr.RemoveArchiveBucket(ctx, bucket)

	store := NewArchiveStore(client, bucket)
	key := localstore.NewDocumentKey("rooms/1")
	doc := localstore.NewDocument(key, 7, localstore.Fields{"name": "lobby"}, false)

	if err := store.Archive(ctx, doc); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, ok, err := store.Retrieve(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Retrieve() = %v, %v, %v", got, ok, err)
	}
	if got.Fields["name"] != "lobby" {
		t.Fatalf("Retrieve() fields = %v", got.Fields)
	}

	if err := store.Purge(ctx, key); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, ok, _ := store.Retrieve(ctx, key); ok {
		t.Fatalf("Retrieve() after Purge should miss")
	}
}

func TestSweepArchiverImplementsArchiver(t *testing.T) {
	var _ gc.Archiver = SweepArchiver{}
}
