package aws_s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/gc"
)

var _ gc.Archiver = (*SweepArchiver)(nil)

// ArchiveStore writes swept documents to an S3-API bucket as a durability
// net for the deferred garbage collector: a document eager GC would delete
// outright lands here first, recoverable for as long as the bucket retains it.
type ArchiveStore struct {
	client     *s3.Client
	bucketName string
	marshaler  localstore.Marshaler
}

// NewArchiveStore returns an ArchiveStore writing to bucketName.
func NewArchiveStore(client *s3.Client, bucketName string) *ArchiveStore {
	return &ArchiveStore{client: client, bucketName: bucketName, marshaler: localstore.NewMarshaler()}
}

type archivedDoc struct {
	Type    localstore.DocumentType
	Version localstore.SnapshotVersion
	Fields  localstore.Fields
}

// Archive writes doc to the bucket keyed by its document path, one object
// per swept document.
func (a *ArchiveStore) Archive(ctx context.Context, doc localstore.MaybeDocument) error {
	body, err := a.marshaler.Marshal(archivedDoc{Type: doc.Type, Version: doc.Version, Fields: doc.Fields})
	if err != nil {
		return fmt.Errorf("aws_s3: encoding %s for archive: %w", doc.Key, err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(doc.Key.String()),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("aws_s3: archiving %s: %w", doc.Key, err)
	}
	return nil
}

// SweepArchiver adapts an ArchiveStore to gc.Archiver, which has no context
// parameter: a deferred sweep runs off the request path, so it archives with
// a background context rather than threading one through gc.Collector.
type SweepArchiver struct {
	Store *ArchiveStore
}

// Archive implements gc.Archiver.
func (s SweepArchiver) Archive(doc localstore.MaybeDocument) error {
	return s.Store.Archive(context.Background(), doc)
}

// Retrieve reads back an archived document, if present.
func (a *ArchiveStore) Retrieve(ctx context.Context, key localstore.DocumentKey) (localstore.MaybeDocument, bool, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key.String()),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return localstore.MaybeDocument{}, false, nil
		}
		return localstore.MaybeDocument{}, false, fmt.Errorf("aws_s3: retrieving %s: %w", key, err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return localstore.MaybeDocument{}, false, fmt.Errorf("aws_s3: reading %s: %w", key, err)
	}
	var ad archivedDoc
	if err := a.marshaler.Unmarshal(body, &ad); err != nil {
		return localstore.MaybeDocument{}, false, fmt.Errorf("aws_s3: decoding %s: %w", key, err)
	}
	return localstore.MaybeDocument{Type: ad.Type, Key: key, Version: ad.Version, Fields: ad.Fields}, true, nil
}

// Purge permanently deletes an archived document past its retention window.
func (a *ArchiveStore) Purge(ctx context.Context, key localstore.DocumentKey) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key.String()),
	})
	if err != nil {
		return fmt.Errorf("aws_s3: purging %s: %w", key, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	type apiError interface{ ErrorCode() string }
	var ae apiError
	if errors.As(err, &ae) {
		return ae.ErrorCode() == "NoSuchKey"
	}
	return false
}
