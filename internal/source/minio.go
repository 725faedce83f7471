package source

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig describes an S3-compatible endpoint.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

// NewMinioClient builds a client with static credentials.
func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
}

// Object is a Source over an object in an S3-compatible store.
// Every read is a ranged GET, so block reads never fetch the whole object.
type Object struct {
	client *minio.Client
	bucket string
	key    string
	size   int64
}

// OpenMinio stats bucket/key and returns a Source for it.
func OpenMinio(ctx context.Context, client *minio.Client, bucket, key string) (*Object, error) {
	info, err := client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("stat s3://%s/%s: %w", bucket, key, err)
	}
	return &Object{client: client, bucket: bucket, key: key, size: info.Size}, nil
}

func (o *Object) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	end := off + int64(len(p)) - 1
	if end >= o.size {
		return 0, io.ErrUnexpectedEOF
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, end); err != nil {
		return 0, err
	}
	obj, err := o.client.GetObject(ctx, o.bucket, o.key, opts)
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	return io.ReadFull(obj, p)
}

func (o *Object) Size() int64  { return o.size }
func (o *Object) Name() string { return "s3://" + o.bucket + "/" + o.key }
func (o *Object) Close() error { return nil }
