package archive

import (
	"context"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

const logContentType = "text/plain; charset=utf-8"

type (
	// Config points at an S3 compatible bucket.
	Config struct {
		Endpoint  string `yaml:"endpoint"`
		Bucket    string `yaml:"bucket"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Region    string `yaml:"region,omitempty"`
		UseSSL    bool   `yaml:"use_ssl"`

		// Prefix is prepended to every object key
		Prefix string `yaml:"prefix,omitempty"`
	}

	// ObjectClient is the subset of *minio.Client the archiver uses.
	ObjectClient interface {
		BucketExists(ctx context.Context, bucket string) (bool, error)
		MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
		FPutObject(ctx context.Context, bucket, key, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	}

	// Archiver uploads step logs to object storage.
	Archiver struct {
		client ObjectClient
		cfg    Config

		mu    sync.Mutex
		ready bool
	}
)

// Enabled reports whether an archive is configured.
func (c *Config) Enabled() bool {
	return c != nil && c.Endpoint != ""
}

// Validate checks the fields needed to reach the bucket.
func (c *Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return errors.New("archive endpoint is required")
	case c.Bucket == "":
		return errors.New("archive bucket is required")
	case c.AccessKey == "" || c.SecretKey == "":
		return errors.New("archive access_key and secret_key are required")
	}

	return nil
}

// New creates an Archiver backed by a minio client.
func New(cfg Config) (*Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create object storage client")
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates an Archiver using an existing client.
func NewWithClient(client ObjectClient, cfg Config) *Archiver {
	return &Archiver{client: client, cfg: cfg}
}

// Archive uploads the file at localPath and returns its s3:// URI. The bucket
// is created on first use.
func (a *Archiver) Archive(ctx context.Context, localPath string) (string, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}

	key := a.Key(localPath)
	if _, err := a.client.FPutObject(ctx, a.cfg.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType: logContentType,
	}); err != nil {
		return "", errors.Wrapf(err, "failed to upload %s", localPath)
	}

	return "s3://" + a.cfg.Bucket + "/" + key, nil
}

// Key returns the object key for a local file.
func (a *Archiver) Key(localPath string) string {
	return path.Join(a.cfg.Prefix, filepath.Base(localPath))
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ready {
		return nil
	}

	exists, err := a.client.BucketExists(ctx, a.cfg.Bucket)
	if err != nil {
		return errors.Wrapf(err, "failed to check bucket %s", a.cfg.Bucket)
	}

	if !exists {
		if err := a.client.MakeBucket(ctx, a.cfg.Bucket, minio.MakeBucketOptions{Region: a.cfg.Region}); err != nil {
			return errors.Wrapf(err, "failed to create bucket %s", a.cfg.Bucket)
		}
	}

	a.ready = true
	return nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
