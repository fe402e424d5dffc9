package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

const presignExpiry = 24 * time.Hour

type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL, when set, is used as the URL prefix instead of presigned
	// links.
	PublicURL string
}

// S3 keeps the working copy on local disk and mirrors saved files into a
// bucket.
type S3 struct {
	local  *LocalFS
	client *minio.Client
	bucket string
	public string
	log    *logrus.Entry
}

func NewS3(ctx context.Context, opts S3Options, local *LocalFS, log *logrus.Entry) (*S3, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		log.Infoln("creating bucket", opts.Bucket)
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket %s: %w", opts.Bucket, err)
		}
	}
	return &S3{
		local:  local,
		client: client,
		bucket: opts.Bucket,
		public: strings.TrimRight(opts.PublicURL, "/"),
		log:    log,
	}, nil
}

func (s *S3) LocalPath(key string) string {
	return s.local.LocalPath(key)
}

func (s *S3) EnsureJobDir(jobID string) (string, error) {
	return s.local.EnsureJobDir(jobID)
}

func (s *S3) SaveFile(ctx context.Context, key, localPath string) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.local.SaveFile(ctx, clean, localPath); err != nil {
		return err
	}
	contentType := mime.TypeByExtension(path.Ext(clean))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := s.client.FPutObject(ctx, s.bucket, clean, s.local.LocalPath(clean), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	s.log.Debugf("uploaded %s (%d bytes)", clean, info.Size)
	return nil
}

func (s *S3) DeleteFile(ctx context.Context, key string) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.local.DeleteFile(ctx, clean); err != nil {
		return err
	}
	// a job directory key removes everything below it
	if path.Ext(clean) == "" {
		return s.deletePrefix(ctx, clean+"/")
	}
	if err := s.client.RemoveObject(ctx, s.bucket, clean, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("s3 remove object: %w", err)
	}
	return nil
}

func (s *S3) deletePrefix(ctx context.Context, prefix string) error {
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	var errs []error
	for res := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}

func (s *S3) DeleteFiles(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := s.DeleteFile(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *S3) FileExists(ctx context.Context, key string) (bool, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.StatObject(ctx, s.bucket, clean, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("s3 stat object: %w", err)
	}
	return true, nil
}

func (s *S3) GetFileURL(ctx context.Context, key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.public != "" {
		return url.JoinPath(s.public, strings.Split(clean, "/")...)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, clean, presignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigned get object: %w", err)
	}
	return u.String(), nil
}
