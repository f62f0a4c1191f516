// Package objstore uploads pipeline artifacts to a MinIO (S3 API)
// bucket and mints the URLs recorded on layer rows. Object names follow
// layers/{layer_id}/{file} so a whole layer can be dropped with one
// prefix delete.
package objstore

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/pkg/errors"
)

// Config holds the MinIO connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string

	// Secure selects https URLs; development MinIO runs plain http.
	Secure bool
}

// Store accesses the artifact bucket.
type Store struct {
	svc      s3iface.S3API
	uploader s3manageriface.UploaderAPI
	cfg      Config
}

// New returns a Store talking to the configured MinIO endpoint with
// path-style addressing, which MinIO requires.
func New(cfg Config) (*Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String("us-east-1"),
		Endpoint:         aws.String(endpointURL(cfg)),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
		DisableSSL:       aws.Bool(!cfg.Secure),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed constructing object store session")
	}
	return &Store{
		svc:      s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		cfg:      cfg,
	}, nil
}

func endpointURL(cfg Config) string {
	scheme := "http"
	if cfg.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
}

// EnsureBucket creates the configured bucket if it does not exist.
// Safe to call on every startup.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.svc.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); !ok || (aerr.Code() != s3.ErrCodeNoSuchBucket && aerr.Code() != "NotFound") {
		return errors.Wrapf(err, "failed checking bucket %s", s.cfg.Bucket)
	}
	if _, err := s.svc.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.cfg.Bucket)}); err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeBucketAlreadyOwnedByYou {
			return nil
		}
		return errors.Wrapf(err, "failed creating bucket %s", s.cfg.Bucket)
	}
	return nil
}

// ObjectName returns the canonical object key for a layer artifact.
func ObjectName(layerID, file string) string {
	return fmt.Sprintf("layers/%s/%s", layerID, file)
}

// Put uploads the file at localPath under objectName and returns the
// stable URL of the object. Bytes are uploaded verbatim; content type
// comes from the extension only.
func (s *Store) Put(ctx context.Context, localPath, objectName string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrapf(err, "failed opening artifact %s", localPath)
	}
	defer f.Close()

	in := &s3manager.UploadInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(objectName),
		Body:   f,
	}
	if ct := contentType(objectName); ct != "" {
		in.ContentType = aws.String(ct)
	}
	if _, err := s.uploader.UploadWithContext(ctx, in); err != nil {
		return "", errors.Wrapf(err, "failed uploading %s to s3://%s/%s", localPath, s.cfg.Bucket, objectName)
	}
	return s.URL(objectName), nil
}

// URL returns the public URL of an object in the bucket.
func (s *Store) URL(objectName string) string {
	return fmt.Sprintf("%s/%s/%s", endpointURL(s.cfg), s.cfg.Bucket, objectName)
}

// DeletePrefix removes every object under prefix, in batches of up to
// 1000 (the S3 api limit). Returns the number of objects deleted.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys := []*string{}
	if err := s.svc.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	}, func(p *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, o := range p.Contents {
			keys = append(keys, o.Key)
		}
		return true
	}); err != nil {
		return 0, errors.Wrapf(err, "failed listing objects under %s", prefix)
	}

	for i := 0; i < len(keys); i += 1000 {
		toDel := &s3.DeleteObjectsInput{
			Bucket: aws.String(s.cfg.Bucket),
			Delete: &s3.Delete{Objects: []*s3.ObjectIdentifier{}},
		}
		for j := i; j < i+1000 && j < len(keys); j++ {
			toDel.Delete.Objects = append(toDel.Delete.Objects, &s3.ObjectIdentifier{Key: keys[j]})
		}
		if _, err := s.svc.DeleteObjectsWithContext(ctx, toDel); err != nil {
			return 0, errors.Wrapf(err, "failed deleting objects under %s", prefix)
		}
	}
	return len(keys), nil
}

func contentType(objectName string) string {
	switch ext := strings.ToLower(filepath.Ext(objectName)); ext {
	case ".tif", ".tiff":
		return "image/tiff"
	case ".png":
		return "image/png"
	case ".json":
		return "application/json"
	case ".pgw", ".prj":
		return "text/plain"
	default:
		return mime.TypeByExtension(ext)
	}
}
