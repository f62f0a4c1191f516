package objstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

type fakeS3 struct {
	s3iface.S3API
	bucketExists bool
	created      []string
	objects      []string
	deleted      []string
}

func (f *fakeS3) HeadBucketWithContext(ctx aws.Context, in *s3.HeadBucketInput, opts ...request.Option) (*s3.HeadBucketOutput, error) {
	if f.bucketExists {
		return &s3.HeadBucketOutput{}, nil
	}
	return nil, awserr.New("NotFound", "no such bucket", nil)
}

func (f *fakeS3) CreateBucketWithContext(ctx aws.Context, in *s3.CreateBucketInput, opts ...request.Option) (*s3.CreateBucketOutput, error) {
	f.created = append(f.created, *in.Bucket)
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error {
	out := &s3.ListObjectsV2Output{}
	for _, k := range f.objects {
		k := k
		out.Contents = append(out.Contents, &s3.Object{Key: &k})
	}
	fn(out, true)
	return nil
}

func (f *fakeS3) DeleteObjectsWithContext(ctx aws.Context, in *s3.DeleteObjectsInput, opts ...request.Option) (*s3.DeleteObjectsOutput, error) {
	for _, o := range in.Delete.Objects {
		f.deleted = append(f.deleted, *o.Key)
	}
	return &s3.DeleteObjectsOutput{}, nil
}

type fakeUploader struct {
	s3manageriface.UploaderAPI
	uploads []s3manager.UploadInput
}

func (f *fakeUploader) UploadWithContext(ctx aws.Context, in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	f.uploads = append(f.uploads, *in)
	return &s3manager.UploadOutput{}, nil
}

func newTestStore(svc s3iface.S3API, up s3manageriface.UploaderAPI) *Store {
	return &Store{
		svc:      svc,
		uploader: up,
		cfg: Config{
			Endpoint: "localhost:9000",
			Bucket:   "binaa-layers",
		},
	}
}

func TestObjectName(t *testing.T) {
	got := ObjectName("layer_1700000000_abcd1234", "layer_1700000000_abcd1234.tif")
	want := "layers/layer_1700000000_abcd1234/layer_1700000000_abcd1234.tif"
	if got != want {
		t.Fatalf("ObjectName = %q, want %q", got, want)
	}
}

func TestPutSetsContentTypeAndURL(t *testing.T) {
	up := &fakeUploader{}
	s := newTestStore(&fakeS3{}, up)

	local := filepath.Join(t.TempDir(), "preview.png")
	if err := os.WriteFile(local, []byte("png bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	url, err := s.Put(context.Background(), local, "layers/l1/l1.png")
	if err != nil {
		t.Fatal(err)
	}
	if url != "http://localhost:9000/binaa-layers/layers/l1/l1.png" {
		t.Fatalf("url = %q", url)
	}
	if len(up.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(up.uploads))
	}
	in := up.uploads[0]
	if *in.Bucket != "binaa-layers" || *in.Key != "layers/l1/l1.png" {
		t.Fatalf("uploaded to %s/%s", *in.Bucket, *in.Key)
	}
	if in.ContentType == nil || *in.ContentType != "image/png" {
		t.Fatalf("content type = %v, want image/png", in.ContentType)
	}
}

func TestEnsureBucketCreatesMissing(t *testing.T) {
	svc := &fakeS3{bucketExists: false}
	s := newTestStore(svc, &fakeUploader{})
	if err := s.EnsureBucket(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(svc.created) != 1 || svc.created[0] != "binaa-layers" {
		t.Fatalf("created buckets = %v", svc.created)
	}
}

func TestEnsureBucketSkipsExisting(t *testing.T) {
	svc := &fakeS3{bucketExists: true}
	s := newTestStore(svc, &fakeUploader{})
	if err := s.EnsureBucket(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(svc.created) != 0 {
		t.Fatalf("bucket recreated: %v", svc.created)
	}
}

func TestDeletePrefix(t *testing.T) {
	svc := &fakeS3{objects: []string{
		"layers/l1/l1.tif",
		"layers/l1/l1.png",
		"layers/l1/metadata.json",
	}}
	s := newTestStore(svc, &fakeUploader{})

	n, err := s.DeletePrefix(context.Background(), "layers/l1/")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("deleted %d objects, want 3", n)
	}
	if len(svc.deleted) != 3 {
		t.Fatalf("delete calls = %v", svc.deleted)
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"l.tif", "image/tiff"},
		{"l.tiff", "image/tiff"},
		{"l.png", "image/png"},
		{"metadata.json", "application/json"},
		{"l.pgw", "text/plain"},
		{"l.prj", "text/plain"},
	}
	for _, tt := range tests {
		if got := contentType(tt.name); got != tt.want {
			t.Errorf("contentType(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
