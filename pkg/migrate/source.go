package migrate

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/theory-cloud/columntheory/pkg/interfaces"
)

// Source lists the available migrations in version order.
type Source interface {
	Load(ctx context.Context) ([]Migration, error)
}

// DirSource reads scripts from a directory. Files that are not .up.sql or
// .down.sql are ignored.
type DirSource struct {
	FS  fs.FS
	Dir string
}

// NewDirSource reads scripts from dir on the local filesystem.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir, FS: os.DirFS(dir)}
}

func (s *DirSource) Load(_ context.Context) ([]Migration, error) {
	fsys := s.FS
	if fsys == nil {
		fsys = os.DirFS(s.Dir)
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", s.Dir, err)
	}

	files := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !isScript(entry.Name()) {
			continue
		}
		body, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		files[entry.Name()] = string(body)
	}
	return assemble(files)
}

// S3Source reads scripts stored under a bucket prefix.
type S3Source struct {
	Client interfaces.S3API
	Bucket string
	Prefix string
}

func (s *S3Source) Load(ctx context.Context) ([]Migration, error) {
	if s.Client == nil || s.Bucket == "" {
		return nil, fmt.Errorf("s3 migration source: client and bucket are required")
	}

	var keys []string
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.Bucket)}
	if s.Prefix != "" {
		input.Prefix = aws.String(s.Prefix)
	}
	for {
		out, err := s.Client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.Bucket, s.Prefix, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			// Only direct children of the prefix are scripts.
			rel := strings.TrimPrefix(strings.TrimPrefix(key, s.Prefix), "/")
			if strings.Contains(rel, "/") || !isScript(rel) {
				continue
			}
			keys = append(keys, key)
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}

	files := make(map[string]string, len(keys))
	for _, key := range keys {
		body, err := s.read(ctx, key)
		if err != nil {
			return nil, err
		}
		files[path.Base(key)] = body
	}
	return assemble(files)
}

func (s *S3Source) read(ctx context.Context, key string) (string, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("get s3://%s/%s: %w", s.Bucket, key, err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("read s3://%s/%s: %w", s.Bucket, key, err)
	}
	return string(body), nil
}
