package migrate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/columntheory/pkg/mocks"
)

func TestDirSourceFS(t *testing.T) {
	src := &DirSource{FS: fstest.MapFS{
		"0001_users.up.sql":    {Data: []byte("CREATE TABLE users (id TEXT)")},
		"0001_users.down.sql":  {Data: []byte("DROP TABLE users")},
		"README.md":            {Data: []byte("ignored")},
		"nested/0002_x.up.sql": {Data: []byte("ignored")},
	}}

	got, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Migration{Version: "0001", Name: "users", Up: "CREATE TABLE users (id TEXT)", Down: "DROP TABLE users"}, got[0])
}

func TestDirSourceDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2_b.up.sql"), []byte("B"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_a.up.sql"), []byte("A"), 0o600))

	got, err := NewDirSource(dir).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)

	_, err = NewDirSource(filepath.Join(dir, "missing")).Load(context.Background())
	assert.Error(t, err)
}

func TestS3SourcePaginates(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.MockS3Client)

	client.On("ListObjectsV2", ctx, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return in.ContinuationToken == nil && aws.ToString(in.Prefix) == "warehouse/"
	}), mock.Anything).Return(&s3.ListObjectsV2Output{
		Contents: []s3types.Object{
			{Key: aws.String("warehouse/0001_users.up.sql")},
			{Key: aws.String("warehouse/archive/0000_old.up.sql")},
		},
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("next"),
	}, nil).Once()
	client.On("ListObjectsV2", ctx, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.ContinuationToken) == "next"
	}), mock.Anything).Return(&s3.ListObjectsV2Output{
		Contents:    []s3types.Object{{Key: aws.String("warehouse/0001_users.down.sql")}},
		IsTruncated: aws.Bool(false),
	}, nil).Once()
	client.On("GetObject", ctx, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Key) == "warehouse/0001_users.up.sql"
	}), mock.Anything).Return(mocks.NewMockGetObjectOutput("CREATE TABLE users (id TEXT)"), nil).Once()
	client.On("GetObject", ctx, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Key) == "warehouse/0001_users.down.sql"
	}), mock.Anything).Return(mocks.NewMockGetObjectOutput("DROP TABLE users"), nil).Once()

	src := &S3Source{Client: client, Bucket: "scripts", Prefix: "warehouse/"}
	got, err := src.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "DROP TABLE users", got[0].Down)
	client.AssertExpectations(t)
}

func TestS3SourceErrors(t *testing.T) {
	_, err := (&S3Source{}).Load(context.Background())
	assert.Error(t, err)

	client := new(mocks.MockS3Client)
	client.On("ListObjectsV2", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("denied"))
	_, err = (&S3Source{Client: client, Bucket: "b"}).Load(context.Background())
	assert.ErrorContains(t, err, "denied")
}
