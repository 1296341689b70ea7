package mocks

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/mock"
)

// MockS3Client provides a mock implementation of the S3 client surface used
// to read migration scripts from a bucket.
type MockS3Client struct {
	mock.Mock
}

// ListObjectsV2 mocks the S3 ListObjectsV2 operation
func (m *MockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	output, ok := args.Get(0).(*s3.ListObjectsV2Output)
	if !ok {
		panic("unexpected type: expected *s3.ListObjectsV2Output")
	}
	return output, args.Error(1)
}

// GetObject mocks the S3 GetObject operation
func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	output, ok := args.Get(0).(*s3.GetObjectOutput)
	if !ok {
		panic("unexpected type: expected *s3.GetObjectOutput")
	}
	return output, args.Error(1)
}

// NewMockGetObjectOutput wraps body as a GetObject response.
func NewMockGetObjectOutput(body string) *s3.GetObjectOutput {
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}
}
