package columndb

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
)

// DefaultLambdaBuffer is kept free before the invocation deadline so a slow
// warehouse job fails with a context error instead of a Lambda timeout.
const DefaultLambdaBuffer = time.Second

// IsLambdaEnvironment reports whether the process runs inside AWS Lambda.
func IsLambdaEnvironment() bool {
	return lambdacontext.FunctionName != ""
}

// LambdaMemoryMB returns the configured function memory, or 0 outside Lambda.
func LambdaMemoryMB() int {
	return lambdacontext.MemoryLimitInMB
}

// LambdaContext returns ctx with its deadline moved earlier by buffer. A
// context without a deadline, or one already inside the buffer, is only
// made cancelable.
func LambdaContext(ctx context.Context, buffer time.Duration) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok || buffer <= 0 {
		return context.WithCancel(ctx)
	}
	adjusted := deadline.Add(-buffer)
	if !adjusted.After(time.Now()) {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, adjusted)
}

// LambdaContext applies the DB's configured buffer to ctx.
func (db *DB) LambdaContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return LambdaContext(ctx, db.lambdaBuffer)
}

// log returns the DB logger, tagged with the Lambda request id when ctx
// belongs to an invocation.
func (db *DB) log(ctx context.Context) *slog.Logger {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return db.logger.With("request_id", lc.AwsRequestID)
	}
	return db.logger
}
