// Package lease provides a DynamoDB backed lock that keeps two processes from
// applying warehouse migrations at the same time.
//
// A lock is one item keyed by its name. Acquire writes it conditionally, so it
// succeeds only when no item exists or the previous holder's lease expired.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/theory-cloud/columntheory/pkg/interfaces"
)

// Lease is a held lock.
type Lease struct {
	Name      string
	Token     string
	ExpiresAt int64
}

type Manager struct {
	client interfaces.DynamoDBAPI
	logger *slog.Logger

	tableName string

	nameAttr      string
	tokenAttr     string
	expiresAtAttr string
	ttlAttr       string

	now       func() time.Time
	token     func() string
	duration  time.Duration
	ttlBuffer time.Duration
}

type Option func(*Manager)

const (
	DefaultNameAttribute      = "lock_name"
	DefaultTokenAttribute     = "lease_token"
	DefaultExpiresAtAttribute = "lease_expires_at"
	DefaultTTLAttribute       = "ttl"
	DefaultDuration           = 15 * time.Minute
	DefaultTTLBuffer          = time.Hour
)

func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithTokenGenerator(token func() string) Option {
	return func(m *Manager) {
		if token != nil {
			m.token = token
		}
	}
}

// WithDuration sets how long Lock holds a lease between refreshes.
func WithDuration(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.duration = d
		}
	}
}

// WithTTLBuffer sets how long after expiry DynamoDB TTL may reap the item.
// Zero omits the TTL attribute.
func WithTTLBuffer(buffer time.Duration) Option {
	return func(m *Manager) {
		m.ttlBuffer = buffer
	}
}

func WithAttributeNames(nameAttr, tokenAttr, expiresAtAttr, ttlAttr string) Option {
	return func(m *Manager) {
		if nameAttr != "" {
			m.nameAttr = nameAttr
		}
		if tokenAttr != "" {
			m.tokenAttr = tokenAttr
		}
		if expiresAtAttr != "" {
			m.expiresAtAttr = expiresAtAttr
		}
		if ttlAttr != "" {
			m.ttlAttr = ttlAttr
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(client interfaces.DynamoDBAPI, tableName string, opts ...Option) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("lease manager: client is required")
	}
	if tableName == "" {
		return nil, fmt.Errorf("lease manager: tableName is required")
	}

	m := &Manager{
		client:    client,
		logger:    slog.Default(),
		tableName: tableName,

		nameAttr:      DefaultNameAttribute,
		tokenAttr:     DefaultTokenAttribute,
		expiresAtAttr: DefaultExpiresAtAttribute,
		ttlAttr:       DefaultTTLAttribute,

		now:       time.Now,
		token:     uuid.NewString,
		duration:  DefaultDuration,
		ttlBuffer: DefaultTTLBuffer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Acquire takes the named lock for duration. It returns *LeaseHeldError when
// another holder's lease has not expired.
func (m *Manager) Acquire(ctx context.Context, name string, duration time.Duration) (*Lease, error) {
	if name == "" {
		return nil, fmt.Errorf("lease manager: lock name is required")
	}
	if duration <= 0 {
		return nil, fmt.Errorf("lease manager: duration must be > 0")
	}

	now := m.now()
	expiresAt := now.Add(duration).Unix()
	token := m.token()

	item := map[string]types.AttributeValue{
		m.nameAttr:      &types.AttributeValueMemberS{Value: name},
		m.tokenAttr:     &types.AttributeValueMemberS{Value: token},
		m.expiresAtAttr: number(expiresAt),
	}
	if m.ttlBuffer > 0 {
		item[m.ttlAttr] = number(expiresAt + int64(m.ttlBuffer.Seconds()))
	}

	_, err := m.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(m.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#name) OR #expires <= :now"),
		ExpressionAttributeNames: map[string]string{
			"#name":    m.nameAttr,
			"#expires": m.expiresAtAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": number(now.Unix()),
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return nil, &LeaseHeldError{Name: name}
		}
		return nil, fmt.Errorf("lease manager: acquire %s: %w", name, err)
	}
	return &Lease{Name: name, Token: token, ExpiresAt: expiresAt}, nil
}

// Refresh extends a held lease. It returns *LeaseNotOwnedError when the lease
// expired or was taken over.
func (m *Manager) Refresh(ctx context.Context, lease Lease, duration time.Duration) (*Lease, error) {
	if lease.Name == "" || lease.Token == "" {
		return nil, fmt.Errorf("lease manager: lock name and token are required")
	}
	if duration <= 0 {
		return nil, fmt.Errorf("lease manager: duration must be > 0")
	}

	now := m.now()
	expiresAt := now.Add(duration).Unix()

	names := map[string]string{
		"#token":   m.tokenAttr,
		"#expires": m.expiresAtAttr,
	}
	values := map[string]types.AttributeValue{
		":token": &types.AttributeValueMemberS{Value: lease.Token},
		":now":   number(now.Unix()),
		":exp":   number(expiresAt),
	}
	update := "SET #expires = :exp"
	if m.ttlBuffer > 0 {
		names["#ttl"] = m.ttlAttr
		values[":ttl"] = number(expiresAt + int64(m.ttlBuffer.Seconds()))
		update += ", #ttl = :ttl"
	}

	_, err := m.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(m.tableName),
		Key:                       m.key(lease.Name),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String("#token = :token AND #expires > :now"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return nil, &LeaseNotOwnedError{Name: lease.Name}
		}
		return nil, fmt.Errorf("lease manager: refresh %s: %w", lease.Name, err)
	}

	out := lease
	out.ExpiresAt = expiresAt
	return &out, nil
}

// Release deletes the lock if the token still owns it. Losing the lock
// before release is not an error.
func (m *Manager) Release(ctx context.Context, lease Lease) error {
	if lease.Name == "" || lease.Token == "" {
		return fmt.Errorf("lease manager: lock name and token are required")
	}

	_, err := m.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(m.tableName),
		Key:                      m.key(lease.Name),
		ConditionExpression:      aws.String("#token = :token"),
		ExpressionAttributeNames: map[string]string{"#token": m.tokenAttr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":token": &types.AttributeValueMemberS{Value: lease.Token},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return nil
		}
		return fmt.Errorf("lease manager: release %s: %w", lease.Name, err)
	}
	return nil
}

// Lock acquires name and keeps refreshing it in the background until the
// returned release func is called. A failed refresh is logged; the holder
// keeps running and release becomes a no-op on the server side.
func (m *Manager) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	held, err := m.Acquire(ctx, name, m.duration)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	current := *held

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.duration / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				next, err := m.Refresh(context.Background(), current, m.duration)
				if err != nil {
					m.logger.Warn("lock refresh failed", slog.String("lock", name), slog.Any("error", err))
					if IsLeaseNotOwned(err) {
						return
					}
					continue
				}
				current = *next
			}
		}
	}()

	return func(ctx context.Context) error {
		close(stop)
		<-done
		return m.Release(ctx, current)
	}, nil
}

func (m *Manager) key(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		m.nameAttr: &types.AttributeValueMemberS{Value: name},
	}
}

func number(v int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func isConditionalCheckFailed(err error) bool {
	var cfe *types.ConditionalCheckFailedException
	return errors.As(err, &cfe)
}
