package migrate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/theory-cloud/columntheory/pkg/interfaces"
)

// DynamoLedger keeps records in a DynamoDB table partitioned by ledger name,
// so several warehouses can share one table.
//
// Table keys: "ledger" (S, partition) and "version" (S, sort).
type DynamoLedger struct {
	client interfaces.DynamoDBAPI
	table  string
	name   string
}

const (
	attrLedger    = "ledger"
	attrVersion   = "version"
	attrName      = "name"
	attrChecksum  = "checksum"
	attrAppliedAt = "applied_at"
)

// NewDynamoLedger stores records for ledger name in table.
func NewDynamoLedger(client interfaces.DynamoDBAPI, table, name string) *DynamoLedger {
	return &DynamoLedger{client: client, table: table, name: name}
}

func (l *DynamoLedger) Applied(ctx context.Context) ([]Record, error) {
	input := &dynamodb.QueryInput{
		TableName:                aws.String(l.table),
		KeyConditionExpression:   aws.String("#ledger = :ledger"),
		ExpressionAttributeNames: map[string]string{"#ledger": attrLedger},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":ledger": &ddbtypes.AttributeValueMemberS{Value: l.name},
		},
		ConsistentRead: aws.Bool(true),
	}

	var out []Record
	for {
		page, err := l.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query ledger %s: %w", l.table, err)
		}
		for _, item := range page.Items {
			rec, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sortByVersion(out, func(r Record) string { return r.Version })
	return out, nil
}

func (l *DynamoLedger) Record(ctx context.Context, rec Record) error {
	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.table),
		Item: map[string]ddbtypes.AttributeValue{
			attrLedger:    &ddbtypes.AttributeValueMemberS{Value: l.name},
			attrVersion:   &ddbtypes.AttributeValueMemberS{Value: rec.Version},
			attrName:      &ddbtypes.AttributeValueMemberS{Value: rec.Name},
			attrChecksum:  &ddbtypes.AttributeValueMemberS{Value: rec.Checksum},
			attrAppliedAt: &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(rec.AppliedAt.UnixMilli(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("record migration %s: %w", rec.Version, err)
	}
	return nil
}

func (l *DynamoLedger) Remove(ctx context.Context, version string) error {
	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.table),
		Key: map[string]ddbtypes.AttributeValue{
			attrLedger:  &ddbtypes.AttributeValueMemberS{Value: l.name},
			attrVersion: &ddbtypes.AttributeValueMemberS{Value: version},
		},
	})
	if err != nil {
		return fmt.Errorf("remove migration %s: %w", version, err)
	}
	return nil
}

func decodeItem(item map[string]ddbtypes.AttributeValue) (Record, error) {
	str := func(key string) string {
		if v, ok := item[key].(*ddbtypes.AttributeValueMemberS); ok {
			return v.Value
		}
		return ""
	}
	rec := Record{Version: str(attrVersion), Name: str(attrName), Checksum: str(attrChecksum)}
	if n, ok := item[attrAppliedAt].(*ddbtypes.AttributeValueMemberN); ok {
		ms, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("ledger item %s: bad applied_at %q", rec.Version, n.Value)
		}
		rec.AppliedAt = time.UnixMilli(ms).UTC()
	}
	return rec, nil
}
