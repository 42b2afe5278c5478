package userstore

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Compile-time check that DynamoStore implements Store.
var _ Store = (*DynamoStore)(nil)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	dynamodb.ScanAPIClient
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore is a Store backed by two DynamoDB tables: users keyed by the
// numeric "id" and counters keyed by the string "name".
type DynamoStore struct {
	client        DynamoAPI
	usersTable    string
	countersTable string
	pageLimit     int32
}

type counterItem struct {
	Name  string `dynamodbav:"name"`
	Value int64  `dynamodbav:"value"`
}

// NewDynamoClient builds a DynamoDB client from the default AWS credential
// chain. A non-empty endpoint points it at a local emulator.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewDynamoStore creates a DynamoStore over existing tables.
func NewDynamoStore(client DynamoAPI, usersTable, countersTable string) *DynamoStore {
	return &DynamoStore{
		client:        client,
		usersTable:    usersTable,
		countersTable: countersTable,
		pageLimit:     defaultPageSize,
	}
}

func userKey(id int64) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.Marshal(id)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{"id": av}, nil
}

// Upsert implements Store. joined_at is only written when absent.
func (s *DynamoStore) Upsert(ctx context.Context, u User) error {
	if u.ID == 0 {
		return ErrInvalidUser
	}
	if u.JoinedAt.IsZero() {
		u.JoinedAt = time.Now().UTC()
	}

	key, err := userKey(u.ID)
	if err != nil {
		return err
	}
	values, err := attributevalue.MarshalMap(map[string]any{
		":f": u.FirstName,
		":u": u.Username,
		":j": u.JoinedAt,
	})
	if err != nil {
		return err
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.usersTable),
		Key:                       key,
		UpdateExpression:          aws.String("SET first_name = :f, username = :u, joined_at = if_not_exists(joined_at, :j)"),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", u.ID, err)
	}
	return nil
}

// Exists implements Store.
func (s *DynamoStore) Exists(ctx context.Context, id int64) (bool, error) {
	key, err := userKey(id)
	if err != nil {
		return false, err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.usersTable),
		Key:                  key,
		ProjectionExpression: aws.String("id"),
	})
	if err != nil {
		return false, fmt.Errorf("check user %d: %w", id, err)
	}
	return out.Item != nil, nil
}

// Delete implements Store.
func (s *DynamoStore) Delete(ctx context.Context, id int64) error {
	key, err := userKey(id)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.usersTable),
		Key:       key,
	})
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	return nil
}

// All scans the users table one page at a time. Order is unspecified.
func (s *DynamoStore) All(ctx context.Context) iter.Seq2[User, error] {
	return func(yield func(User, error) bool) {
		paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
			TableName: aws.String(s.usersTable),
			Limit:     aws.Int32(s.pageLimit),
		})
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx)
			if err != nil {
				yield(User{}, fmt.Errorf("scan users: %w", err))
				return
			}
			var users []User
			if err := attributevalue.UnmarshalListOfMaps(out.Items, &users); err != nil {
				yield(User{}, fmt.Errorf("decode users: %w", err))
				return
			}
			for _, u := range users {
				if !yield(u, nil) {
					return
				}
			}
		}
	}
}

// Count implements Store.
func (s *DynamoStore) Count(ctx context.Context) (int64, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.usersTable),
		Select:    types.SelectCount,
	})
	var total int64
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("count users: %w", err)
		}
		total += int64(out.Count)
	}
	return total, nil
}

func counterKey(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"name": &types.AttributeValueMemberS{Value: name},
	}
}

// Increment implements Counter with an atomic ADD.
func (s *DynamoStore) Increment(ctx context.Context, name string) (int64, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.countersTable),
		Key:                      counterKey(name),
		UpdateExpression:         aws.String("ADD #v :one"),
		ExpressionAttributeNames: map[string]string{"#v": "value"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}

	var item counterItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return 0, fmt.Errorf("decode counter %s: %w", name, err)
	}
	return item.Value, nil
}

// Value implements Counter.
func (s *DynamoStore) Value(ctx context.Context, name string) (int64, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.countersTable),
		Key:       counterKey(name),
	})
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", name, err)
	}
	if out.Item == nil {
		return 0, nil
	}

	var item counterItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return 0, fmt.Errorf("decode counter %s: %w", name, err)
	}
	return item.Value, nil
}

// Ping checks that the users table is reachable.
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.usersTable),
	})
	return err
}

// Close implements Store. The DynamoDB client holds no resources to release.
func (s *DynamoStore) Close() error { return nil }
