package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"where2go-events/internal/logger"
	"where2go-events/internal/models"
)

// ErrShardNotFound is returned when no live shard exists for a key
var ErrShardNotFound = errors.New("event shard not found")

// DynamoDBAPI is the part of the DynamoDB client the service uses
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoDBService stores event shards in the events table
type DynamoDBService struct {
	client      DynamoDBAPI
	eventsTable string
	ttl         time.Duration
	logger      logger.Logger
	now         func() time.Time
}

// NewDynamoDBService creates a new DynamoDB service instance
func NewDynamoDBService(client DynamoDBAPI, eventsTable string, ttl time.Duration, log logger.Logger) *DynamoDBService {
	return &DynamoDBService{
		client:      client,
		eventsTable: eventsTable,
		ttl:         ttl,
		logger:      logger.OrNop(log),
		now:         time.Now,
	}
}

// PutShard stores one shard, replacing any previous version
func (s *DynamoDBService) PutShard(ctx context.Context, shard *models.EventShard) error {
	if err := shard.Validate(); err != nil {
		return fmt.Errorf("invalid shard: %w", err)
	}
	if shard.Events == nil {
		shard.Events = []models.EventRecord{}
	}

	item, err := attributevalue.MarshalMap(shard)
	if err != nil {
		return fmt.Errorf("failed to marshal shard: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.eventsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put shard %s/%s: %w", shard.PK, shard.SK, err)
	}
	return nil
}

// PutDay stores one shard per category plus the day bucket. Each queried
// category is written even when empty. It returns the number of shards
// written; failed shards are joined into the error.
func (s *DynamoDBService) PutDay(ctx context.Context, city, date, runID string, categories []string, records []models.EventRecord) (int, error) {
	now := s.now()
	shards, order := models.GroupByShard(records, categories)

	items := make([]models.EventShard, 0, len(order)+1)
	for _, category := range order {
		items = append(items, models.NewEventShard(city, date, category, shards[category], s.ttl, now))
	}
	items = append(items, models.NewEventShard(city, date, models.DayBucketCategory, records, s.ttl, now))

	written := 0
	var errs []error
	for i := range items {
		items[i].RunID = runID
		if err := s.PutShard(ctx, &items[i]); err != nil {
			errs = append(errs, err)
			continue
		}
		written++
	}

	s.logger.Debug("Persisted day",
		logger.String("city", city),
		logger.String("date", date),
		logger.Int("shards", written))
	return written, errors.Join(errs...)
}

// GetShard retrieves one shard. Items past their TTL count as missing since
// DynamoDB deletes expired items lazily.
func (s *DynamoDBService) GetShard(ctx context.Context, city, date, category string) (*models.EventShard, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.eventsTable),
		Key:       shardKey(models.CreateCityDatePK(city, date), models.CreateCategorySK(category)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get shard: %w", err)
	}
	if result.Item == nil {
		return nil, ErrShardNotFound
	}

	var shard models.EventShard
	if err := attributevalue.UnmarshalMap(result.Item, &shard); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shard: %w", err)
	}
	if shard.IsExpired(s.now()) {
		return nil, ErrShardNotFound
	}
	return &shard, nil
}

// QueryDay returns every live shard of a city and day, day bucket included
func (s *DynamoDBService) QueryDay(ctx context.Context, city, date string) ([]models.EventShard, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.eventsTable),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :cat)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":  &types.AttributeValueMemberS{Value: models.CreateCityDatePK(city, date)},
			":cat": &types.AttributeValueMemberS{Value: models.CategoryPrefix},
		},
	}

	now := s.now()
	var shards []models.EventShard
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query day: %w", err)
		}

		var page []models.EventShard
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal shards: %w", err)
		}
		for _, shard := range page {
			if !shard.IsExpired(now) {
				shards = append(shards, shard)
			}
		}

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return shards, nil
}

// DeleteShard removes one shard
func (s *DynamoDBService) DeleteShard(ctx context.Context, city, date, category string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.eventsTable),
		Key:       shardKey(models.CreateCityDatePK(city, date), models.CreateCategorySK(category)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete shard: %w", err)
	}
	return nil
}

func shardKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}
