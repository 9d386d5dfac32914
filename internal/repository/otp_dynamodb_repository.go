package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
	"github.com/whatsassist/gateway/internal/models"
)

// DynamoDBAPI is the subset of *dynamodb.Client the OTP table needs.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

type DynamoOTPRepository struct {
	client    DynamoDBAPI
	tableName string
	ttl       time.Duration
	logger    *logrus.Logger
}

func NewDynamoOTPRepository(client DynamoDBAPI, tableName string, ttl time.Duration, logger *logrus.Logger) *DynamoOTPRepository {
	return &DynamoOTPRepository{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		logger:    logger,
	}
}

func otpItemKey(identity string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("OTP#%s", identity)},
		"SK": &types.AttributeValueMemberS{Value: "METADATA"},
	}
}

// Store writes the record with a TTL attribute so DynamoDB expires it.
func (r *DynamoOTPRepository) Store(ctx context.Context, record models.OTPRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal OTP record: %w", err)
	}

	for k, v := range otpItemKey(record.Identity) {
		item[k] = v
	}
	ttl := record.IssuedTime().Add(r.ttl).Unix()
	item["TTL"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in DynamoDB")
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	return nil
}

func (r *DynamoOTPRepository) Get(ctx context.Context, identity string) (*models.OTPRecord, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            otpItemKey(identity),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	if result.Item == nil {
		return nil, ErrOTPNotFound
	}

	var record models.OTPRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP record: %w", err)
	}

	return &record, nil
}

func (r *DynamoOTPRepository) IncrementAttempts(ctx context.Context, identity string, issuedAt int64) (int, error) {
	result, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 otpItemKey(identity),
		UpdateExpression:    aws.String("ADD Attempts :one"),
		ConditionExpression: aws.String("IssuedAt = :issued"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":    &types.AttributeValueMemberN{Value: "1"},
			":issued": &types.AttributeValueMemberN{Value: strconv.FormatInt(issuedAt, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, ErrOTPConflict
		}
		return 0, fmt.Errorf("failed to increment OTP attempts: %w", err)
	}

	var attempts int
	if av, ok := result.Attributes["Attempts"]; ok {
		if err := attributevalue.Unmarshal(av, &attempts); err != nil {
			return 0, fmt.Errorf("failed to unmarshal OTP attempts: %w", err)
		}
	}

	return attempts, nil
}
