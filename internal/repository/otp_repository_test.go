package repository

import (
	"context"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whatsassist/gateway/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeDynamo keeps items in memory and understands the single condition
// expression the repository issues.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func pkOf(key map[string]types.AttributeValue) string {
	return key["PK"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[pkOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[pkOf(in.Key)]}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[pkOf(in.Key)]
	want := in.ExpressionAttributeValues[":issued"].(*types.AttributeValueMemberN).Value
	if !ok || item["IssuedAt"].(*types.AttributeValueMemberN).Value != want {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("conditional check failed")}
	}

	current, _ := strconv.Atoi(item["Attempts"].(*types.AttributeValueMemberN).Value)
	next := strconv.Itoa(current + 1)
	item["Attempts"] = &types.AttributeValueMemberN{Value: next}

	return &dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{"Attempts": item["Attempts"]},
	}, nil
}

func runRepositoryContract(t *testing.T, repo OTPRepository) {
	ctx := context.Background()
	identity := "owner@example.com"

	_, err := repo.Get(ctx, identity)
	require.ErrorIs(t, err, ErrOTPNotFound)

	first := models.OTPRecord{Identity: identity, Code: "123456", IssuedAt: time.Now().UnixMilli()}
	require.NoError(t, repo.Store(ctx, first))

	got, err := repo.Get(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, first, *got)

	attempts, err := repo.IncrementAttempts(ctx, identity, first.IssuedAt)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	second := models.OTPRecord{Identity: identity, Code: "654321", IssuedAt: first.IssuedAt + 1}
	require.NoError(t, repo.Store(ctx, second))

	got, err = repo.Get(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "654321", got.Code)
	assert.Equal(t, 0, got.Attempts)

	_, err = repo.IncrementAttempts(ctx, identity, first.IssuedAt)
	require.ErrorIs(t, err, ErrOTPConflict)

	attempts, err = repo.IncrementAttempts(ctx, identity, second.IssuedAt)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	_, err = repo.IncrementAttempts(ctx, "nobody@example.com", second.IssuedAt)
	require.ErrorIs(t, err, ErrOTPConflict)
	_, err = repo.Get(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrOTPNotFound)
}

func TestMemoryOTPRepository(t *testing.T) {
	runRepositoryContract(t, NewMemoryOTPRepository())
}

func newRedisRepository(t *testing.T) (*RedisOTPRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisOTPRepository(client, 5*time.Minute, quietLogger()), mr
}

func TestRedisOTPRepository(t *testing.T) {
	repo, _ := newRedisRepository(t)
	runRepositoryContract(t, repo)
}

func TestRedisOTPRepositoryKeepsTTLOnIncrement(t *testing.T) {
	repo, mr := newRedisRepository(t)
	ctx := context.Background()
	record := models.OTPRecord{Identity: "owner@example.com", Code: "123456", IssuedAt: 10}
	require.NoError(t, repo.Store(ctx, record))
	require.Equal(t, 5*time.Minute, mr.TTL("otp:owner@example.com"))

	mr.FastForward(time.Minute)

	attempts, err := repo.IncrementAttempts(ctx, record.Identity, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 4*time.Minute, mr.TTL("otp:owner@example.com"))

	_, err = repo.IncrementAttempts(ctx, record.Identity, 11)
	require.ErrorIs(t, err, ErrOTPConflict)
	assert.Equal(t, 4*time.Minute, mr.TTL("otp:owner@example.com"))

	got, err := repo.Get(ctx, record.Identity)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)

	mr.FastForward(5 * time.Minute)
	_, err = repo.Get(ctx, record.Identity)
	require.ErrorIs(t, err, ErrOTPNotFound)
}

func TestRedisOTPRepositoryCorruptRecord(t *testing.T) {
	repo, mr := newRedisRepository(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("otp:owner@example.com", "{not json"))

	_, err := repo.Get(ctx, "owner@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOTPNotFound)

	_, err = repo.IncrementAttempts(ctx, "owner@example.com", 10)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOTPConflict)
}

func TestDynamoOTPRepository(t *testing.T) {
	fake := newFakeDynamo()
	repo := NewDynamoOTPRepository(fake, "WhatsAssist", 5*time.Minute, quietLogger())
	runRepositoryContract(t, repo)
}

func TestDynamoOTPRepositoryWritesTTL(t *testing.T) {
	fake := newFakeDynamo()
	repo := NewDynamoOTPRepository(fake, "WhatsAssist", 5*time.Minute, quietLogger())

	issued := time.Unix(1_700_000_000, 0)
	record := models.OTPRecord{Identity: "owner@example.com", Code: "111111", IssuedAt: issued.UnixMilli()}
	require.NoError(t, repo.Store(context.Background(), record))

	item := fake.items["OTP#owner@example.com"]
	require.NotNil(t, item)
	assert.Equal(t, "METADATA", item["SK"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "1700000300", item["TTL"].(*types.AttributeValueMemberN).Value)
}

func TestMemoryOTPRepositoryConcurrentIncrements(t *testing.T) {
	repo := NewMemoryOTPRepository()
	ctx := context.Background()
	record := models.OTPRecord{Identity: "owner@example.com", Code: "123456", IssuedAt: 42}
	require.NoError(t, repo.Store(ctx, record))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.IncrementAttempts(ctx, record.Identity, record.IssuedAt)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, record.Identity)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Attempts)
}
