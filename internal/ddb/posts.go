// Package ddb provides the repository for post records in DynamoDB.
package ddb

import (
	"context"
	"errors"
	"fmt"

	"github.com/socialnet/serverless-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"
)

// Secondary indexes on the posts table.
const (
	UserStageIndex = "UserStageIndex" // PK UserName, SK Staging
	StageIndex     = "StageIndex"     // PK Staging
)

var (
	// ErrDuplicateKey means a conditional insert hit an existing PostID.
	ErrDuplicateKey = errors.New("post id already exists")
	// ErrNotFound means the addressed post does not exist.
	ErrNotFound = errors.New("post not found")
	// ErrInvalidTransition means the requested stage change is not allowed.
	ErrInvalidTransition = errors.New("invalid stage transition")
)

// API is the slice of the DynamoDB client the repository needs.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Repo wraps a DynamoDB client and table name for post operations.
type Repo struct {
	DB    API
	Table string
}

// Put inserts a new post, ensuring no record with the same PostID exists.
// A collision returns ErrDuplicateKey and leaves the existing record intact.
func (r *Repo) Put(ctx context.Context, p models.Post) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.Table,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PostID)"),
	})
	if err != nil {
		var cf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("put post %s: %w", p.PostID, err)
	}
	return nil
}

// Get fetches one post by id, returning ErrNotFound when absent.
func (r *Repo) Get(ctx context.Context, postID string) (*models.Post, error) {
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &r.Table,
		Key:       postKey(postID),
	})
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", postID, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var p models.Post
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal post %s: %w", postID, err)
	}
	return &p, nil
}

// ListByUserAndStage returns the user's posts in a single lifecycle stage.
func (r *Repo) ListByUserAndStage(ctx context.Context, userName string, stage models.Stage) ([]models.Post, error) {
	return r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              &r.Table,
		IndexName:              aws.String(UserStageIndex),
		KeyConditionExpression: aws.String("UserName = :u AND Staging = :s"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":u": &ddbtypes.AttributeValueMemberS{Value: userName},
			":s": &ddbtypes.AttributeValueMemberS{Value: string(stage)},
		},
	})
}

// ListByUserAndStages queries each stage concurrently and merges the results,
// in the order the stages were given.
func (r *Repo) ListByUserAndStages(ctx context.Context, userName string, stages ...models.Stage) ([]models.Post, error) {
	buckets := make([][]models.Post, len(stages))
	g, gctx := errgroup.WithContext(ctx)
	for i, stage := range stages {
		g.Go(func() error {
			posts, err := r.ListByUserAndStage(gctx, userName, stage)
			if err != nil {
				return err
			}
			buckets[i] = posts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var merged []models.Post
	for _, b := range buckets {
		merged = append(merged, b...)
	}
	return merged, nil
}

// ListByStage returns all posts in the given stage across users, projected to
// the published-feed fields.
func (r *Repo) ListByStage(ctx context.Context, stage models.Stage) ([]models.Post, error) {
	return r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              &r.Table,
		IndexName:              aws.String(StageIndex),
		KeyConditionExpression: aws.String("Staging = :s"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":s": &ddbtypes.AttributeValueMemberS{Value: string(stage)},
		},
		ProjectionExpression: aws.String("PostID, Content, PostDate, UserName"),
	})
}

// UpdateContentAndStage rewrites a post's content and moves it to a new
// lifecycle stage. The transition table is enforced here: only staging/error
// records may move, and only to done. Returns ErrNotFound when the post is
// absent and ErrInvalidTransition when it exists but may not move.
func (r *Repo) UpdateContentAndStage(ctx context.Context, postID, content string, to models.Stage) error {
	if to != models.StageDone {
		return ErrInvalidTransition
	}
	_, err := r.DB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &r.Table,
		Key:                 postKey(postID),
		UpdateExpression:    aws.String("SET Content = :content, Staging = :done"),
		ConditionExpression: aws.String("attribute_exists(PostID) AND Staging IN (:staging, :error)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":content": &ddbtypes.AttributeValueMemberS{Value: content},
			":done":    &ddbtypes.AttributeValueMemberS{Value: string(models.StageDone)},
			":staging": &ddbtypes.AttributeValueMemberS{Value: string(models.StageStaging)},
			":error":   &ddbtypes.AttributeValueMemberS{Value: string(models.StageError)},
		},
	})
	if err != nil {
		var cf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			// Distinguish a missing record from a forbidden transition.
			if _, gerr := r.Get(ctx, postID); errors.Is(gerr, ErrNotFound) {
				return ErrNotFound
			}
			return ErrInvalidTransition
		}
		return fmt.Errorf("update post %s: %w", postID, err)
	}
	return nil
}

// Delete removes a post, returning ErrNotFound when it was never there.
func (r *Repo) Delete(ctx context.Context, postID string) error {
	_, err := r.DB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           &r.Table,
		Key:                 postKey(postID),
		ConditionExpression: aws.String("attribute_exists(PostID)"),
	})
	if err != nil {
		var cf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrNotFound
		}
		return fmt.Errorf("delete post %s: %w", postID, err)
	}
	return nil
}

func (r *Repo) queryAll(ctx context.Context, in *dynamodb.QueryInput) ([]models.Post, error) {
	var posts []models.Post
	for {
		out, err := r.DB.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query posts: %w", err)
		}
		var page []models.Post
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal posts: %w", err)
		}
		posts = append(posts, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return posts, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func postKey(postID string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"PostID": &ddbtypes.AttributeValueMemberS{Value: postID},
	}
}
