package rekognition

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/smithy-go"
)

// RekognitionAPI is the subset of the AWS client used by this package.
type RekognitionAPI interface {
	IndexFaces(ctx context.Context, params *rekognition.IndexFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.IndexFacesOutput, error)
	SearchFaces(ctx context.Context, params *rekognition.SearchFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.SearchFacesOutput, error)
	DeleteFaces(ctx context.Context, params *rekognition.DeleteFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DeleteFacesOutput, error)
	CreateCollection(ctx context.Context, params *rekognition.CreateCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.CreateCollectionOutput, error)
	DescribeCollection(ctx context.Context, params *rekognition.DescribeCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.DescribeCollectionOutput, error)
}

// Client wraps the AWS Rekognition client and provides collection management operations
type Client struct {
	api          RekognitionAPI
	config       Config
	collectionID string

	mu      sync.Mutex
	ensured bool
}

// NewClient creates a new Rekognition client with the provided configuration.
// Static credentials take precedence over the AWS default credential chain.
func NewClient(ctx context.Context, cfg Config, configID string) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.hasStaticCredentials() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newClientWithAPI(rekognition.NewFromConfig(awsCfg), cfg, configID), nil
}

func newClientWithAPI(api RekognitionAPI, cfg Config, configID string) *Client {
	return &Client{
		api:          api,
		config:       cfg,
		collectionID: cfg.CollectionName(configID),
	}
}

// CollectionID returns the collection faces are indexed into
func (c *Client) CollectionID() string {
	return c.collectionID
}

// CollectionExists checks if the collection exists
func (c *Client) CollectionExists(ctx context.Context) (bool, error) {
	_, err := c.api.DescribeCollection(ctx, &rekognition.DescribeCollectionInput{
		CollectionId: aws.String(c.collectionID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == errCodeResourceNotFound {
			return false, nil
		}
		return false, fmt.Errorf("describe collection %s: %w", c.collectionID, mapError(opCollection, err))
	}
	return true, nil
}

// CreateCollection creates the collection.
// Returns ErrCollectionAlreadyExists if a collection with the same name already exists
func (c *Client) CreateCollection(ctx context.Context) error {
	_, err := c.api.CreateCollection(ctx, &rekognition.CreateCollectionInput{
		CollectionId: aws.String(c.collectionID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == errCodeResourceExists {
			return fmt.Errorf("collection %s: %w", c.collectionID, ErrCollectionAlreadyExists)
		}
		return fmt.Errorf("create collection %s: %w", c.collectionID, mapError(opCollection, err))
	}
	return nil
}

// EnsureCollection creates the collection once per client. A failed attempt
// is retried on the next call.
func (c *Client) EnsureCollection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ensured {
		return nil
	}

	exists, err := c.CollectionExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		if err := c.CreateCollection(ctx); err != nil && !errors.Is(err, ErrCollectionAlreadyExists) {
			return err
		}
	}

	c.ensured = true
	return nil
}
