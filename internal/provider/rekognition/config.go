package rekognition

import (
	"fmt"
	"time"
)

// Config holds configuration for AWS Rekognition provider
type Config struct {
	// Region is the AWS region where Rekognition service will be used (e.g., "us-east-1")
	Region string

	// Static credentials from the provider record. When empty the AWS default
	// credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// CollectionID pins the collection faces are indexed into. When empty the
	// name is derived from CollectionPrefix and the provider record id.
	CollectionID     string
	CollectionPrefix string

	// Timeout bounds every Rekognition call
	Timeout time.Duration
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Region:           "us-east-1",
		CollectionPrefix: "facematch-",
		Timeout:          15 * time.Second,
	}
}

// CollectionName returns the collection used for the given provider record.
// Format: {CollectionPrefix}{configID}, unless CollectionID is set.
func (c Config) CollectionName(configID string) string {
	if c.CollectionID != "" {
		return c.CollectionID
	}
	return fmt.Sprintf("%s%s", c.CollectionPrefix, configID)
}

func (c Config) hasStaticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}
