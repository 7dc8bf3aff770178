package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/speedai/speedai/internal/pkg/env"
)

// Config holds the S3 settings used to archive generated assets.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	PublicBaseURL   string // Optional CDN or bucket website URL
	PathPrefix      string
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "eu-west-3"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		PublicBaseURL:   env.GetEnv("S3_PUBLIC_BASE_URL", ""),
		PathPrefix:      strings.Trim(env.GetEnv("S3_PATH_PREFIX", ""), "/"),
		Enabled:         env.GetEnv("S3_ENABLED", "false") == "true",
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields when the store is enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.AccessKeyID == "" {
		return errors.New("S3_ACCESS_KEY_ID is required when S3 is enabled")
	}
	if c.SecretAccessKey == "" {
		return errors.New("S3_SECRET_ACCESS_KEY is required when S3 is enabled")
	}
	if c.BucketName == "" {
		return errors.New("S3_BUCKET_NAME is required when S3 is enabled")
	}
	return nil
}

// FullKey applies the configured path prefix.
func (c *Config) FullKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if c.PathPrefix == "" {
		return key
	}
	return c.PathPrefix + "/" + key
}

// QRCodeKey is the object key of a review QR code.
func QRCodeKey(userID uint, code string) string {
	return fmt.Sprintf("qrcodes/%d/%s.png", userID, code)
}

// PublicURL returns where an object can be downloaded publicly, or "" when
// no public base URL is configured.
func (c *Config) PublicURL(key string) string {
	if c.PublicBaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.PublicBaseURL, "/") + "/" + c.FullKey(key)
}
