package uploads

import (
	"errors"
	"strings"

	"github.com/ManuelReschke/FormFox/internal/pkg/env"
)

const defaultMaxFileBytes = 10 << 20

// Config holds the object storage settings for submission files
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	MaxFileBytes    int64
	AllowedTypes    []string
}

// LoadConfig loads the upload configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AccessKeyID:     env.GetEnv("UPLOADS_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("UPLOADS_S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("UPLOADS_S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("UPLOADS_S3_BUCKET", ""),
		EndpointURL:     env.GetEnv("UPLOADS_S3_ENDPOINT_URL", ""),
		MaxFileBytes:    int64(env.GetEnvInt("UPLOADS_MAX_FILE_BYTES", defaultMaxFileBytes)),
		AllowedTypes:    splitList(env.GetEnv("UPLOADS_ALLOWED_TYPES", "application/pdf,image/jpeg,image/png")),
	}

	if !cfg.IsEnabled() {
		return cfg, nil
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("UPLOADS_S3_ACCESS_KEY_ID is required when uploads are enabled")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("UPLOADS_S3_SECRET_ACCESS_KEY is required when uploads are enabled")
	}
	return cfg, nil
}

// IsEnabled reports whether a bucket is configured
func (c *Config) IsEnabled() bool {
	return c.BucketName != ""
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
