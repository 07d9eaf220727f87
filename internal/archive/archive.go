package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/CandleNFT/forge/internal/config"
	"github.com/CandleNFT/forge/internal/models"
)

// Report summarises a finished build. It never carries the credential.
type Report struct {
	JobID           string           `json:"jobId"`
	Status          models.JobStatus `json:"status"`
	Mode            models.Mode      `json:"mode"`
	Step            int              `json:"step"`
	URL             string           `json:"url,omitempty"`
	Error           string           `json:"error,omitempty"`
	PromptPreview   string           `json:"promptPreview"`
	Style           string           `json:"style"`
	ColorTheme      string           `json:"colorTheme"`
	StartedAt       time.Time        `json:"startedAt"`
	FinishedAt      time.Time        `json:"finishedAt"`
	DurationSeconds float64          `json:"durationSeconds"`
}

// NewReport builds a report from a terminal job snapshot.
func NewReport(job models.BuildJob) Report {
	r := Report{
		JobID:         job.ID,
		Status:        job.Status,
		Mode:          job.Mode,
		Step:          job.Step,
		URL:           job.Result.URL,
		Error:         job.Error,
		PromptPreview: job.PromptPreview(),
		Style:         job.Style,
		ColorTheme:    job.ColorTheme,
		StartedAt:     job.StartedAt,
	}
	if job.FinishedAt != nil {
		r.FinishedAt = *job.FinishedAt
		r.DurationSeconds = job.FinishedAt.Sub(job.StartedAt).Seconds()
	}
	return r
}

// Key is the object key a report is stored under.
func Key(jobID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, jobID)
	return sanitizeKey("reports/" + safe + ".json")
}

type uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Archiver stores build reports through a local or S3 uploader.
type Archiver struct {
	up uploader
}

// New picks S3 when a bucket is configured, else the local report dir.
// It returns nil when neither is configured.
func New(ctx context.Context, cfg config.Config) (*Archiver, error) {
	if cfg.ReportS3Bucket != "" {
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Archiver{up: &s3Uploader{client: client, bucket: cfg.ReportS3Bucket}}, nil
	}
	if cfg.ReportDir != "" {
		return NewLocal(cfg.ReportDir), nil
	}
	return nil, nil
}

// NewLocal writes reports below baseDir.
func NewLocal(baseDir string) *Archiver {
	return &Archiver{up: &localUploader{baseDir: baseDir}}
}

// Store uploads the report for a terminal job and returns its location.
func (a *Archiver) Store(ctx context.Context, job models.BuildJob) (string, error) {
	body, err := json.MarshalIndent(NewReport(job), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	loc, err := a.up.Upload(ctx, Key(job.ID), body, "application/json")
	if err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}
	return loc, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.ReportS3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ReportS3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.ReportS3Endpoint)
		}
		o.UsePathStyle = cfg.ReportS3PathStyle
	}), nil
}

func sanitizeKey(key string) string {
	key = filepath.ToSlash(filepath.Clean(key))
	key = strings.TrimPrefix(key, "/")
	key = strings.TrimPrefix(key, "./")
	return key
}

type localUploader struct {
	baseDir string
}

func (l *localUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	path := filepath.Join(l.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
