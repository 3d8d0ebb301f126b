// Package processors implements the merge and convert operations and the
// worker pool they run on.
//
// Both operations are simulations: after a fixed delay they lease the raw
// bytes of an input file under a new name. No presentation content is read
// or rewritten.
package processors

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/ppttools/internal/lease"
	"github.com/example/ppttools/internal/models"
)

const (
	// DefaultDelay is the simulated processing latency
	DefaultDelay = 2500 * time.Millisecond
	// DefaultMergedFileName is the suggested name of every merge result
	DefaultMergedFileName = "merged_presentation.pptx"
)

// Service runs the simulated merge and convert operations
type Service struct {
	leases     lease.Leaser
	delay      time.Duration
	mergedName string
	logger     *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithDelay overrides the simulated latency
func WithDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithMergedFileName overrides the suggested merge result name
func WithMergedFileName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.mergedName = name
		}
	}
}

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a processing service that leases results from leases
func NewService(leases lease.Leaser, opts ...Option) *Service {
	s := &Service{
		leases:     leases,
		delay:      DefaultDelay,
		mergedName: DefaultMergedFileName,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("processing")
	return s
}

// Delay returns the configured processing latency
func (s *Service) Delay() time.Duration {
	return s.delay
}

// MergeMany "merges" files by leasing the first file's content under the
// merged file name. An empty input is a fault and creates no lease.
func (s *Service) MergeMany(ctx context.Context, files []models.StagedFile) (*models.Result, error) {
	if len(files) == 0 {
		return nil, ErrEmptyInput
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	s.logger.Info("merge started", zap.Strings("files", names))

	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.lease(ctx, files[0], s.mergedName)
}

// ConvertOne "converts" file by leasing its own unmodified content under a
// .pdf name.
func (s *Service) ConvertOne(ctx context.Context, file models.StagedFile) (*models.Result, error) {
	s.logger.Info("conversion started", zap.String("file", file.Name))

	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.lease(ctx, file, PDFName(file.Name))
}

func (s *Service) wait(ctx context.Context) error {
	if s.delay == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) lease(ctx context.Context, src models.StagedFile, fileName string) (*models.Result, error) {
	ref, err := s.leases.Create(ctx, fileName, src.ContentType, bytes.NewReader(src.Content), int64(len(src.Content)))
	if err != nil {
		return nil, fmt.Errorf("lease result for %s: %w", src.Name, err)
	}

	s.logger.Info("result ready",
		zap.String("source", src.Name),
		zap.String("fileName", fileName),
		zap.String("lease", string(ref)))

	return &models.Result{
		Lease:       string(ref),
		FileName:    fileName,
		Size:        int64(len(src.Content)),
		ContentType: src.ContentType,
		CreatedAt:   time.Now(),
	}, nil
}
