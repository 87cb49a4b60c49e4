package receipt

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-extractor/internal/enhance"
	"github.com/zombor/receipt-extractor/internal/sanitize"
	"github.com/zombor/receipt-extractor/internal/scanning"
)

// Enhancer turns uploaded bytes into an image that is easier for a model to read
type Enhancer interface {
	Normalize(data []byte, contentType string) (*image.NRGBA, error)
}

// IDGenerator generates unique IDs for requests
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ServiceOptions tunes the analysis service
type ServiceOptions struct {
	// Timeout bounds each model call. Zero means no bound.
	Timeout time.Duration
	// NormalizeAmounts rewrites monetary values with NormalizeAmount
	NormalizeAmounts bool
}

// Service analyzes receipt images
type Service struct {
	enhancer    Enhancer
	model       scanning.Model
	storage     Storage
	opts        ServiceOptions
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(enhancer Enhancer, model scanning.Model, storage Storage, opts ServiceOptions) *Service {
	return NewServiceWithDeps(enhancer, model, storage, opts, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(enhancer Enhancer, model scanning.Model, storage Storage, opts ServiceOptions, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		enhancer:    enhancer,
		model:       model,
		storage:     storage,
		opts:        opts,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// stage writes the upload under a request-unique name. The returned cleanup
// removes it and must run on every exit path.
func (s *Service) stage(id, filename string, data []byte) (string, func(), error) {
	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return "", nil, fmt.Errorf("staging upload: %w", err)
	}
	cleanup := func() {
		if err := s.storage.Delete(savedPath); err != nil {
			slog.Warn("Failed to remove staged upload", "path", savedPath, "error", err)
		}
	}
	return savedPath, cleanup, nil
}

// prepare stages the upload, reads it back and runs the enhancement pipeline
func (s *Service) prepare(id, filename string, data []byte, contentType string) ([]byte, error) {
	savedPath, cleanup, err := s.stage(id, filename, data)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	staged, err := s.storage.Get(savedPath)
	if err != nil {
		return nil, fmt.Errorf("reading staged upload: %w", err)
	}

	img, err := s.enhancer.Normalize(staged, contentType)
	if err != nil {
		return nil, err
	}

	png, err := enhance.EncodePNG(img)
	if err != nil {
		return nil, &enhance.ProcessingError{Step: "encode", Err: err}
	}
	return png, nil
}

// Enhance returns the enhanced image as PNG
func (s *Service) Enhance(filename string, data []byte, contentType string) ([]byte, error) {
	return s.prepare(s.idGenerator.Generate(), filename, data, contentType)
}

// ask calls the model, bounded by the configured timeout
func (s *Service) ask(ctx context.Context, img []byte, prompt string) (string, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	reply, err := s.model.Generate(ctx, img, "image/png", prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s: %w", ErrTimeout, s.opts.Timeout, err)
		}
		return "", fmt.Errorf("%w: %w", ErrModel, err)
	}
	return reply, nil
}

// Analyze enhances a receipt image, classifies it and extracts its fields
func (s *Service) Analyze(ctx context.Context, filename string, data []byte, contentType string) (*Analysis, error) {
	id := s.idGenerator.Generate()
	start := s.timeSource.Now()

	logger := slog.With("id", id, "filename", filename)

	png, err := s.prepare(id, filename, data, contentType)
	if err != nil {
		logger.Error("Failed to enhance receipt",
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, err
	}

	typeReply, err := s.ask(ctx, png, ClassificationPrompt)
	if err != nil {
		logger.Error("Failed to classify receipt", "error", err)
		return nil, fmt.Errorf("classifying receipt: %w", err)
	}

	receiptType, err := ParseType(typeReply)
	if err != nil {
		logger.Error("Model returned an unknown receipt type", "reply", typeReply)
		return nil, err
	}

	prompt, err := ExtractionPrompt(receiptType)
	if err != nil {
		return nil, err
	}

	reply, err := s.ask(ctx, png, prompt)
	if err != nil {
		logger.Error("Failed to extract receipt", "type", receiptType, "error", err)
		return nil, fmt.Errorf("extracting receipt: %w", err)
	}

	cleaned := sanitize.Sanitize(reply)
	if cleaned.Reason != nil {
		logger.Warn("Extraction reply needed special handling", "reason", cleaned.Reason, "empty", cleaned.FellBack)
	}

	record, err := ParseRecord(cleaned.Text, receiptType)
	if err != nil {
		logger.Error("Failed to parse extraction reply", "type", receiptType, "error", err)
		return nil, err
	}

	if s.opts.NormalizeAmounts {
		record.NormalizeAmounts()
	}

	now := s.timeSource.Now()
	logger.Info("Analyzed receipt", "type", receiptType, "duration", now.Sub(start))

	return &Analysis{
		ID:        id,
		Filename:  filename,
		Type:      receiptType,
		Record:    record,
		FellBack:  cleaned.FellBack,
		Duration:  now.Sub(start),
		CreatedAt: now,
	}, nil
}
