// Package extract derives a structured record from document text with a
// generative model.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"maps"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds how many parsed documents are remembered per process.
const DefaultCacheSize = 256

// Generator is a text-in, text-out model call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Extractor prompts a Generator and validates its answer. Identical document
// texts, e.g. the same PDF attached to several messages, are answered from
// a cache of successful parses.
type Extractor struct {
	gen    Generator
	cache  *lru.Cache[string, map[string]any]
	logger *slog.Logger
}

func NewExtractor(gen Generator, cacheSize int, logger *slog.Logger) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, map[string]any](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create extraction cache: %w", err)
	}
	return &Extractor{gen: gen, cache: cache, logger: logger}, nil
}

// Extract returns the fields parsed from the model's response to text.
// A response without a usable JSON object yields *model.StructuredParseError;
// a failed model call is returned wrapped as is. Nothing is retried.
func (e *Extractor) Extract(ctx context.Context, text string) (map[string]any, error) {
	key := textKey(text)
	if fields, ok := e.cache.Get(key); ok {
		e.logger.Debug("structured extraction cache hit", "key", key[:12])
		return maps.Clone(fields), nil
	}

	resp, err := e.gen.Generate(ctx, BuildPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	fields, err := ParseResponse(resp)
	if err != nil {
		e.logger.Debug("unusable model response", "err", err, "response_bytes", len(resp))
		return nil, err
	}
	e.cache.Add(key, maps.Clone(fields))
	return fields, nil
}

func textKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
