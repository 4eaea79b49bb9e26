package imagegen

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
)

// ErrMockFailure is returned for scripted failures.
var ErrMockFailure = errors.New("mock image generation failed")

// MockGenerator writes small solid-colour PNGs and records every request.
// Failures can be scripted per id.
type MockGenerator struct {
	mu       sync.Mutex
	failures map[string]int
	always   map[string]bool
	noFile   map[string]bool
	requests []Request
	size     int
}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		failures: map[string]int{},
		always:   map[string]bool{},
		noFile:   map[string]bool{},
		size:     64,
	}
}

// FailFirst makes the first n requests for id fail.
func (m *MockGenerator) FailFirst(id string, n int) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = n
	return m
}

// FailAlways makes every request for id fail.
func (m *MockGenerator) FailAlways(id string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.always[id] = true
	return m
}

// SkipWrite makes requests for id report success without writing a file.
func (m *MockGenerator) SkipWrite(id string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noFile[id] = true
	return m
}

// Requests returns a copy of every request received, in arrival order.
func (m *MockGenerator) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	fail := m.always[req.ID]
	if !fail && m.failures[req.ID] > 0 {
		m.failures[req.ID]--
		fail = true
	}
	skip := m.noFile[req.ID]
	m.mu.Unlock()

	if fail {
		return "", fmt.Errorf("%w: %s", ErrMockFailure, req.ID)
	}
	if skip {
		return req.OutputPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return "", err
	}
	img := imaging.New(m.size, m.size, colorFor(req.ID))
	if err := imaging.Save(img, req.OutputPath); err != nil {
		return "", fmt.Errorf("saving mock image: %w", err)
	}
	return req.OutputPath, nil
}

func colorFor(id string) color.NRGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	v := h.Sum32()
	return color.NRGBA{R: uint8(v), G: uint8(v >> 8), B: uint8(v >> 16), A: 255}
}
