// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pdiddy/docmark/internal/httputil"
)

// convertEndpoint is the upload path on the remote conversion service.
const convertEndpoint = "/v1/convert"

// RemoteConverter uploads documents to a markitdown HTTP service and
// returns the Markdown it responds with. The upload is a distinct phase,
// reported through the progress callback as PhaseUpload.
type RemoteConverter struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRemoteConverter creates a converter pointed at the service base URL.
// token may be empty for unauthenticated deployments.
func NewRemoteConverter(baseURL, token string, timeout time.Duration) (*RemoteConverter, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("remote backend requires a service URL")
	}
	return &RemoteConverter{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// UploadPhase reports that this backend has a distinct input-transfer stage.
func (r *RemoteConverter) UploadPhase() bool { return true }

// Convert uploads the document and returns the converted Markdown.
func (r *RemoteConverter) Convert(ctx context.Context, inputPath string, progress ProgressFunc) (string, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %w", ErrIO, inputPath, err)
	}
	size := info.Size()

	openBody := func() (io.ReadCloser, error) {
		f, err := os.Open(inputPath)
		if err != nil {
			return nil, fmt.Errorf("%w: opening %s: %w", ErrIO, inputPath, err)
		}
		return &progressReader{rc: f, total: size, report: progress}, nil
	}

	body, err := openBody()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+convertEndpoint, body)
	if err != nil {
		body.Close()
		return "", fmt.Errorf("%w: building request: %w", ErrInvocation, err)
	}
	req.ContentLength = size
	req.GetBody = openBody
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Docmark-Filename", filepath.Base(inputPath))
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := httputil.DoWithRetry(ctx, r.client, req, 0)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: uploading %s: %w", ErrInvocation, filepath.Base(inputPath), err)
	}
	defer resp.Body.Close()

	progress(PhaseUpload, 1)
	progress(PhaseConvert, 0)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", ErrInvocation, err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(data))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		if detail == "" {
			detail = resp.Status
		}
		return "", fmt.Errorf("%w: conversion service returned %d: %s", ErrInvocation, resp.StatusCode, detail)
	}

	return string(data), nil
}

// progressReader reports upload progress as the request body is consumed.
type progressReader struct {
	rc     io.ReadCloser
	total  int64
	sent   atomic.Int64
	report ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.rc.Read(buf)
	if n > 0 && p.total > 0 && p.report != nil {
		sent := p.sent.Add(int64(n))
		frac := float64(sent) / float64(p.total)
		if frac > 1 {
			frac = 1
		}
		p.report(PhaseUpload, frac)
	}
	return n, err
}

func (p *progressReader) Close() error { return p.rc.Close() }
