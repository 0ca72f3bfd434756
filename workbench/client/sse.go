package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chunker/types"
	"chunker/workbench/stream"
)

const maxEventSize = 4 << 20

// Open starts a streaming submission. The returned source yields one data
// payload per server-sent event.
func (c *Client) Open(ctx context.Context, req types.ProcessRequest) (stream.EventSource, error) {
	resp, err := c.stream.R().
		SetContext(ctx).
		SetBody(req).
		SetDoNotParseResponse(true).
		Post(streamPath)
	if err != nil {
		return nil, fmt.Errorf("failed to establish stream: %w", err)
	}

	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		defer body.Close()
		data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
		return nil, fmt.Errorf("stream failed with status %d: %s", resp.StatusCode(), strings.TrimSpace(string(data)))
	}

	c.logger.Debug("stream opened", "path", streamPath)
	return newSSESource(body), nil
}

type sseSource struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newSSESource(body io.ReadCloser) *sseSource {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventSize)
	return &sseSource{body: body, scanner: scanner}
}

// Next returns the next event payload, io.EOF on a clean close, or the read
// error that ended the stream.
func (s *sseSource) Next() (string, error) {
	var data []string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if len(data) > 0 {
		return strings.Join(data, "\n"), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *sseSource) Close() error {
	return s.body.Close()
}
