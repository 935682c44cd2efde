package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/rsvp/internal/logging"
)

const (
	// DefaultStdioConcurrency bounds in-flight stdio requests.
	DefaultStdioConcurrency = 8

	maxStdioLine = 4 << 20
)

// StdioServer serves newline-delimited JSON-RPC over a reader and writer.
// There is no bearer check; the peer is the local process that started us.
type StdioServer struct {
	dispatcher  *Dispatcher
	in          io.Reader
	out         io.Writer
	concurrency int
	logger      *slog.Logger

	writeMu sync.Mutex
}

// NewStdioServer creates a stdio transport. concurrency <= 0 selects
// DefaultStdioConcurrency.
func NewStdioServer(d *Dispatcher, in io.Reader, out io.Writer, concurrency int) *StdioServer {
	if concurrency <= 0 {
		concurrency = DefaultStdioConcurrency
	}
	return &StdioServer{dispatcher: d, in: in, out: out, concurrency: concurrency, logger: d.logger}
}

// Serve processes requests until the input ends or ctx is cancelled.
// In-flight requests finish before Serve returns.
func (s *StdioServer) Serve(ctx context.Context) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 64<<10), maxStdioLine)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- bytes.Clone(line):
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	var serveErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			g.Go(func() error {
				if resp := s.handleLine(gctx, line); resp != nil {
					return s.write(resp)
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		serveErr = err
	}
	select {
	case err := <-readErr:
		if err != nil && serveErr == nil {
			serveErr = fmt.Errorf("failed to read stdin: %w", err)
		}
	default:
	}
	return serveErr
}

func (s *StdioServer) handleLine(ctx context.Context, line []byte) *Response {
	if line[0] == '[' {
		return errorResponse(nil, NewError(mcp.INVALID_REQUEST, "batch requests are not supported"))
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Debug("Discarding unparsable stdio message", logging.Err(err))
		return errorResponse(nil, NewError(mcp.PARSE_ERROR, "parse error"))
	}
	return s.dispatcher.Dispatch(ctx, &req)
}

func (s *StdioServer) write(resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
