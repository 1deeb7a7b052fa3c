package srun

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

const (
	defaultUserAgent = "srun-guard/1.0"
	maxBodyBytes     = 64 << 10
)

// Request is one gateway exchange.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// Response carries the raw reply of the gateway.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport performs a single request/response exchange. Implementations
// must honour ctx and Request.Timeout.
type Transport interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// HTTPTransport sends requests with net/http.
type HTTPTransport struct {
	httpClient *http.Client
	userAgent  string
}

func NewHTTPTransport() *HTTPTransport {
	return NewHTTPTransportWithClient(&http.Client{})
}

func NewHTTPTransportWithClient(httpClient *http.Client) *HTTPTransport {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPTransport{httpClient: httpClient, userAgent: defaultUserAgent}
}

func (t *HTTPTransport) Send(ctx context.Context, req Request) (Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, err
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, err
	}
	return Response{StatusCode: resp.StatusCode, Body: data}, nil
}
