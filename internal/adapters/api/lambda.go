package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
)

// LambdaHandler переводит события API Gateway в вызовы http.Handler.
func LambdaHandler(h http.Handler) func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		httpReq, err := toHTTPRequest(ctx, req)
		if err != nil {
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusBadRequest,
				Headers:    map[string]string{"Content-Type": "application/json"},
				Body:       `{"error":"invalid request"}`,
			}, nil
		}
		rec := newProxyWriter()
		h.ServeHTTP(rec, httpReq)
		return rec.response(), nil
	}
}

func toHTTPRequest(ctx context.Context, req events.APIGatewayProxyRequest) (*http.Request, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		body = decoded
	}
	query := url.Values{}
	for k, v := range req.QueryStringParameters {
		query.Set(k, v)
	}
	for k, vs := range req.MultiValueQueryStringParameters {
		query[k] = vs
	}
	target := url.URL{Path: req.Path, RawQuery: query.Encode()}
	httpReq, err := http.NewRequestWithContext(ctx, req.HTTPMethod, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, vs := range req.MultiValueHeaders {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.RemoteAddr = req.RequestContext.Identity.SourceIP
	return httpReq, nil
}

type proxyWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newProxyWriter() *proxyWriter {
	return &proxyWriter{header: make(http.Header)}
}

func (w *proxyWriter) Header() http.Header { return w.header }

func (w *proxyWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *proxyWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *proxyWriter) response() events.APIGatewayProxyResponse {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	headers := make(map[string]string, len(w.header))
	for k, vs := range w.header {
		headers[k] = strings.Join(vs, ",")
	}
	resp := events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, MultiValueHeaders: map[string][]string(w.header)}
	data := w.body.Bytes()
	if isText(w.header.Get("Content-Type")) && utf8.Valid(data) {
		resp.Body = string(data)
	} else {
		resp.Body = base64.StdEncoding.EncodeToString(data)
		resp.IsBase64Encoded = true
	}
	return resp
}

func isText(contentType string) bool {
	return contentType == "" || strings.HasPrefix(contentType, "text/") || strings.Contains(contentType, "json")
}
