package vhttpget

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"k8s.io/klog/v2"
)

type Option interface {
	Set(o *Opts)
}

type Opts struct {
	Header map[string]string

	// Retries is the number of additional attempts made after a failed request.
	Retries int
}

func (o Opts) Set(another *Opts) {
	*another = o
}

type optionFunc func(o *Opts)

func (f optionFunc) Set(o *Opts) {
	f(o)
}

func Header(k, v string) Option {
	return optionFunc(func(o *Opts) {
		if o.Header == nil {
			o.Header = map[string]string{}
		}
		o.Header[k] = v
	})
}

func Retries(n int) Option {
	return optionFunc(func(o *Opts) {
		o.Retries = n
	})
}

type Getter interface {
	DoRequest(ctx context.Context, url string, opt ...Option) (string, error)
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	URL     string
	Code    int
	Status  string
	Snippet string
}

func (e *StatusError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("GET %s: %s: %s", e.URL, e.Status, e.Snippet)
	}
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// Temporary reports whether repeating the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type getter struct {
	responseBodyFor func(ctx context.Context, url string, opts Opts) (io.ReadCloser, error)

	initialInterval time.Duration
	logger          logr.Logger
}

type ClientOption func(g *getter)

func HTTPClient(c *http.Client) ClientOption {
	return func(g *getter) {
		g.responseBodyFor = httpResponseBodyFor(c)
	}
}

// InitialInterval sets the delay before the first retry. Later retries back off exponentially.
func InitialInterval(d time.Duration) ClientOption {
	return func(g *getter) {
		g.initialInterval = d
	}
}

func Logger(l logr.Logger) ClientOption {
	return func(g *getter) {
		g.logger = l
	}
}

func New(opts ...ClientOption) Getter {
	g := &getter{
		responseBodyFor: httpResponseBodyFor(http.DefaultClient),
		initialInterval: time.Second,
	}

	for _, o := range opts {
		o(g)
	}

	if g.logger.GetSink() == nil {
		g.logger = klog.NewKlogr()
	}

	return g
}

func httpResponseBodyFor(c *http.Client) func(ctx context.Context, url string, opts Opts) (io.ReadCloser, error) {
	return func(ctx context.Context, url string, opts Opts) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, &bytes.Buffer{})
		if err != nil {
			return nil, err
		}

		if header := opts.Header; header != nil {
			for k, v := range header {
				req.Header.Add(k, v)
			}
		}

		res, err := c.Do(req)
		if err != nil {
			return nil, err
		}

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			defer res.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
			return nil, &StatusError{URL: url, Code: res.StatusCode, Status: res.Status, Snippet: string(body)}
		}

		return res.Body, nil
	}
}

func NewTester(expectations map[string]string) Getter {
	return &getter{
		responseBodyFor: func(ctx context.Context, url string, opts Opts) (io.ReadCloser, error) {
			res, ok := expectations[url]
			if !ok {
				return nil, fmt.Errorf("unexpected input: url=%v, opts=%v", url, opts)
			}
			r := io.NopCloser(bytes.NewReader([]byte(res)))
			return r, nil
		},
		logger: logr.Discard(),
	}
}

func (t *getter) DoRequest(ctx context.Context, url string, opt ...Option) (string, error) {
	opts := &Opts{}
	for _, o := range opt {
		o.Set(opts)
	}

	if opts.Retries < 0 {
		opts.Retries = 0
	}

	var body []byte

	op := func() error {
		res, err := t.responseBodyFor(ctx, url, *opts)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Temporary() {
				return backoff.Permanent(err)
			}
			return err
		}
		defer res.Close()

		body, err = io.ReadAll(res)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.initialInterval
	b.MaxElapsedTime = 0

	notify := func(err error, d time.Duration) {
		t.logger.V(1).Info("retrying request", "url", url, "after", d, "err", err.Error())
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(opts.Retries)), ctx), notify); err != nil {
		return "", err
	}

	return string(body), nil
}
