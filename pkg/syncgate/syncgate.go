// Package syncgate checks the upstream service every build depends on before a run touches
// any target.
package syncgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/variantdev/packrel/pkg/vhttpget"
	"k8s.io/klog/v2"
)

// DefaultURL is the version manifest of the target platform.
const DefaultURL = "https://launchermeta.mojang.com/mc/game/version_manifest.json"

const DefaultRetries = 1

// ErrUpstreamUnavailable aborts the whole run.
var ErrUpstreamUnavailable = errors.New("upstream service unavailable")

type Gate struct {
	URL     string
	Retries int

	getter vhttpget.Getter
	Logger logr.Logger
}

type Option func(g *Gate)

func URL(u string) Option {
	return func(g *Gate) {
		g.URL = u
	}
}

func Retries(n int) Option {
	return func(g *Gate) {
		g.Retries = n
	}
}

func Getter(getter vhttpget.Getter) Option {
	return func(g *Gate) {
		g.getter = getter
	}
}

func Logger(l logr.Logger) Option {
	return func(g *Gate) {
		g.Logger = l
	}
}

func New(opts ...Option) *Gate {
	g := &Gate{
		URL:     DefaultURL,
		Retries: DefaultRetries,
	}

	for _, o := range opts {
		o(g)
	}

	if g.Logger.GetSink() == nil {
		g.Logger = klog.NewKlogr()
	}

	if g.getter == nil {
		g.getter = vhttpget.New(vhttpget.Logger(g.Logger))
	}

	return g
}

// Check returns an error wrapping ErrUpstreamUnavailable unless the upstream answers with a
// success status within the configured retries.
func (g *Gate) Check(ctx context.Context) error {
	g.Logger.Info("checking upstream availability", "url", g.URL)

	if _, err := g.getter.DoRequest(ctx, g.URL, vhttpget.Retries(g.Retries)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, g.URL, err)
	}

	g.Logger.Info("upstream is reachable")

	return nil
}
