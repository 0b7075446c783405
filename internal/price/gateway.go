package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"cryptotrack-alerts/internal/types"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Provider is one upstream source of market data.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, asset string) (types.Snapshot, error)
}

// FailureObserver is told about every provider attempt that failed.
type FailureObserver interface {
	ProviderFailed(provider string)
}

// Gateway tries its providers in order and returns the first snapshot that succeeds.
type Gateway struct {
	providers []Provider
	observer  FailureObserver
}

func NewGateway(providers ...Provider) *Gateway {
	return &Gateway{providers: providers}
}

// WithObserver sets the observer notified of provider failures.
func (g *Gateway) WithObserver(o FailureObserver) *Gateway {
	g.observer = o
	return g
}

// Providers returns the provider names in priority order.
func (g *Gateway) Providers() []string {
	names := make([]string, 0, len(g.providers))
	for _, p := range g.providers {
		names = append(names, p.Name())
	}
	return names
}

// Fetch returns a snapshot for asset. It fails with types.ErrDataUnavailable only
// after every provider has failed.
func (g *Gateway) Fetch(ctx context.Context, asset string) (types.Snapshot, error) {
	asset = NormalizeAsset(asset)
	log.Debugf("🔍 Fetching market data for %s", asset)

	for _, p := range g.providers {
		if err := ctx.Err(); err != nil {
			return types.Snapshot{}, errors.Wrapf(types.ErrDataUnavailable, "%s: %v", asset, err)
		}

		snapshot, err := p.Fetch(ctx, asset)
		if err != nil {
			log.WithFields(log.Fields{"provider": p.Name(), "asset": asset}).Warnf("❌ Provider failed: %v", err)
			if g.observer != nil {
				g.observer.ProviderFailed(p.Name())
			}
			continue
		}

		log.WithFields(log.Fields{"provider": p.Name(), "asset": asset}).Debugf("✅ Market data: %+v", snapshot)
		return snapshot, nil
	}

	return types.Snapshot{}, errors.Wrapf(types.ErrDataUnavailable, "failed to fetch %s from all %d sources", asset, len(g.providers))
}

// statusError is returned for non 2xx upstream responses.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// doJSON sends req and decodes a 2xx JSON body into out.
func doJSON(client *http.Client, req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "failed to read body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > 256 {
			body = body[:256]
		}
		return &statusError{Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to decode payload")
	}

	if log.IsLevelEnabled(log.TraceLevel) {
		log.Tracef("raw payload from %s: %s", req.URL.Host, spew.Sdump(out))
	}
	return nil
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
