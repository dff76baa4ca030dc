// Package netx holds small networking helpers shared by client components.
package netx

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ProbeTimeout bounds a single reachability probe.
const ProbeTimeout = 3 * time.Second

// Probe issues a lightweight GET against url and reports whether the host
// answered with any HTTP status. Every status code counts as "reachable":
// the probe detects connectivity, not application health.
func Probe(ctx context.Context, client *http.Client, url string) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
