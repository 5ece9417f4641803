package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// dnssdBrowseQuiescence / dnssdBrowseMax implement the bounded browse window
// of spec.md §4.1 ("after a bounded quiescence period (~2s with no new
// devices, bounded total ~30s)").
const (
	dnssdBrowseQuiescence = 2 * time.Second
	dnssdBrowseMax        = 30 * time.Second
)

type dnssdDevice struct {
	name string
	host string
	port int
	uri  string
	id   string
}

// dnssdScheme implements "dnssd://<service-name>" discovery, browsing
// _pdl-datastream._tcp the way the teacher's agent/agent/mdns.go already
// browses _ipp._tcp/_ipps._tcp/_printer._tcp for its own printer discovery.
func dnssdScheme() *Scheme {
	return &Scheme{
		Name: "dnssd",
		Type: TypeNetwork,
		List: dnssdList,
		ID: func(c *Connection) (string, error) {
			d, _ := c.Data().(*dnssdDevice)
			if d == nil {
				return "", nil
			}
			return d.id, nil
		},
	}
}

func dnssdList(cb ListCallback, userData interface{}, errCB ErrCallback) {
	devices, err := browseDNSSD(context.Background(), "_pdl-datastream._tcp")
	if err != nil {
		errCB(fmt.Sprintf("dnssd browse failed: %v", err), userData)
		return
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].name < devices[j].name })
	for _, d := range devices {
		if !cb(d.uri, d.id, userData) {
			return
		}
	}
}

// browseDNSSD aggregates hits by service instance name in the "local."
// domain for the quiescence/timeout window spec.md describes; a repeat hit
// for a known instance updates its host. No other domain is browsed.
func browseDNSSD(ctx context.Context, serviceType string) ([]dnssdDevice, error) {
	ctx, cancel := context.WithTimeout(ctx, dnssdBrowseMax)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	seen := make(map[string]dnssdDevice)
	var mu sync.Mutex
	lastNew := time.Now()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if len(e.AddrIPv4) == 0 {
					continue
				}
				mu.Lock()
				existing, ok := seen[e.Instance]
				if !ok {
					seen[e.Instance] = dnssdDevice{
						name: e.Instance,
						host: e.AddrIPv4[0].String(),
						port: e.Port,
						uri:  fmt.Sprintf("dnssd://%s", e.Instance),
					}
					lastNew = time.Now()
				} else {
					existing.host = e.AddrIPv4[0].String()
					seen[e.Instance] = existing
				}
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, serviceType, "local.", entries); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			goto collect
		case <-ticker.C:
			mu.Lock()
			quiet := time.Since(lastNew) >= dnssdBrowseQuiescence
			mu.Unlock()
			if quiet {
				goto collect
			}
		case <-ctx.Done():
			goto collect
		}
	}

collect:
	mu.Lock()
	defer mu.Unlock()
	out := make([]dnssdDevice, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	return out, nil
}

// resolveDNSSDHost resolves a "._pdl-datastream._tcp" service instance name
// (as embedded in a socket:// URI per spec.md §6) to a host/port pair.
func resolveDNSSDHost(instance string) (string, int, error) {
	devices, err := browseDNSSD(context.Background(), "_pdl-datastream._tcp")
	if err != nil {
		return "", 0, err
	}
	for _, d := range devices {
		if d.name == instance {
			return d.host, d.port, nil
		}
	}
	return "", 0, fmt.Errorf("dnssd: instance %q not found", instance)
}
