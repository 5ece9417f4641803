package system

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"

	"ippd/internal/logger"
)

// dnssdTarget is one service instance this process wants advertised: either
// the system's admin endpoint or one printer's IPP/IPPS endpoint, per
// spec.md §4.4's "DNS-SD service types advertised" list.
type dnssdTarget struct {
	key     string // stable identity, independent of the advertised name
	name    string // advertised instance name before any collision suffix
	service string // e.g. "_ipp._tcp"
	port    int
	txt     []string
}

// dnssdRegistrar owns the advertised zeroconf service instances and
// reconciles them against hostname changes and name collisions, grounded
// on spec.md §4.4's "DNS-SD reconciliation" step: each loop iteration,
// compare the current host against the last-observed one and force
// re-registration of everything if it changed; independently, re-register
// anything flagged as collided under a serial-suffixed name.
type dnssdRegistrar struct {
	mu       sync.Mutex
	hostname string
	servers  map[string]*zeroconf.Server
	names    map[string]string
	collided map[string]bool
	serial   map[string]int
}

func newDNSSDRegistrar() *dnssdRegistrar {
	return &dnssdRegistrar{
		servers:  make(map[string]*zeroconf.Server),
		names:    make(map[string]string),
		collided: make(map[string]bool),
		serial:   make(map[string]int),
	}
}

// FlagCollision marks key's currently-registered name as having collided
// with another service on the network, forcing the next reconcile pass to
// append a disambiguating suffix and re-register it. The grandcat/zeroconf
// client does no wire-level probing for conflicts, so nothing calls this
// automatically yet; it exists so a future ANNOUNCE-seen-twice listener
// has somewhere to report into, per spec.md §4.4's "dns_sd_collision flag".
func (r *dnssdRegistrar) FlagCollision(key string) {
	r.mu.Lock()
	r.collided[key] = true
	r.mu.Unlock()
}

// reconcile registers any new or changed target and tears down any
// previously-registered entry no longer present in targets.
func (r *dnssdRegistrar) reconcile(targets []dnssdTarget, log *logger.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	host, err := os.Hostname()
	if err != nil {
		host = r.hostname
	}
	hostChanged := host != r.hostname
	r.hostname = host

	want := make(map[string]bool, len(targets))
	for _, t := range targets {
		want[t.key] = true

		name := t.name
		if r.collided[t.key] {
			r.serial[t.key]++
			name = fmt.Sprintf("%s (%d)", t.name, r.serial[t.key])
		}

		if !hostChanged && !r.collided[t.key] && r.servers[t.key] != nil && r.names[t.key] == name {
			continue
		}

		if old := r.servers[t.key]; old != nil {
			old.Shutdown()
		}
		srv, err := zeroconf.Register(name, t.service, "local.", t.port, t.txt, nil)
		if err != nil {
			log.Warn("dns-sd registration failed", "name", name, "service", t.service, "error", err.Error())
			delete(r.servers, t.key)
			continue
		}
		r.servers[t.key] = srv
		r.names[t.key] = name
		r.collided[t.key] = false
	}

	for key, srv := range r.servers {
		if want[key] {
			continue
		}
		srv.Shutdown()
		delete(r.servers, key)
		delete(r.names, key)
		delete(r.collided, key)
		delete(r.serial, key)
	}
}

func (r *dnssdRegistrar) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, srv := range r.servers {
		srv.Shutdown()
		delete(r.servers, key)
	}
}

// reconcileDNSSD builds the current set of advertised service instances
// from the system's configuration and printer set and reconciles them,
// per spec.md §4.4's "_ipp._tcp, _ipps._tcp, ... _http._tcp" advertising
// list. Called from the supervisor's tick loop alongside the scheduler and
// cleanup passes.
func (sys *System) reconcileDNSSD() {
	sys.mu.RLock()
	port := sys.cfg.Port
	tlsEnabled := sys.cfg.TLSCertFile != "" && sys.cfg.TLSKeyFile != ""
	sysName := sys.cfg.DNSSDName
	if sysName == "" {
		sysName = sys.cfg.SystemName
	}
	printers := make([]*Printer, 0, len(sys.printers))
	for _, p := range sys.printers {
		printers = append(printers, p)
	}
	sys.mu.RUnlock()

	targets := []dnssdTarget{
		{key: "system:admin", name: sysName, service: "_http._tcp", port: port, txt: []string{"txtvers=1"}},
	}

	for _, p := range printers {
		p.mu.RLock()
		name := p.dnssdName
		resource := strings.TrimPrefix(p.resource, "/")
		driver := p.driverName
		p.mu.RUnlock()

		txt := []string{"txtvers=1", "qtotal=1", "rp=" + resource, "ty=" + driver}
		service := "_ipp._tcp"
		if tlsEnabled {
			service = "_ipps._tcp"
		}
		targets = append(targets, dnssdTarget{
			key: "printer:" + name, name: name, service: service, port: port, txt: txt,
		})
	}

	sys.dnssd.reconcile(targets, sys.log)
}

// shutdownDNSSD withdraws every advertised service instance, per the
// graceful-shutdown sequence of spec.md §4.4.
func (sys *System) shutdownDNSSD() {
	sys.dnssd.shutdown()
}
