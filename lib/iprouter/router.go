// Package iprouter dispatches IPv4/IPv6 packets to peers based on a
// route table keyed by destination prefix, resolved by longest-prefix
// match against a cache rebuilt lazily whenever a port's routes change.
package iprouter

import (
	"net/netip"
	"sort"
	"sync"
	"sync/atomic"
)

// PortID opaquely identifies a peer endpoint attached to the router.
type PortID uint32

// Route associates a destination prefix with the port that should
// receive packets addressed within it.
type Route struct {
	Prefix netip.Prefix
	Port   PortID
}

// Router resolves destination addresses to peer ports via
// longest-prefix match over the union of each registered port's
// advertised routes and the router's configured local routes.
type Router struct {
	mu          sync.RWMutex
	portRoutes  map[PortID][]netip.Prefix
	localRoutes []Route

	cache      []Route // sorted by prefix length, descending
	cacheDirty atomic.Bool

	dropped atomic.Uint64
}

// New creates an empty Router.
func New() *Router {
	r := &Router{portRoutes: make(map[PortID][]netip.Prefix)}
	r.cacheDirty.Store(true)
	return r
}

// SetLocalRoutes replaces the router's statically configured routes
// (those not advertised by any peer port).
func (r *Router) SetLocalRoutes(routes []Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localRoutes = append([]Route(nil), routes...)
	r.cacheDirty.Store(true)
}

// RegisterPort advertises prefixes as reachable through port,
// invalidating the route cache.
func (r *Router) RegisterPort(port PortID, prefixes []netip.Prefix) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.portRoutes[port] = append([]netip.Prefix(nil), prefixes...)
	r.cacheDirty.Store(true)
}

// UnregisterPort withdraws every route advertised by port, invalidating
// the route cache.
func (r *Router) UnregisterPort(port PortID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.portRoutes, port)
	r.cacheDirty.Store(true)
}

// Dropped returns the number of lookups that found no matching route.
func (r *Router) Dropped() uint64 {
	return r.dropped.Load()
}

// Route resolves dst to the port whose advertised or local prefix is
// the longest match. It reports false when no route matches, having
// also incremented the drop counter.
func (r *Router) Route(dst netip.Addr) (PortID, bool) {
	r.rebuildIfDirty()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, route := range r.cache {
		if route.Prefix.Contains(dst) {
			return route.Port, true
		}
	}
	r.dropped.Add(1)
	return 0, false
}

func (r *Router) rebuildIfDirty() {
	if !r.cacheDirty.Load() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.cacheDirty.Load() {
		return
	}

	var all []Route
	all = append(all, r.localRoutes...)
	for port, prefixes := range r.portRoutes {
		for _, p := range prefixes {
			all = append(all, Route{Prefix: p, Port: port})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Prefix.Bits() > all[j].Prefix.Bits()
	})

	r.cache = all
	r.cacheDirty.Store(false)
}
