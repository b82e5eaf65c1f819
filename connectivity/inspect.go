package connectivity

import (
	"iter"
	"slices"
	"strings"
)

// ServiceInfo is a snapshot of one routed service.
type ServiceInfo struct {
	Name     string `json:"name"`
	Strategy string `json:"strategy"`
	Endpoint string `json:"endpoint,omitempty"`
	HasLocal bool   `json:"has_local"`
}

// ListServices yields every service known to the router: routed ones first,
// then local-only ones.
func (r *Router) ListServices() iter.Seq[ServiceInfo] {
	return func(yield func(ServiceInfo) bool) {
		r.mu.RLock()
		defer r.mu.RUnlock()

		for name, rt := range r.routeSnap {
			_, hasLocal := r.localHandlers[name]
			if !yield(ServiceInfo{Name: name, Strategy: rt.Strategy, Endpoint: rt.Endpoint, HasLocal: hasLocal}) {
				return
			}
		}
		for name := range r.localHandlers {
			if _, routed := r.routeSnap[name]; routed {
				continue
			}
			if !yield(ServiceInfo{Name: name, Strategy: "local", HasLocal: true}) {
				return
			}
		}
	}
}

// Services returns ListServices sorted by name.
func (r *Router) Services() []ServiceInfo {
	out := slices.Collect(r.ListServices())
	slices.SortFunc(out, func(a, b ServiceInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}
