package router

import (
	"net/url"
	"sync"
)

// Router holds the current view, its history and the identity it was last
// guarded for. It is safe for concurrent use.
type Router struct {
	mu        sync.Mutex
	history   *HistoryStack
	anonymous bool
	known     bool
	redirects int
}

// New starts at the view named by rawURL's path. Callback parameters are
// stripped from the first history entry.
func New(rawURL string) *Router {
	path := "/"
	if u, err := url.Parse(rawURL); err == nil {
		path = StripCallbackParams(u).Path
	}
	v := ViewForPath(path)
	return &Router{history: NewHistory(Entry{View: v, Path: PathFor(v)})}
}

func (r *Router) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.Current().View
}

func (r *Router) Current() Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.Current()
}

// Redirects counts forced transitions.
func (r *Router) Redirects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redirects
}

// SetIdentity records the identity and re-applies the guard only when it
// differs from the last one seen.
func (r *Router) SetIdentity(anonymous bool) View {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.known && r.anonymous == anonymous {
		return r.history.Current().View
	}
	r.known = true
	r.anonymous = anonymous
	return r.guardLocked()
}

// Navigate pushes v after guarding it.
func (r *Router) Navigate(v View) View {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.history.Current().View == v {
		return v
	}
	if r.known {
		if to, forced := Guard(r.anonymous, v); forced {
			r.redirects++
			v = to
		}
	}
	r.history.Push(Entry{View: v, Path: PathFor(v)})
	return v
}

// Replace swaps the current entry for v without growing history.
func (r *Router) Replace(v View) View {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history.Replace(Entry{View: v, Path: PathFor(v)})
	return r.guardLocked()
}

// Back and Forward move through history the way a browser popstate does.
func (r *Router) Back() (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.history.Back(); !ok {
		return r.history.Current().View, false
	}
	return r.popLocked(), true
}

func (r *Router) Forward() (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.history.Forward(); !ok {
		return r.history.Current().View, false
	}
	return r.popLocked(), true
}

// popLocked resolves the current entry: the stored view first, then the
// path, else Dashboard. The result is guarded without pushing.
func (r *Router) popLocked() View {
	e := r.history.Current()
	v := e.View
	if _, ok := viewPaths[v]; !ok {
		v = ViewForPath(e.Path)
	}
	r.history.Replace(Entry{View: v, Path: PathFor(v)})
	return r.guardLocked()
}

func (r *Router) guardLocked() View {
	cur := r.history.Current().View
	if !r.known {
		return cur
	}
	to, forced := Guard(r.anonymous, cur)
	if !forced {
		return cur
	}
	r.redirects++
	r.history.Replace(Entry{View: to, Path: PathFor(to)})
	return to
}

// Render reports the view to draw. It never redirects on its own.
func (r *Router) Render() View {
	return r.View()
}
