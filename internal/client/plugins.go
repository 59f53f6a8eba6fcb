package client

import (
	"slices"
	"sync"
)

// Plugin extends a client. Register is called once, when the plugin is
// registered.
type Plugin interface {
	Name() string
	Register(c *Client) error
}

// pluginRegistry keeps plugins by name, in registration order.
type pluginRegistry struct {
	mu     sync.Mutex
	byName map[string]Plugin
	order  []string
}

func newPluginRegistry() *pluginRegistry {
	return &pluginRegistry{byName: make(map[string]Plugin)}
}

// RegisterPlugin registers p and emits plugin:loaded. An empty or already
// registered name, or a failing Register, is a configuration error.
func (c *Client) RegisterPlugin(p Plugin) error {
	if p == nil || p.Name() == "" {
		return configError(ErrCodePluginInvalid, nil, "plugin has no name")
	}
	name := p.Name()

	r := c.plugins
	r.mu.Lock()
	if _, dup := r.byName[name]; dup {
		r.mu.Unlock()
		return configError(ErrCodePluginInvalid, nil, "plugin %q is already registered", name)
	}
	r.byName[name] = p
	r.order = append(r.order, name)
	r.mu.Unlock()

	if err := p.Register(c); err != nil {
		r.mu.Lock()
		delete(r.byName, name)
		r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
		r.mu.Unlock()
		return configError(ErrCodePluginInvalid, err, "register plugin %q", name)
	}

	c.logger.Debug("plugin loaded", "plugin", name)
	c.events.emit(Event{Name: EventPluginLoaded, Plugin: p})
	return nil
}

// Plugins returns the registered plugins in registration order.
func (c *Client) Plugins() []Plugin {
	r := c.plugins
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Plugin, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Plugin returns the plugin registered under name, or nil.
func (c *Client) Plugin(name string) Plugin {
	r := c.plugins
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byName[name]
}
