package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/rpc"
	"os/exec"
	"sync"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

// handshakeConfig gates which binaries the host will dispense hook plugins
// from. Plugin authors must embed this exact magic cookie in their process.
var handshakeConfig = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "CODA_HOOK_PLUGIN",
	MagicCookieValue: "coda_hook_plugin_v1",
}

// HookPlugin is the RPC contract a long-lived hook plugin process exposes.
// Dispatch is request/response over net/rpc rather than gRPC: a hook
// plugin answers one Event with one Response and nothing streams, so the
// simpler net/rpc transport go-plugin also supports is the right fit.
type HookPlugin interface {
	Handle(event *Event) (*Response, error)
}

// hookRPCPlugin implements goplugin.Plugin, wiring HookPlugin onto net/rpc.
type hookRPCPlugin struct {
	Impl HookPlugin
}

func (p *hookRPCPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &hookRPCServer{impl: p.Impl}, nil
}

func (p *hookRPCPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &hookRPCClient{client: c}, nil
}

type hookRPCServer struct {
	impl HookPlugin
}

func (s *hookRPCServer) Handle(args []byte, resp *[]byte) error {
	var event Event
	if err := json.Unmarshal(args, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	out, err := s.impl.Handle(&event)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	*resp = encoded
	return nil
}

type hookRPCClient struct {
	client *rpc.Client
}

func (c *hookRPCClient) Handle(event *Event) (*Response, error) {
	args, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	var resp []byte
	if err := c.client.Call("Plugin.Handle", args, &resp); err != nil {
		return nil, fmt.Errorf("plugin rpc call: %w", err)
	}
	var out Response
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("decode plugin response: %w", err)
	}
	out.Delivered = true
	return &out, nil
}

// PluginSpec describes a long-lived hook plugin: a subprocess launched once
// and reused for every matching event, rather than forked per-call like a
// command hook.
type PluginSpec struct {
	Name     string
	Command  string
	Args     []string
	Matchers Filter
}

// PluginHost manages the lifecycle of plugin hook processes: one
// goplugin.Client per registered plugin, started lazily on first use and
// torn down by Close.
type PluginHost struct {
	logger hclog.Logger

	mu      sync.Mutex
	clients map[string]*goplugin.Client
	impls   map[string]HookPlugin
}

// NewPluginHost constructs an empty PluginHost.
func NewPluginHost() *PluginHost {
	return &PluginHost{
		logger: hclog.New(&hclog.LoggerOptions{
			Name:  "coda-hook-plugin",
			Level: hclog.Warn,
		}),
		clients: make(map[string]*goplugin.Client),
		impls:   make(map[string]HookPlugin),
	}
}

// Dispatch starts (if necessary) and calls the named plugin with event. The
// launched process is kept warm for subsequent calls.
func (h *PluginHost) Dispatch(ctx context.Context, spec PluginSpec, event *Event) (*Response, error) {
	if !spec.Matchers.Matches(event) {
		return nil, nil
	}

	impl, err := h.impl(spec)
	if err != nil {
		return nil, err
	}
	return impl.Handle(event)
}

func (h *PluginHost) impl(spec PluginSpec) (HookPlugin, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if impl, ok := h.impls[spec.Name]; ok {
		return impl, nil
	}

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: handshakeConfig,
		Plugins: map[string]goplugin.Plugin{
			"hook": &hookRPCPlugin{},
		},
		Cmd:              exec.Command(spec.Command, spec.Args...),
		Logger:           h.logger,
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("connect hook plugin %s: %w", spec.Name, err)
	}

	raw, err := rpcClient.Dispense("hook")
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispense hook plugin %s: %w", spec.Name, err)
	}

	impl, ok := raw.(HookPlugin)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("hook plugin %s does not implement HookPlugin", spec.Name)
	}

	h.clients[spec.Name] = client
	h.impls[spec.Name] = impl
	return impl, nil
}

// Close terminates every plugin process the host has started.
func (h *PluginHost) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, client := range h.clients {
		client.Kill()
		delete(h.clients, name)
		delete(h.impls, name)
	}
}
