// Package client provides the façade applications use to talk to the
// game: a single persistent connection, a background router goroutine,
// and typed request/notification/subscribe methods built on top of the
// message catalog.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"wdbg/conn"
	"wdbg/message"
	"wdbg/middleware"
	"wdbg/packet"
	"wdbg/router"
	"wdbg/wdbgerr"
)

// Options configures a Client. There is no config-file layer here — every
// field is an explicit constructor parameter.
type Options struct {
	IP           net.IP
	Port         int
	ConnTimeout  time.Duration
	ReadTimeout  time.Duration
	PollInterval time.Duration // not read by Connect; Start takes the poll interval as its argument
	Logger       *zap.SugaredLogger

	// Middleware wraps every request's round trip, outermost first, as an
	// onion-model chain built by middleware.Chain. Nil/empty means no
	// interceptors run.
	Middleware []middleware.Middleware
}

// Client is the façade owning the write half of a connection and the
// router driving its read half.
type Client struct {
	writeMu sync.Mutex
	write   *conn.Conn

	router      *router.Router
	logger      *zap.SugaredLogger
	chain       middleware.Middleware
	readTimeout time.Duration

	routerMu   sync.Mutex
	routerDone chan error
	cancel     *atomic.Bool
	started    bool
}

// Connect dials opts.IP:opts.Port and returns a Client ready to Start.
func Connect(opts Options) (*Client, error) {
	if opts.Port == 0 {
		opts.Port = conn.GamePort
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	var c *conn.Conn
	var err error
	if opts.ConnTimeout > 0 {
		c, err = conn.ConnectTimeout(opts.IP, opts.Port, opts.ConnTimeout)
	} else {
		c, err = conn.Connect(opts.IP, opts.Port)
	}
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}

	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	if err := c.SetReadTimeout(readTimeout); err != nil {
		c.Close()
		return nil, fmt.Errorf("client: %w", err)
	}

	return &Client{
		write:       c,
		router:      router.New(opts.Logger),
		logger:      opts.Logger,
		chain:       middleware.Chain(opts.Middleware...),
		cancel:      &atomic.Bool{},
		readTimeout: readTimeout,
	}, nil
}

// pushNamespaces lists every namespace this client subscribes to on Start,
// so the game begins pushing notifications for all of them.
var pushNamespaces = []message.Namespace{
	message.NamespaceScriptDebugger,
	message.NamespaceScriptProfiler,
	message.NamespaceScriptCompiler,
	message.NamespaceScripts,
	message.NamespaceRemote,
	message.NamespaceUtility,
	message.NamespaceConfig,
}

// Start spawns the router's event loop on its own goroutine over a cloned
// read handle, pre-registers the ScriptsReloadProgress push so the router
// can classify it before anyone subscribes to it, and sends a Listen
// notification for each namespace so the game begins pushing. Response
// identifiers are not pre-registered: each enters the router's registry
// when the first request for it registers a waiter. Calling Start twice
// returns an error.
func (c *Client) Start(pollInterval time.Duration) error {
	c.routerMu.Lock()
	defer c.routerMu.Unlock()
	if c.started {
		return wdbgerr.Wrap(wdbgerr.KindLifecycle, fmt.Errorf("client: already started"))
	}

	if err := c.router.RegisterNotification(message.ScriptsReloadProgressIdentifier, nil); err != nil {
		return fmt.Errorf("client: pre-register known notifications: %w", err)
	}

	readHalf, err := c.write.TryClone()
	if err != nil {
		return fmt.Errorf("client: clone read handle: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.router.EventLoop(readHalf, pollInterval, c.cancel)
	}()
	c.routerDone = done
	c.started = true

	for _, ns := range pushNamespaces {
		if err := c.send(message.AssembleListen(ns)); err != nil {
			return fmt.Errorf("client: send listen for namespace %q: %w", ns, err)
		}
	}
	return nil
}

// Stop signals the router to stop and blocks until its goroutine exits,
// returning whatever error ended the loop (router.ErrStopped on a clean
// stop, or a connection error otherwise).
func (c *Client) Stop() error {
	c.routerMu.Lock()
	defer c.routerMu.Unlock()
	if !c.started {
		return wdbgerr.Wrap(wdbgerr.KindLifecycle, fmt.Errorf("client: not started"))
	}
	c.cancel.Store(true)
	err := <-c.routerDone
	c.started = false
	return err
}

// Close releases the underlying connection. Call Stop first if Start was
// called.
func (c *Client) Close() error {
	return c.write.Close()
}

func (c *Client) send(p *packet.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.write.Send(p)
}

// request registers a waiter for respID before sending p, then blocks for
// the response with the connection's current read timeout — the wait
// inherits that deadline with zero extra configuration, the same way a
// single Receive call would have. Registering before sending is required:
// otherwise a fast server could reply before this client starts listening
// for it. The round trip runs through the configured middleware chain, so
// retry, logging, and rate-limit interceptors see every request the same
// way regardless of which typed method issued it; an additional
// middleware.TimeoutMiddleware layer still applies on top if configured.
func (c *Client) request(respID message.Identifier, p *packet.Packet) (*packet.Packet, error) {
	raw := func(ctx context.Context, p *packet.Packet) (*packet.Packet, error) {
		ch, err := c.router.RegisterWaiter(respID)
		if err != nil {
			return nil, fmt.Errorf("client: register waiter: %w", err)
		}
		if err := c.send(p); err != nil {
			return nil, fmt.Errorf("client: send request: %w", err)
		}

		timer := time.NewTimer(c.readTimeout)
		defer timer.Stop()
		select {
		case resp, ok := <-ch:
			if !ok {
				return nil, wdbgerr.Wrap(wdbgerr.KindTransport, fmt.Errorf("client: connection closed before a response arrived"))
			}
			return resp, nil
		case <-timer.C:
			return nil, wdbgerr.Wrap(wdbgerr.KindTimeout, fmt.Errorf("client: waited too long for a response"))
		}
	}
	return c.chain(raw)(context.Background(), p)
}

// ReloadScripts fires the fire-and-forget "recompile scripts" notification.
func (c *Client) ReloadScripts() error {
	return c.send(message.AssembleReloadScripts())
}

// OnScriptsReloadProgress subscribes callback to the script-recompilation
// progress push. Passing nil unsubscribes.
func (c *Client) OnScriptsReloadProgress(callback func(message.ReloadProgress)) error {
	return c.router.RegisterNotification(message.ScriptsReloadProgressIdentifier, func(p *packet.Packet) {
		progress, err := message.DisassembleReloadProgress(p)
		if err != nil {
			c.logger.Warnw("client: failed to decode reload progress notification", "error", err)
			return
		}
		if callback != nil {
			callback(progress)
		}
	})
}

// OnRawPacket installs an observer that sees every inbound packet before
// identifier classification, for diagnostics (e.g. a --verbose flag).
// Passing nil removes the observer.
func (c *Client) OnRawPacket(callback func(*packet.Packet)) {
	c.router.SetRawObserver(callback)
}

// ScriptsRootPath asks the game for the absolute path scripts are rooted at.
func (c *Client) ScriptsRootPath() (string, error) {
	resp, err := c.request(message.ScriptsRootPathResponseIdentifier, message.AssembleScriptsRootPathRequest())
	if err != nil {
		return "", err
	}
	return message.DisassembleScriptsRootPathResponse(resp)
}

// ExecuteCommand runs cmd in the game's console and returns its outcome.
func (c *Client) ExecuteCommand(cmd string) (message.ExecuteCommandResult, error) {
	resp, err := c.request(message.ExecuteCommandResponseIdentifier, message.AssembleExecuteCommandRequest(cmd))
	if err != nil {
		return message.ExecuteCommandResult{}, err
	}
	return message.DisassembleExecuteCommandResponse(resp)
}

// ScriptPackages lists the loaded mod/content script packages.
func (c *Client) ScriptPackages() ([]message.ScriptPackage, error) {
	resp, err := c.request(message.ScriptPackagesResponseIdentifier, message.AssembleScriptPackagesRequest())
	if err != nil {
		return nil, err
	}
	return message.DisassembleScriptPackagesResponse(resp)
}

// Opcodes requests the compiled opcode breakdown for q.
func (c *Client) Opcodes(q message.OpcodesQuery) ([]message.OpcodeBreakdown, error) {
	resp, err := c.request(message.OpcodesResponseIdentifier, message.AssembleOpcodesRequest(q))
	if err != nil {
		return nil, err
	}
	return message.DisassembleOpcodesResponse(resp)
}

// ConfigVars lists config variables matching q.
func (c *Client) ConfigVars(q message.ConfigVarsQuery) ([]message.ConfigVar, error) {
	resp, err := c.request(message.ConfigVarsResponseIdentifier, message.AssembleConfigVarsRequest(q))
	if err != nil {
		return nil, err
	}
	return message.DisassembleConfigVarsResponse(resp)
}
