package monitor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"ledsign/internal/logging"
	"ledsign/internal/usb"
)

// Action is what happened to a sign.
type Action string

const (
	Attached Action = "attached"
	Detached Action = "detached"
)

// Event describes a sign appearing or disappearing.
type Event struct {
	Action Action
	Path   string
}

// Handler receives sign events. It runs on the monitor goroutine.
type Handler func(ctx context.Context, ev Event)

// Monitor watches the kernel uevent stream for signs.
type Monitor struct {
	logger  *slog.Logger
	handler Handler

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	done    chan struct{}
	running bool
}

// New returns a stopped monitor that forwards events to handler.
func New(logger *slog.Logger, handler Handler) *Monitor {
	return &Monitor{
		logger:  logging.NewComponentLogger(logger, "monitor"),
		handler: handler,
	}
}

// Start connects to the udev netlink socket and begins delivering events.
// Starting a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run with permission to open NETLINK_KOBJECT_UEVENT sockets"),
			logging.String(logging.FieldImpact, "sign hotplug events unavailable"),
		)
		return err
	}
	m.conn = conn
	m.quit = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true
	go m.loop(ctx, conn, m.quit, m.done)

	m.logger.Info("sign monitor started", logging.String(logging.FieldEventType, "monitor_started"))
	return nil
}

// Stop closes the netlink socket and waits for the event loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.quit)
	done := m.done
	_ = m.conn.Close()
	m.conn, m.quit, m.done = nil, nil, nil
	m.running = false
	m.mu.Unlock()

	<-done
	m.logger.Info("sign monitor stopped", logging.String(logging.FieldEventType, "monitor_stopped"))
}

// Running reports whether the monitor is listening.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, conn *netlink.UEventConn, quit, done chan struct{}) {
	defer close(done)
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, usb.Matcher("add", "remove"))

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "monitor_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "sign events may be missed"),
			)
		}
	}
}

func (m *Monitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	path := usb.DevicePath(uevent.Env)
	if path == "" {
		m.logger.Debug("ignoring event without device node",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}

	var ev Event
	switch uevent.Action {
	case netlink.ADD:
		ev = Event{Action: Attached, Path: path}
	case netlink.REMOVE:
		ev = Event{Action: Detached, Path: path}
	default:
		return
	}
	m.logger.Info("sign "+string(ev.Action),
		logging.String(logging.FieldEventType, "sign_"+string(ev.Action)),
		logging.String(logging.FieldDevice, path),
	)
	if m.handler != nil {
		m.handler(ctx, ev)
	}
}
