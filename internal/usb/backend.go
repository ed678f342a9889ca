package usb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gofrs/flock"
	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
	"golang.org/x/sys/unix"

	"ledsign/internal/config"
	"ledsign/internal/logging"
	"ledsign/internal/protocol"
)

const (
	VendorID  = 0xfff0
	ProductID = 0x1000

	devicePrefix = "/dev/bus/usb/"
)

// Matcher selects udev events and sysfs entries that describe a sign.
func Matcher(actions ...string) netlink.Matcher {
	rule := netlink.RuleDefinition{
		Env: map[string]string{
			"DEVTYPE": "usb_device",
			"PRODUCT": fmt.Sprintf("^%x/%x/", VendorID, ProductID),
		},
	}
	if len(actions) > 0 {
		action := strings.Join(actions, "|")
		rule.Action = &action
	}
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(rule)
	return rules
}

// DevicePath returns the usbdevfs node named by a udev environment.
func DevicePath(env map[string]string) string {
	if name := env["DEVNAME"]; name != "" {
		if strings.HasPrefix(name, "/") {
			return name
		}
		return "/dev/" + name
	}
	bus, dev := env["BUSNUM"], env["DEVNUM"]
	if bus == "" || dev == "" {
		return ""
	}
	return devicePrefix + bus + "/" + dev
}

// LockName derives the lock file name of a device node.
func LockName(path string) (string, error) {
	rest, ok := strings.CutPrefix(filepath.Clean(path), devicePrefix)
	parts := strings.Split(rest, "/")
	if !ok || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("%w: %s is not a %sBBB/DDD node", protocol.ErrDeviceNotFound, path, devicePrefix)
	}
	return parts[0] + "-" + parts[1] + ".lock", nil
}

// Backend enumerates and opens signs on the local machine.
type Backend struct {
	lockDir string
	logger  *slog.Logger
}

// NewBackend returns a backend that places device locks in the configured
// lock directory.
func NewBackend(cfg *config.Config, logger *slog.Logger) *Backend {
	return &Backend{
		lockDir: cfg.Device.LockDir,
		logger:  logging.NewComponentLogger(logger, "usb"),
	}
}

// Enumerate lists the device nodes of every attached sign in sorted order.
func (b *Backend) Enumerate(ctx context.Context) ([]string, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error, 1)
	quit := crawler.ExistingDevices(queue, errs, Matcher())

	var paths []string
	for {
		select {
		case <-ctx.Done():
			close(quit)
			return nil, ctx.Err()
		case err := <-errs:
			close(quit)
			return nil, fmt.Errorf("crawl sysfs: %w", err)
		case dev, ok := <-queue:
			if !ok {
				slices.Sort(paths)
				b.logger.Debug("enumerated signs", logging.Int("count", len(paths)))
				return slices.Compact(paths), nil
			}
			if path := DevicePath(dev.Env); path != "" {
				paths = append(paths, path)
			}
		}
	}
}

// Open locks, opens and claims the sign at path.
func (b *Backend) Open(ctx context.Context, path string) (protocol.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := LockName(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(b.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(filepath.Join(b.lockDir, name))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire device lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is locked by another process", protocol.ErrDeviceInUse, path)
	}

	dev, err := openDevice(path)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	dev.lock = lock
	b.logger.Debug("sign opened", logging.String(logging.FieldDevice, path))
	return dev, nil
}

func classifyOpenError(path string, err error) error {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENODEV):
		return fmt.Errorf("%w: %s: %w", protocol.ErrDeviceNotFound, path, err)
	case errors.Is(err, unix.EBUSY):
		return fmt.Errorf("%w: %s: %w", protocol.ErrDeviceInUse, path, err)
	}
	return fmt.Errorf("open %s: %w", path, err)
}
