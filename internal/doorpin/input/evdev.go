package input

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/doorpin/server/internal/clock"
	"github.com/doorpin/server/internal/doorpin/keypad"
)

// Linux input event constants (include/uapi/linux/input-event-codes.h).
const (
	evKey      = 0x01
	keyPressed = 1
)

// eviocgName encodes EVIOCGNAME(256): _IOC(_IOC_READ, 'E', 0x06, 256).
const (
	nameBufLen = 256
	eviocgName = 2<<30 | nameBufLen<<16 | 'E'<<8 | 0x06
)

// eventSize is sizeof(struct input_event): a timeval followed by
// type (u16), code (u16) and value (s32).
var eventSize = int(unsafe.Sizeof(unix.Timeval{})) + 8

// EvdevSource reads key-down events from one /dev/input/event* node and
// runs them through a keypad.Listener.
type EvdevSource struct {
	Path       string
	DeviceName string
	Options    keypad.Options
	Clock      clock.Clock
}

func (s *EvdevSource) Name() string {
	if s.DeviceName != "" {
		return s.DeviceName + " (" + s.Path + ")"
	}
	return s.Path
}

func (s *EvdevSource) Run(ctx context.Context, emit func(Candidate)) error {
	f, err := openDevice(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	// Closing the file unblocks the pending read.
	stop := context.AfterFunc(ctx, func() { _ = f.Close() })
	defer stop()

	err = readKeys(f, keypad.NewListener(s.Options), s.Clock, s.Name(), emit)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readKeys decodes input_event records from r until it fails. The kernel
// only ever returns whole records.
func readKeys(r io.Reader, l *keypad.Listener, clk clock.Clock, device string, emit func(Candidate)) error {
	buf := make([]byte, eventSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read %s: %w", device, err)
		}
		typ, code, value := parseEvent(buf)
		if typ != evKey || value != keyPressed {
			continue
		}
		k, ok := keypad.DecodeKey(code)
		if !ok {
			continue
		}
		if c, ok := l.Feed(k, clk.Now()); ok {
			emit(Candidate{Value: c, Device: device})
		}
	}
}

func parseEvent(b []byte) (typ, code uint16, value int32) {
	tv := eventSize - 8
	typ = binary.NativeEndian.Uint16(b[tv:])
	code = binary.NativeEndian.Uint16(b[tv+2:])
	value = int32(binary.NativeEndian.Uint32(b[tv+4:]))
	return typ, code, value
}

// openDevice opens path non-blocking so reads go through the runtime
// poller and Close interrupts them.
func openDevice(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return os.NewFile(uintptr(fd), path), nil
}

func deviceName(fd uintptr) (string, error) {
	var buf [nameBufLen]byte
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		fd,
		uintptr(eviocgName),
		uintptr(unsafe.Pointer(&buf[0])),
	)
	if errno != 0 {
		return "", fmt.Errorf("EVIOCGNAME: %w", errno)
	}
	return string(bytes.TrimRight(buf[:], "\x00")), nil
}

// EvdevDiscover lists every /dev/input/event* device whose name contains
// filter (case-insensitive; empty matches all).
func EvdevDiscover(filter string, opts keypad.Options, clk clock.Clock, logger *slog.Logger) Discover {
	return evdevDiscover("/dev/input/event*", filter, opts, clk, logger)
}

func evdevDiscover(pattern, filter string, opts keypad.Options, clk clock.Clock, logger *slog.Logger) Discover {
	filter = strings.ToLower(filter)
	return func(ctx context.Context) ([]Source, error) {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		var srcs []Source
		for _, p := range paths {
			name, err := readDeviceName(p)
			if err != nil {
				logger.Warn("skipping input device", slog.String("path", p), slog.String("error", err.Error()))
				continue
			}
			if filter != "" && !strings.Contains(strings.ToLower(name), filter) {
				continue
			}
			srcs = append(srcs, &EvdevSource{Path: p, DeviceName: name, Options: opts, Clock: clk})
		}
		if len(srcs) == 0 {
			return nil, ErrNoDevices
		}
		return srcs, nil
	}
}

func readDeviceName(path string) (string, error) {
	f, err := openDevice(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	raw, err := f.SyscallConn()
	if err != nil {
		return "", err
	}
	var (
		name    string
		nameErr error
	)
	if err := raw.Control(func(fd uintptr) { name, nameErr = deviceName(fd) }); err != nil {
		return "", err
	}
	if nameErr != nil && !errors.Is(nameErr, unix.ENOTTY) {
		return "", nameErr
	}
	return name, nil
}
