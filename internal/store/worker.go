package store

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	stdatomic "sync/atomic"
	"time"

	"github.com/harunnryd/kiki/internal/config"
	kerrors "github.com/harunnryd/kiki/internal/errors"

	"github.com/natefinch/atomic"
)

type Operation int

const (
	OpWriteSlot Operation = iota
	OpReadSlot
	OpDeleteSlot
	OpListSlots
)

func (o Operation) String() string {
	switch o {
	case OpWriteSlot:
		return "write_slot"
	case OpReadSlot:
		return "read_slot"
	case OpDeleteSlot:
		return "delete_slot"
	case OpListSlots:
		return "list_slots"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

type Request struct {
	Op       Operation
	Payload  interface{}
	Result   chan error
	Response chan interface{}
}

type WriteSlotPayload struct {
	Name string
	Data []byte
}

type SlotPayload struct {
	Name string
}

// Worker owns a workspace directory. All slot I/O is serialized through a single goroutine
// while the workspace file lock is held.
type Worker struct {
	basePath string
	inbox    chan Request
	fileLock *FileLock
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  stdatomic.Bool
}

type RuntimeConfig struct {
	LockTimeout  time.Duration
	LockRetry    time.Duration
	LockMaxRetry int
	InboxSize    int
}

// RuntimeConfigFrom converts the configured store section, falling back to defaults.
func RuntimeConfigFrom(cfg config.StoreConfig) (RuntimeConfig, error) {
	lockTimeout, err := config.DurationOrDefault(cfg.LockTimeout, config.DefaultStoreLockTimeout)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("store lock timeout: %w", err)
	}
	lockRetry, err := config.DurationOrDefault(cfg.LockRetry, config.DefaultStoreLockRetry)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("store lock retry: %w", err)
	}
	return RuntimeConfig{
		LockTimeout:  lockTimeout,
		LockRetry:    lockRetry,
		LockMaxRetry: cfg.LockMaxRetry,
		InboxSize:    cfg.InboxSize,
	}, nil
}

func NewWorker(workspacePath string, runtimeCfg RuntimeConfig) (*Worker, error) {
	basePath, err := ResolveWorkspacePath(workspacePath)
	if err != nil {
		return nil, err
	}

	slotsDir := SlotsDir(basePath)
	if err := os.MkdirAll(slotsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dir %s: %w", slotsDir, err)
	}

	defaults := DefaultFileLockConfig()
	if runtimeCfg.LockTimeout <= 0 {
		runtimeCfg.LockTimeout = defaults.LockTimeout
	}
	if runtimeCfg.LockRetry <= 0 {
		runtimeCfg.LockRetry = defaults.LockRetry
	}
	if runtimeCfg.LockMaxRetry <= 0 {
		runtimeCfg.LockMaxRetry = defaults.LockMaxRetry
	}
	if runtimeCfg.InboxSize <= 0 {
		runtimeCfg.InboxSize = config.DefaultStoreInboxSize
	}

	fileLock, err := NewFileLock(basePath, &FileLockConfig{
		LockTimeout:  runtimeCfg.LockTimeout,
		LockRetry:    runtimeCfg.LockRetry,
		LockMaxRetry: runtimeCfg.LockMaxRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return &Worker{
		basePath: basePath,
		inbox:    make(chan Request, runtimeCfg.InboxSize),
		fileLock: fileLock,
		quit:     make(chan struct{}),
	}, nil
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *Worker) loop() {
	slog.Debug("Store worker started", "path", w.basePath)
	w.running.Store(true)
	defer func() {
		w.running.Store(false)
		w.wg.Done()
	}()

	for {
		select {
		case req := <-w.inbox:
			err := w.handle(req)
			if err != nil {
				slog.Debug("Store request failed", "op", req.Op.String(), "error", err)
			}
			if req.Result != nil {
				req.Result <- err
			}
		case <-w.quit:
			slog.Debug("Store worker stopping", "path", w.basePath)
			return
		}
	}
}

func (w *Worker) handle(req Request) error {
	switch req.Op {
	case OpWriteSlot:
		p, ok := req.Payload.(WriteSlotPayload)
		if !ok {
			return kerrors.Internal("invalid payload for WriteSlot")
		}
		return w.writeSlot(p.Name, p.Data)
	case OpReadSlot:
		p, ok := req.Payload.(SlotPayload)
		if !ok {
			return kerrors.Internal("invalid payload for ReadSlot")
		}
		data, err := w.readSlot(p.Name)
		if req.Response != nil {
			req.Response <- data
		}
		return err
	case OpDeleteSlot:
		p, ok := req.Payload.(SlotPayload)
		if !ok {
			return kerrors.Internal("invalid payload for DeleteSlot")
		}
		return w.deleteSlot(p.Name)
	case OpListSlots:
		names, err := w.listSlots()
		if req.Response != nil {
			req.Response <- names
		}
		return err
	default:
		return kerrors.Internal(fmt.Sprintf("unknown operation: %d", req.Op))
	}
}

func (w *Worker) writeSlot(name string, data []byte) error {
	path, err := SlotPath(w.basePath, name)
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

func (w *Worker) readSlot(name string) ([]byte, error) {
	path, err := SlotPath(w.basePath, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kerrors.NotFound(fmt.Sprintf("slot %q", name))
		}
		return nil, err
	}
	return data, nil
}

func (w *Worker) deleteSlot(name string) error {
	path, err := SlotPath(w.basePath, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (w *Worker) listSlots() ([]string, error) {
	entries, err := os.ReadDir(SlotsDir(w.basePath))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), slotExt) {
			names = append(names, strings.TrimSuffix(entry.Name(), slotExt))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Public API for other components

func (w *Worker) submit(req Request) error {
	select {
	case <-w.quit:
		return kerrors.Internal("store worker stopped")
	case w.inbox <- req:
	}
	select {
	case err := <-req.Result:
		return err
	case <-w.quit:
		return kerrors.Internal("store worker stopped")
	}
}

// WriteSlot atomically replaces the content of the named slot.
func (w *Worker) WriteSlot(name string, data []byte) error {
	return w.submit(Request{
		Op:      OpWriteSlot,
		Payload: WriteSlotPayload{Name: name, Data: data},
		Result:  make(chan error, 1),
	})
}

// ReadSlot returns the slot content, or an ErrNotFound error when the slot is absent.
func (w *Worker) ReadSlot(name string) ([]byte, error) {
	resp := make(chan interface{}, 1)
	err := w.submit(Request{
		Op:       OpReadSlot,
		Payload:  SlotPayload{Name: name},
		Result:   make(chan error, 1),
		Response: resp,
	})
	if err != nil {
		return nil, err
	}
	return (<-resp).([]byte), nil
}

// DeleteSlot removes the slot. Deleting an absent slot is not an error.
func (w *Worker) DeleteSlot(name string) error {
	return w.submit(Request{
		Op:      OpDeleteSlot,
		Payload: SlotPayload{Name: name},
		Result:  make(chan error, 1),
	})
}

func (w *Worker) ListSlots() ([]string, error) {
	resp := make(chan interface{}, 1)
	err := w.submit(Request{
		Op:       OpListSlots,
		Result:   make(chan error, 1),
		Response: resp,
	})
	if err != nil {
		return nil, err
	}
	return (<-resp).([]string), nil
}

func (w *Worker) Path() string {
	return w.basePath
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		slog.Debug("Store worker stop called", "path", w.basePath, "lock_held", w.fileLock.IsLocked())
		close(w.quit)
		w.wg.Wait()
		if w.fileLock.IsLocked() {
			w.fileLock.Unlock()
		}
	})
}

func (w *Worker) IsLockHeld() bool {
	return w.fileLock.IsLocked()
}

func (w *Worker) IsRunning() bool {
	return w.fileLock.IsLocked() && w.running.Load()
}
