// Package lifecycle owns the process-wide cooperative abort latch, the
// cleanup registry, and the interrupt/corruption prompts, grounded on
// the teacher's signal-handling goroutine in cmd/goclaw/main.go
// (signal.Notify(SIGINT, SIGTERM) + signal.Stop to "prevent handling
// the same signal twice") generalized from a single-shutdown daemon
// pattern into the three-choice interactive latch spec'd for the sync
// pipeline. Only one Controller should be installed per process.
package lifecycle

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	. "github.com/memnexus/memnex/internal/logging"
	"github.com/memnexus/memnex/internal/memerr"
	"github.com/memnexus/memnex/internal/store"
)

// Stdin and Stdout are the streams consulted for terminal detection
// before any interactive prompt. Overridable in tests.
var (
	Stdin  *os.File = os.Stdin
	Stdout *os.File = os.Stdout
)

// Controller owns should_abort, the cleanup registry, and the signal
// goroutine for one process. The zero value is not usable; use New.
type Controller struct {
	abort    atomic.Bool
	handling atomic.Bool

	mu       sync.Mutex
	nextID   int
	cleanups map[int]func()

	sigCh chan os.Signal
}

// New constructs an uninstalled Controller. Call Install to start
// handling OS signals.
func New() *Controller {
	return &Controller{cleanups: make(map[int]func())}
}

// ShouldAbort reports the current state of the cooperative latch. The
// sync pipeline polls this between files and between chunks within a
// file (§5 suspension points).
func (c *Controller) ShouldAbort() bool {
	return c.abort.Load()
}

// Abort sets the latch explicitly, independent of any signal.
func (c *Controller) Abort() {
	c.abort.Store(true)
}

// ClearAbort resets the latch. Used by the "cancel, continue" choice.
func (c *Controller) ClearAbort() {
	c.abort.Store(false)
}

// Register adds a cleanup closure (e.g. close the store, flush the
// checkpoint) run on immediate-abort. It returns an id for Deregister.
func (c *Controller) Register(fn func()) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.cleanups[id] = fn
	return id
}

// Deregister removes a previously registered cleanup, e.g. because the
// caller already finished cleanly and must not run twice.
func (c *Controller) Deregister(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cleanups, id)
}

// runCleanup invokes every registered closure, in registration order,
// swallowing nothing but also never allowing one panic to skip the
// rest.
func (c *Controller) runCleanup() {
	c.mu.Lock()
	ids := make([]int, 0, len(c.cleanups))
	for id := range c.cleanups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), len(ids))
	for i, id := range ids {
		fns[i] = c.cleanups[id]
	}
	c.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					L_warn("lifecycle: cleanup panicked", "recover", r)
				}
			}()
			fn()
		}()
	}
}

// Install starts the signal-handling goroutine. SIGINT and SIGTERM are
// handled identically. Call Stop to release the signal channel, e.g.
// at the end of a test.
func (c *Controller) Install() {
	c.sigCh = make(chan os.Signal, 2)
	signal.Notify(c.sigCh, syscall.SIGINT, syscall.SIGTERM)
	go c.loop()
}

// Stop releases the signal channel. Safe to call on an uninstalled
// Controller.
func (c *Controller) Stop() {
	if c.sigCh == nil {
		return
	}
	signal.Stop(c.sigCh)
}

func (c *Controller) loop() {
	for sig := range c.sigCh {
		if !c.handling.CompareAndSwap(false, true) {
			// A second signal arrived while the first was still being
			// processed (e.g. the user is sitting at the prompt).
			// Force exit, bypassing cleanup entirely.
			L_warn("lifecycle: second interrupt, forcing exit")
			os.Exit(130)
		}
		// Handled off the loop goroutine so a second signal can be
		// received while the first is still at the prompt.
		go func(sig os.Signal) {
			c.handleSignal(sig)
			c.handling.Store(false)
		}(sig)
	}
}

// handleSignal implements the first-interrupt decision tree. Split out
// from loop so tests can drive it without real OS signals.
func (c *Controller) handleSignal(sig os.Signal) {
	L_info("lifecycle: received signal", "signal", sig)

	if !isTerminal(Stdin) || !isTerminal(Stdout) {
		L_info("lifecycle: non-terminal stdio, defaulting to graceful abort")
		c.Abort()
		return
	}

	switch promptInterruptChoice() {
	case choiceAbortImmediately:
		c.runCleanup()
		os.Exit(130)
	case choiceAbortAfterUnit:
		c.Abort()
	case choiceCancel:
		c.ClearAbort()
	}
}

type interruptChoice int

const (
	choiceAbortImmediately interruptChoice = iota
	choiceAbortAfterUnit
	choiceCancel
)

// promptInterruptChoice presents the three-way interrupt decision. A
// form error (e.g. the user mashed ctrl-c again mid-prompt) is treated
// as "abort after current unit", the safer default.
func promptInterruptChoice() interruptChoice {
	choice := choiceAbortAfterUnit
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[interruptChoice]().
				Title("Interrupted").
				Description("Sync is in progress. What do you want to do?").
				Options(
					huh.NewOption("Abort immediately", choiceAbortImmediately),
					huh.NewOption("Abort after current unit", choiceAbortAfterUnit),
					huh.NewOption("Cancel, continue", choiceCancel),
				).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		L_warn("lifecycle: interrupt prompt failed, defaulting to graceful abort", "error", err)
		return choiceAbortAfterUnit
	}
	return choice
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// OpenStoreWithRecovery opens the store at path, offering interactive
// corruption recovery when Open reports DB_CORRUPTED and stdio is a
// terminal: on "yes" the corrupt file is quarantined alongside
// internal/checkpoint's own corrupt-file convention
// (<path>.corrupted.<unix-ts>) and a fresh store is opened in its
// place. Any other outcome (non-terminal stdio, a "no" answer, or a
// non-corruption error) returns the original error untouched.
func OpenStoreWithRecovery(path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err == nil {
		return st, nil
	}

	merr := memerr.As(err)
	if merr.Code != memerr.CodeDBCorrupted {
		return nil, err
	}
	if !isTerminal(Stdin) || !isTerminal(Stdout) {
		return nil, err
	}
	if !promptRecreate() {
		return nil, err
	}

	quarantined := fmt.Sprintf("%s.corrupted.%d", path, time.Now().UTC().Unix())
	if renameErr := os.Rename(path, quarantined); renameErr != nil {
		return nil, fmt.Errorf("quarantine corrupt database: %w", renameErr)
	}
	L_warn("lifecycle: quarantined corrupt database", "original", path, "quarantined", quarantined)

	fresh, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	L_info("lifecycle: recreated database, re-sync required", "path", path)
	return fresh, nil
}

// promptRecreate asks the "Recreate and re-sync?" confirm. A form
// error is treated as "no" since it means the prompt couldn't be
// trusted to reflect the user's intent.
func promptRecreate() bool {
	recreate := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Database is corrupted").
				Description("Recreate and re-sync?").
				Value(&recreate),
		),
	)
	if err := form.Run(); err != nil {
		L_warn("lifecycle: corruption prompt failed, declining recreate", "error", err)
		return false
	}
	return recreate
}
