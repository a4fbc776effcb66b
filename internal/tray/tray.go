// Package tray provides a system tray control surface for running the rep
// counter without a window.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Choice is one entry of the exercise menu.
type Choice struct {
	Exercise string
	Side     string
}

// Label returns the menu title of the choice.
func (c Choice) Label() string {
	if c.Side == "" {
		return c.Exercise
	}
	return fmt.Sprintf("%s (%s)", c.Exercise, c.Side)
}

// DefaultChoices mirrors the window key bindings.
func DefaultChoices() []Choice {
	return []Choice{
		{Exercise: "curl", Side: "left"},
		{Exercise: "curl", Side: "right"},
		{Exercise: "squat"},
	}
}

// Tray represents the system tray application.
type Tray struct {
	choices []Choice

	onToggle    func(running bool)
	onSelect    func(c Choice)
	onReset     func()
	onDashboard func()
	onQuit      func()
	running     bool
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuToggle   *systray.MenuItem
	menuLastReps *systray.MenuItem
	menuChoices  []*systray.MenuItem
	selected     int
}

// New creates a new Tray offering the given exercise choices. The session
// starts stopped.
func New(choices []Choice) *Tray {
	if len(choices) == 0 {
		choices = DefaultChoices()
	}
	return &Tray{choices: choices}
}

// OnToggle sets the callback invoked when the start/stop item is clicked.
func (t *Tray) OnToggle(fn func(running bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSelect sets the callback invoked when an exercise is chosen.
func (t *Tray) OnSelect(fn func(c Choice)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSelect = fn
}

// OnReset sets the callback invoked when the reset item is clicked.
func (t *Tray) OnReset(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReset = fn
}

// OnDashboard sets the callback invoked when the dashboard item is clicked.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback invoked when the quit item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

func toggleTitle(running bool) string {
	if running {
		return "■ Stop"
	}
	return "▶ Start"
}

func lastRepsTitle(reps int) string {
	if reps < 0 {
		return "Last: none"
	}
	if reps == 1 {
		return "Last: 1 rep"
	}
	return fmt.Sprintf("Last: %d reps", reps)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("FitCheck")
	systray.SetTooltip("FitCheck rep counter")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.running), "Start or stop counting")
	systray.AddSeparator()

	menuExercise := systray.AddMenuItem("Exercise", "Choose the exercise to count")
	t.menuChoices = make([]*systray.MenuItem, len(t.choices))
	for i, c := range t.choices {
		t.menuChoices[i] = menuExercise.AddSubMenuItemCheckbox(c.Label(), "Count "+c.Label(), i == t.selected)
	}
	menuReset := systray.AddMenuItem("Reset", "Reset the rep count")
	systray.AddSeparator()

	t.menuLastReps = systray.AddMenuItem(lastRepsTitle(-1), "Reps of the last finished session")
	t.menuLastReps.Disable()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit FitCheck")
	choices := t.menuChoices
	t.mu.Unlock()

	for i, item := range choices {
		go func(i int, item *systray.MenuItem) {
			for range item.ClickedCh {
				t.handleSelect(i)
			}
		}(i, item)
	}

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuReset.ClickedCh:
				t.handleReset()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// handleToggle handles the start/stop menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.running = !t.running
	running := t.running
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(running))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(running)
	}
}

// handleSelect checks the chosen exercise and unchecks the others.
func (t *Tray) handleSelect(i int) {
	t.mu.Lock()
	if i < 0 || i >= len(t.choices) {
		t.mu.Unlock()
		return
	}
	t.selected = i
	for j, item := range t.menuChoices {
		if j == i {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
	choice := t.choices[i]
	callback := t.onSelect
	t.mu.Unlock()

	if callback != nil {
		callback(choice)
	}
}

func (t *Tray) handleReset() {
	t.mu.RLock()
	callback := t.onReset
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetRunning updates the start/stop item without invoking the toggle callback.
func (t *Tray) SetRunning(running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running = running
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(running))
	}
}

// SetLastReps shows the rep total of the last finished session.
func (t *Tray) SetLastReps(reps int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLastReps != nil {
		t.menuLastReps.SetTitle(lastRepsTitle(reps))
	}
}

// IsRunning returns the current start/stop state.
func (t *Tray) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// Selected returns the currently checked choice.
func (t *Tray) Selected() Choice {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.choices[t.selected]
}
