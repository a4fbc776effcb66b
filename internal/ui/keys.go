package ui

// Command is what a key press asks the session to do.
type Command int

const (
	CmdNone Command = iota
	// CmdStart starts counting, or restarts a running session at zero.
	CmdStart
	CmdSelect
	CmdReset
	CmdQuit
)

// Key codes as returned by gocv.Window.WaitKey.
const (
	KeySpace  = ' '
	KeyEscape = 27
)

// Binding maps a key to a command. Exercise and Side are used by CmdSelect.
type Binding struct {
	Key      int
	Command  Command
	Exercise string
	Side     string
	Help     string
}

// DefaultBindings are the window key bindings.
var DefaultBindings = []Binding{
	{Key: KeySpace, Command: CmdStart, Help: "start / restart"},
	{Key: '1', Command: CmdSelect, Exercise: "curl", Side: "left", Help: "curl, left arm"},
	{Key: '2', Command: CmdSelect, Exercise: "curl", Side: "right", Help: "curl, right arm"},
	{Key: '3', Command: CmdSelect, Exercise: "squat", Help: "squat"},
	{Key: 'r', Command: CmdReset, Help: "reset count"},
	{Key: 'q', Command: CmdQuit, Help: "quit"},
	{Key: KeyEscape, Command: CmdQuit, Help: "quit"},
}

// Lookup returns the binding of a WaitKey result. Only the low byte is
// significant; -1 means no key was pressed.
func Lookup(bindings []Binding, key int) (Binding, bool) {
	if key < 0 {
		return Binding{}, false
	}
	key &= 0xFF
	for _, b := range bindings {
		if b.Key == key {
			return b, true
		}
	}
	return Binding{}, false
}
