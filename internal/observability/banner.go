package observability

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset  = "\033[0m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[96m"
	colorMag    = "\033[95m"
	colorYellow = "\033[93m"
)

var spinnerFrames = []string{"◜", "◝", "◞", "◟"}

// termMu serializes every write to the terminal so the cursor save/restore
// in PrintLiveStatus is never interrupted by a log line.
var termMu sync.Mutex

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

type termWriter struct {
	out io.Writer
}

func (tw termWriter) Write(p []byte) (int, error) {
	termMu.Lock()
	defer termMu.Unlock()
	return tw.out.Write(p)
}

func (tw termWriter) Sync() error { return nil }

// NewTermWriter returns a writer to stderr that is serialized with the
// status line.
func NewTermWriter() io.Writer {
	return termWriter{out: os.Stderr}
}

// Println writes a line to stdout under the terminal lock.
func Println(a ...any) {
	termMu.Lock()
	defer termMu.Unlock()
	fmt.Println(a...)
}

func PrintBanner() {
	fmt.Print("\033[2J\033[H")

	banner := `
    __  __________    __  ___________ __  ______    _   __
   / / / / ____/ /   /  |/  / ___/  |/  /   |   / | / /
  / /_/ / __/ / /   / /|_/ /\__ \/ /|_/ / /| |  /  |/ /
 / __  / /___/ /___/ /  / /___/ / /  / / ___ | / /|  /
/_/ /_/_____/_____/_/  /_//____/_/  /_/_/  |_|/_/ |_/

          >> plans in, commands out <<
`
	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := max((width-len(l))/2, 0)
		fmt.Printf("%s%s%s%s\n", strings.Repeat(" ", padding), colorCyan, l, colorReset)
	}
}

// InitializeTerminal reserves the top rows for the banner and status line
// and scrolls log output below them.
func InitializeTerminal() {
	fmt.Print("\033[12;r")
	fmt.Print("\033[12;1H")
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

// StatusLine renders the one-line dashboard for the given snapshot.
func StatusLine(s Snapshot, now time.Time, frame int) string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memMB := float64(m.Alloc) / 1024 / 1024

	pulse, pulseColor := "HEALTHY", colorCyan
	switch delta := now.Sub(s.LastHeartbeat); {
	case delta >= 90*time.Second:
		pulse, pulseColor = "OFFLINE", colorMag
	case delta >= 40*time.Second:
		pulse, pulseColor = "LAGGING", colorPurple
	}

	roleColor := colorReset
	switch s.Role {
	case RolePlanning:
		roleColor = colorYellow
	case RoleExecuting:
		roleColor = colorMag
	case RoleBrowsing:
		roleColor = colorCyan
	}

	spinner := " "
	if s.Role != RoleIdle {
		spinner = spinnerFrames[frame%len(spinnerFrames)]
	}

	task := s.Task
	if task == "" {
		task = "waiting..."
	}
	if len(task) > 32 {
		task = task[:29] + "..."
	}

	return fmt.Sprintf("%s%-7s%s | %s%-9s%s %s [%s] up %v | %.1fMB",
		pulseColor, pulse, colorReset,
		roleColor, s.Role, colorReset,
		spinner, task,
		now.Sub(startTime).Round(time.Second),
		memMB,
	)
}

var frame int

// PrintLiveStatus redraws the status line on row 10.
func PrintLiveStatus() {
	line := StatusLine(GetStatus(), time.Now(), frame)
	frame++

	termMu.Lock()
	fmt.Printf("\033[s\033[10;1H\033[K%s\033[u", line)
	termMu.Unlock()
}
