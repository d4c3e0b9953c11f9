package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/mattn/go-isatty"

	"github.com/darkmacheken/wasmati-go/internal/config"
	"github.com/darkmacheken/wasmati-go/internal/graph"
	"github.com/darkmacheken/wasmati-go/internal/obs"
)

// runREPL opens the interactive shell spec §6's "-i" names. A real
// terminal gets the bubbletea TUI; piped stdin (tests, scripts, CI)
// falls back to a line-mode reader, mirroring the teacher's pkg/ux
// machine-mode fallback for non-interactive sessions.
func runREPL(ctx context.Context, f *flags, g *graph.Store, cfg config.Config, log *obs.Logger) error {
	sh := newShell(g, cfg)

	watcher, err := watchGraph(f.graphFile, log)
	if err != nil {
		log.Warn("graph reload watch disabled", "error", err)
	}
	if watcher != nil {
		defer watcher.Close()
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return runLineREPL(sh)
	}

	reloads := make(chan *graph.Store, 1)
	if watcher != nil {
		go watchLoop(watcher, f.graphFile, log, reloads)
	}

	m := newReplModel(sh, reloads)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// watchGraph wires an fsnotify watch on the -g archive so the shell
// picks up a reanalyzed CPG without restarting (spec §6 "-i interactive
// REPL"); non-fatal if the platform or path can't support it.
func watchGraph(path string, log *obs.Logger) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func watchLoop(w *fsnotify.Watcher, path string, log *obs.Logger, reloads chan<- *graph.Store) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			g, err := loadGraph(path)
			if err != nil {
				log.Warn("reload failed", "error", err)
				continue
			}
			reloads <- g
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warn("watch error", "error", err)
		}
	}
}

// reloadMsg carries a freshly reloaded graph into the bubbletea Update
// loop.
type reloadMsg struct{ g *graph.Store }

func waitForReload(reloads <-chan *graph.Store) tea.Cmd {
	return func() tea.Msg {
		g, ok := <-reloads
		if !ok {
			return nil
		}
		return reloadMsg{g: g}
	}
}

// replModel is the bubbletea model for the interactive shell: a
// scrollback viewport over a single-line command input, grounded on the
// teacher's DiffReviewModel viewport/key-handling shape.
type replModel struct {
	sh       *shell
	reloads  <-chan *graph.Store
	input    textinput.Model
	viewport viewport.Model
	history  []string
	width    int
	height   int
	ready    bool
	quitting bool
}

func newReplModel(sh *shell, reloads <-chan *graph.Store) replModel {
	ti := textinput.New()
	ti.Placeholder = ":help"
	ti.Focus()
	ti.Prompt = "wasmati> "
	return replModel{sh: sh, reloads: reloads, input: ti}
}

func (m replModel) Init() tea.Cmd {
	if m.reloads != nil {
		return waitForReload(m.reloads)
	}
	return nil
}

func (m replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		inputHeight := 1
		vpHeight := m.height - inputHeight - 1
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.input.Width = m.width - len(m.input.Prompt) - 1

	case reloadMsg:
		m.sh.reload(msg.g)
		m.appendLine("graph reloaded")
		return m, waitForReload(m.reloads)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			line := m.input.Value()
			m.input.SetValue("")
			if line == "" {
				break
			}
			m.appendLine(m.input.Prompt + line)
			out, quit := m.sh.dispatch(line)
			if out != "" {
				m.appendLine(out)
			}
			if quit {
				m.quitting = true
				return m, tea.Quit
			}
		case "pgup":
			m.viewport.HalfViewUp()
		case "pgdown":
			m.viewport.HalfViewDown()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) appendLine(s string) {
	m.history = append(m.history, s)
	m.viewport.SetContent(joinLines(m.history))
	m.viewport.GotoBottom()
}

func (m replModel) View() string {
	if m.quitting {
		return "bye\n"
	}
	if !m.ready {
		return "loading...\n"
	}
	header := lipgloss.NewStyle().Bold(true).Render("wasmati-query")
	return fmt.Sprintf("%s\n%s\n%s", header, m.viewport.View(), m.input.View())
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

// runLineREPL is the non-tty fallback: read one command per stdin line,
// write its output to stdout, until EOF or :quit.
func runLineREPL(sh *shell) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out, quit := sh.dispatch(scanner.Text())
		if out != "" {
			fmt.Println(out)
		}
		if quit {
			break
		}
	}
	return scanner.Err()
}
