package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Dicklesworthstone/wrt_device_api/internal/model"
)

// Model renders the board.
type Model struct {
	board   *Board
	refresh time.Duration
	latest  Snapshot
	width   int
	height  int
}

func New(board *Board, refresh time.Duration) *Model {
	if refresh <= 0 {
		refresh = time.Second / 5
	}
	return &Model{
		board:   board,
		refresh: refresh,
		latest:  board.Snapshot(),
		width:   120,
		height:  40,
	}
}

// Messages
type tickMsg struct{}

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m *Model) Init() tea.Cmd { return m.tickCmd() }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		m.latest = m.board.Snapshot()
		return m, m.tickCmd()
	}
	return m, nil
}

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	gaugeFill   = "█"
	gaugeEmpty  = "░"
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1).
			MarginRight(1)
)

func (m *Model) View() string { return Render(m.latest) }

// Render lays out one snapshot. Kinds without a value are omitted.
func Render(s Snapshot) string {
	stamp := "waiting for data"
	if !s.Updated.IsZero() {
		stamp = s.Updated.Format("Mon Jan 2 15:04:05 MST 2006")
	}
	header := titleStyle.Render("Device API Monitor") + "  " + subtleStyle.Render(stamp)

	var gauges, info []string
	if c, ok := s.Props[model.KindCPU].(model.CPU); ok {
		gauges = append(gauges, card("CPU",
			fmt.Sprintf("%s  load %.2f %.2f %.2f", gaugeBar(c.Load, 28), c.Load1, c.Load5, c.Load15)))
	}
	if mem, ok := s.Props[model.KindMemory].(model.Memory); ok {
		used := mem.Total - mem.Available
		gauges = append(gauges, card("Memory",
			fmt.Sprintf("%s  %.1f/%.1f GiB | %s",
				gaugeBar(pct(used, mem.Total), 28), bytesToGiB(used), bytesToGiB(mem.Total), mem.Status)))
	}
	if bat, ok := s.Props[model.KindBattery].(model.Battery); ok {
		state := "discharging"
		if bat.IsCharging {
			state = "charging"
		}
		gauges = append(gauges, card("Battery", fmt.Sprintf("%s (%s)", gaugeBar(bat.Level, 20), state)))
	}
	if d, ok := s.Props[model.KindDisplay].(model.Display); ok {
		gauges = append(gauges, card("Display",
			fmt.Sprintf("%s  %dx%d @%ddpi", gaugeBar(d.Brightness, 20), d.ResolutionWidth, d.ResolutionHeight, d.DotsPerInchWidth)))
	}

	if st, ok := s.Props[model.KindStorage].(model.Storage); ok {
		info = append(info, card("Storage", renderStorage(st, 6)))
	}
	if lines := networkLines(s.Props); len(lines) > 0 {
		info = append(info, card("Network", strings.Join(lines, "\n")))
	}
	if lines := deviceLines(s.Props); len(lines) > 0 {
		info = append(info, card("Device", strings.Join(lines, "\n")))
	}

	rows := []string{header}
	if len(gauges) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, gauges...))
	}
	if len(info) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, info...))
	}
	if len(s.Notes) > 0 {
		rows = append(rows, card("Events", strings.Join(s.Notes, "\n")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func networkLines(props map[model.Kind]model.Property) []string {
	var lines []string
	if n, ok := props[model.KindNetwork].(model.Network); ok {
		lines = append(lines, "type  "+n.NetworkType)
	}
	if w, ok := props[model.KindWifiNetwork].(model.WifiNetwork); ok {
		lines = append(lines, fmt.Sprintf("wifi  %s %s %s", w.Status, truncate(w.SSID, 16), w.IPAddress))
	}
	if c, ok := props[model.KindCellularNetwork].(model.CellularNetwork); ok {
		lines = append(lines, fmt.Sprintf("cell  %s mcc %d mnc %d", c.Status, c.MCC, c.MNC))
	}
	if sim, ok := props[model.KindSIM].(model.SIM); ok {
		lines = append(lines, fmt.Sprintf("sim   %s %s", sim.State, sim.OperatorName))
	}
	return lines
}

func deviceLines(props map[model.Kind]model.Property) []string {
	var lines []string
	if b, ok := props[model.KindBuild].(model.Build); ok {
		lines = append(lines, fmt.Sprintf("%s %s", truncate(b.Model, 18), truncate(b.BuildVersion, 24)))
	}
	if l, ok := props[model.KindLocale].(model.Locale); ok {
		lines = append(lines, fmt.Sprintf("locale %s / %s", l.Language, l.Country))
	}
	if o, ok := props[model.KindDeviceOrientation].(model.DeviceOrientation); ok {
		lines = append(lines, "orientation "+o.Status)
	}
	if p, ok := props[model.KindPeripheral].(model.Peripheral); ok && p.IsVideoOutputOn {
		lines = append(lines, "video output on")
	}
	return lines
}

// Helpers
func gaugeBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int((pct / 100) * float64(width))
	return fmt.Sprintf("[%s%s] %5.1f%%",
		strings.Repeat(gaugeFill, filled),
		strings.Repeat(gaugeEmpty, width-filled),
		pct)
}

func card(title, body string) string {
	return cardStyle.Render(labelStyle.Render(title) + "\n" + body)
}

func renderStorage(st model.Storage, limit int) string {
	units := append([]model.StorageUnit(nil), st.Units...)
	sort.SliceStable(units, func(i, j int) bool { return units[i].Capacity > units[j].Capacity })
	var b strings.Builder
	fmt.Fprintf(&b, "%-18s %-9s %7s %7s\n", "path", "type", "GiB", "free")
	for _, u := range units[:min(limit, len(units))] {
		fmt.Fprintf(&b, "%-18s %-9s %7.1f %6.0f%%\n",
			truncate(u.Path, 18), u.Type, bytesToGiB(u.Capacity), pct(u.AvailableCapacity, u.Capacity))
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func pct(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) * 100 / float64(total)
}

func bytesToGiB(b uint64) float64 { return float64(b) / (1024 * 1024 * 1024) }

// RunTUI starts the Bubble Tea program.
func RunTUI(board *Board, refresh time.Duration) error {
	prog := tea.NewProgram(New(board, refresh), tea.WithAltScreen())
	_, err := prog.Run()
	return err
}
