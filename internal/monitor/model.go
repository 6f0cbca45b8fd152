package monitor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/config"
	"aegis-sim/internal/rules"
	"aegis-sim/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorWhite   = "\x1b[37m"
	colorGray    = "\x1b[90m"
)

var fleetPalette = []string{colorRed, colorGreen, colorYellow, colorBlue, colorMagenta, colorCyan}

const (
	fallbackRaiseInput  = "medical,3,0,0"
	raiseOffset         = 0.001
	maxSectionHeightPct = 0.2
	maxFeedLines        = 1000
)

// raiseSpec is an operator-entered incident parsed from the raise
// dialog.
type raiseSpec struct {
	incident string
	severity int
	lat      float64
	lon      float64
}

type tuiModel struct {
	cfg          *config.Config
	table        table.Model
	vp           viewport.Model
	alertVP      viewport.Model
	dispatchVP   viewport.Model
	logs         []string
	alertLogs    []string
	dispatchLogs []string
	fleetStates  map[string]bus.FleetStatusPayload
	wrap         bool
	autoscroll   bool
	header       string
	headerHeight int
	height       int
	fleetColors  map[string]string
	raise        func(raiseSpec)
	raiseInput   textinput.Model
	raiseDialog  bool
	lastVehicle  telemetry.Position
	haveVehicle  bool
	summary      bool
	help         bool
	showFleets   bool
	vehicleFuel  map[string]float64
	fleetTotals  map[string]int
	fleetCounts  map[string]map[string]struct{}
	alertCounts  map[rules.Severity]int
	totalAlerts  int
	alertHistory []int
	lastAlertSec time.Time
}

func newModel(cfg *config.Config, fleetColors map[string]string, raise func(raiseSpec)) tuiModel {
	cols := []table.Column{
		{Title: "Config", Width: 22},
		{Title: "Value", Width: 10},
		{Title: "Config", Width: 22},
		{Title: "Value", Width: 10},
	}
	rows := []table.Row{
		{"Tick (s)", fmt.Sprintf("%d", cfg.Intervals.TickSeconds), "Heartbeat Every", fmt.Sprintf("%d", cfg.Intervals.HeartbeatEvery)},
		{"Liveness Timeout (s)", fmt.Sprintf("%d", cfg.Intervals.LivenessTimeoutSeconds), "Command Timeout (s)", fmt.Sprintf("%d", cfg.Intervals.CommandTimeoutSeconds)},
		{"Emergencies (per h)", fmt.Sprintf("%.1f", cfg.Emergencies.RatePerHour), "On-Scene Mean (min)", fmt.Sprintf("%.1f", cfg.Emergencies.MeanOnSceneMinutes)},
		{"Broker", cfg.Broker.Mode, "Chaos", fmt.Sprintf("%t", cfg.Chaos)},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	fleetTotals := make(map[string]int)
	for _, f := range cfg.Fleets {
		for _, u := range f.Units {
			fleetTotals[f.ID] += u.Count
		}
	}
	m := tuiModel{
		cfg:         cfg,
		table:       t,
		vp:          viewport.New(0, 0),
		alertVP:     viewport.New(0, 0),
		dispatchVP:  viewport.New(0, 0),
		fleetStates: make(map[string]bus.FleetStatusPayload),
		fleetColors: fleetColors,
		raise:       raise,
		autoscroll:  true,
		showFleets:  true,
		vehicleFuel: make(map[string]float64),
		fleetTotals: fleetTotals,
		fleetCounts: make(map[string]map[string]struct{}),
		alertCounts: make(map[rules.Severity]int),
	}
	return m
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		tableWidth := msg.Width
		if m.showFleets {
			tableWidth = msg.Width / 2
		}
		m.table.SetWidth(tableWidth)
		m.vp.Width = msg.Width
		m.alertVP.Width = msg.Width
		m.dispatchVP.Width = msg.Width
		m.height = msg.Height
		m.header = m.renderHeader()
		m.headerHeight = lipgloss.Height(m.header)
		m.updateViewportHeight()
		m.refreshViewport()
		m.refreshAlerts()
		m.refreshDispatches()
	case tea.KeyMsg:
		if m.raiseDialog {
			switch msg.Type {
			case tea.KeyEnter:
				spec, err := parseRaiseInput(m.raiseInput.Value())
				if err == nil && m.raise != nil {
					go m.raise(spec)
				}
				m.raiseDialog = false
				m.updateViewportHeight()
			case tea.KeyEsc:
				m.raiseDialog = false
				m.updateViewportHeight()
			default:
				var cmd tea.Cmd
				m.raiseInput, cmd = m.raiseInput.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
				m.updateViewportHeight()
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			m.header = m.renderHeader()
			m.headerHeight = lipgloss.Height(m.header)
			m.updateViewportHeight()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
				m.alertVP.GotoBottom()
				m.dispatchVP.GotoBottom()
			}
			return m, nil
		case "e":
			m.raiseInput = textinput.New()
			m.raiseInput.Placeholder = "type,severity,lat,lon"
			val := fallbackRaiseInput
			if m.haveVehicle {
				val = fmt.Sprintf("medical,3,%.5f,%.5f", m.lastVehicle.Lat+raiseOffset, m.lastVehicle.Lon+raiseOffset)
			}
			m.raiseInput.SetValue(val)
			m.raiseInput.CursorEnd()
			m.raiseInput.Focus()
			m.raiseDialog = true
			m.updateViewportHeight()
			return m, nil
		case "p":
			m.showFleets = !m.showFleets
			width := m.vp.Width
			if m.showFleets {
				m.table.SetWidth(width / 2)
			} else {
				m.table.SetWidth(width)
			}
			m.header = m.renderHeader()
			m.headerHeight = lipgloss.Height(m.header)
			m.updateViewportHeight()
			return m, nil
		case "t":
			m.summary = !m.summary
			m.updateViewportHeight()
			return m, nil
		case "h", "?":
			m.help = !m.help
			m.updateViewportHeight()
			return m, nil
		}
		if !m.autoscroll {
			switch msg.String() {
			case "j", "down":
				m.vp.LineDown(1)
				m.alertVP.LineDown(1)
				m.dispatchVP.LineDown(1)
			case "k", "up":
				m.vp.LineUp(1)
				m.alertVP.LineUp(1)
				m.dispatchVP.LineUp(1)
			case "pgdown", "ctrl+n":
				m.vp.LineDown(10)
				m.alertVP.LineDown(10)
				m.dispatchVP.LineDown(10)
			case "pgup", "ctrl+p":
				m.vp.LineUp(10)
				m.alertVP.LineUp(10)
				m.dispatchVP.LineUp(10)
			default:
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				m.alertVP, _ = m.alertVP.Update(msg)
				m.dispatchVP, _ = m.dispatchVP.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		return m, nil
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxFeedLines {
			m.logs = m.logs[len(m.logs)-maxFeedLines:]
		}
		m.refreshViewport()
	case alertMsg:
		m.alertLogs = append(m.alertLogs, msg.line)
		if len(m.alertLogs) > maxFeedLines {
			m.alertLogs = m.alertLogs[len(m.alertLogs)-maxFeedLines:]
		}
		m.totalAlerts++
		if m.alertCounts == nil {
			m.alertCounts = make(map[rules.Severity]int)
		}
		m.alertCounts[msg.row.Severity]++
		second := msg.row.Timestamp.Truncate(time.Second)
		if m.lastAlertSec.IsZero() {
			m.lastAlertSec = second
			m.alertHistory = append(m.alertHistory, 1)
		} else if !second.After(m.lastAlertSec) {
			if len(m.alertHistory) == 0 {
				m.alertHistory = append(m.alertHistory, 1)
			} else {
				m.alertHistory[len(m.alertHistory)-1]++
			}
		} else {
			diff := int(second.Sub(m.lastAlertSec).Seconds())
			for i := 0; i < diff-1; i++ {
				m.alertHistory = append(m.alertHistory, 0)
			}
			m.alertHistory = append(m.alertHistory, 1)
			m.lastAlertSec = second
		}
		if len(m.alertHistory) > 5 {
			m.alertHistory = m.alertHistory[len(m.alertHistory)-5:]
		}
		m.updateViewportHeight()
		m.refreshAlerts()
		m.refreshViewport()
	case dispatchMsg:
		m.dispatchLogs = append(m.dispatchLogs, msg.line)
		if len(m.dispatchLogs) > maxFeedLines {
			m.dispatchLogs = m.dispatchLogs[len(m.dispatchLogs)-maxFeedLines:]
		}
		m.updateViewportHeight()
		m.refreshDispatches()
		m.refreshViewport()
	case vehicleMsg:
		m.lastVehicle = msg.Location
		m.haveVehicle = true
		if m.vehicleFuel == nil {
			m.vehicleFuel = make(map[string]float64)
		}
		m.vehicleFuel[msg.VehicleID] = msg.FuelLevelPercent
		if m.fleetCounts == nil {
			m.fleetCounts = make(map[string]map[string]struct{})
		}
		if m.fleetCounts[msg.FleetID] == nil {
			m.fleetCounts[msg.FleetID] = make(map[string]struct{})
		}
		m.fleetCounts[msg.FleetID][msg.VehicleID] = struct{}{}
	case fleetMsg:
		if m.fleetStates == nil {
			m.fleetStates = make(map[string]bus.FleetStatusPayload)
		}
		m.fleetStates[msg.FleetID] = msg.FleetStatusPayload
	}
	return m, nil
}

func (m *tuiModel) updateViewportHeight() {
	bottomHeight := lipgloss.Height(m.renderBottom())

	maxLines := m.maxSectionLines()

	alertLines := len(m.alertLogs)
	if alertLines == 0 {
		alertLines = 1
	}
	if alertLines > maxLines {
		alertLines = maxLines
	}
	m.alertVP.Height = alertLines

	dispatchLines := len(m.dispatchLogs)
	if dispatchLines == 0 {
		dispatchLines = 1
	}
	if dispatchLines > maxLines {
		dispatchLines = maxLines
	}
	m.dispatchVP.Height = dispatchLines

	alertHeight := 1 + m.alertVP.Height
	dispatchHeight := 1 + m.dispatchVP.Height
	dialogHeight := 0
	if m.raiseDialog {
		dialogHeight = lipgloss.Height(m.renderRaise())
	}
	h := m.height - m.headerHeight - bottomHeight - alertHeight - dispatchHeight - dialogHeight - 5
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.alertVP.GotoBottom()
		m.dispatchVP.GotoBottom()
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshAlerts() {
	content := "none"
	if len(m.alertLogs) > 0 {
		content = strings.Join(m.alertLogs, "\n")
	}
	m.alertVP.SetContent(content)
	if m.autoscroll {
		m.alertVP.GotoBottom()
	}
}

func (m *tuiModel) refreshDispatches() {
	content := "none"
	if len(m.dispatchLogs) > 0 {
		content = strings.Join(m.dispatchLogs, "\n")
	}
	m.dispatchVP.SetContent(content)
	if m.autoscroll {
		m.dispatchVP.GotoBottom()
	}
}

func (m tuiModel) maxSectionLines() int {
	h := int(float64(m.height) * maxSectionHeightPct)
	if h < 1 {
		h = 1
	}
	return h
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	bottom := m.renderBottom()
	divider := strings.Repeat("─", m.vp.Width)
	sections := []string{
		m.header,
		divider,
		m.vp.View(),
		divider,
		"Alerts:",
		m.alertVP.View(),
		divider,
		"Dispatches:",
		m.dispatchVP.View(),
	}
	if m.raiseDialog {
		sections = append(sections, divider, m.renderRaise())
	}
	sections = append(sections, divider, bottom)
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderHeader() string {
	tableView := m.table.View()
	if !m.showFleets {
		return tableView
	}
	fleetsWidth := m.vp.Width/2 - 1
	fleets := renderFleetTree(m.cfg, m.fleetColors, m.wrap, fleetsWidth)
	sep := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("│")
	return lipgloss.JoinHorizontal(lipgloss.Top, tableView, sep, fleets)
}

func renderFleetTree(cfg *config.Config, colors map[string]string, wrap bool, width int) string {
	var b strings.Builder
	b.WriteString("Fleets\n")
	for i, f := range cfg.Fleets {
		prefix := "├─"
		if i == len(cfg.Fleets)-1 {
			prefix = "└─"
		}
		units := make([]string, len(f.Units))
		for j, u := range f.Units {
			units[j] = fmt.Sprintf("%d %s", u.Count, u.Type)
		}
		c := colors[f.ID]
		line := fmt.Sprintf("%s %s%s%s %s - %s", prefix, c, f.ID, colorReset, f.Station, strings.Join(units, ", "))
		if wrap && width > 0 {
			line = wordwrap.String(line, width)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m tuiModel) renderSummary() string {
	total := len(m.vehicleFuel)
	var sum float64
	for _, f := range m.vehicleFuel {
		sum += f
	}
	avg := 0.0
	if total > 0 {
		avg = sum / float64(total)
	}
	var trendParts []string
	for _, v := range m.alertHistory {
		trendParts = append(trendParts, fmt.Sprintf("%d", v))
	}
	trend := strings.Join(trendParts, ",")
	var fleetParts []string
	for _, f := range m.cfg.Fleets {
		totalFleet := m.fleetTotals[f.ID]
		active := len(m.fleetCounts[f.ID])
		pct := 0.0
		if totalFleet > 0 {
			pct = float64(active) / float64(totalFleet) * 100
		}
		c := m.fleetColors[f.ID]
		part := fmt.Sprintf("%s%s%s=%d/%d(%.0f%%)%s", c, f.ID, colorReset, active, totalFleet, pct, colorReset)
		fleetParts = append(fleetParts, part)
	}
	fleets := strings.Join(fleetParts, " ")
	summary := fmt.Sprintf("%sSUMMARY%s %svehicles=%d%s %savg_fuel=%.1f%s %salerts=%d%s %scrit=%d%s",
		colorBlue, colorReset,
		colorGreen, total, colorReset,
		colorCyan, avg, colorReset,
		colorMagenta, m.totalAlerts, colorReset,
		colorRed, m.alertCounts[rules.SeverityCritical], colorReset)
	if trend != "" {
		summary = fmt.Sprintf("%s %strend=[%s]%s", summary, colorYellow, trend, colorReset)
	}
	if fleets != "" {
		summary = fmt.Sprintf("%s %s", summary, fleets)
	}
	return summary
}

func (m tuiModel) renderBottom() string {
	wrapColor := lipgloss.Color("9")
	if m.wrap {
		wrapColor = lipgloss.Color("10")
	}
	scrollColor := lipgloss.Color("10")
	if !m.autoscroll {
		scrollColor = lipgloss.Color("9")
	}
	wrapIndicator := lipgloss.NewStyle().Foreground(wrapColor).Render("●")
	scrollIndicator := lipgloss.NewStyle().Foreground(scrollColor).Render("●")
	summaryColor := lipgloss.Color("9")
	if m.summary {
		summaryColor = lipgloss.Color("10")
	}
	summaryIndicator := lipgloss.NewStyle().Foreground(summaryColor).Render("●")
	helpColor := lipgloss.Color("9")
	if m.help {
		helpColor = lipgloss.Color("10")
	}
	helpIndicator := lipgloss.NewStyle().Foreground(helpColor).Render("●")
	fleetsColor := lipgloss.Color("10")
	if !m.showFleets {
		fleetsColor = lipgloss.Color("9")
	}
	fleetsIndicator := lipgloss.NewStyle().Foreground(fleetsColor).Render("●")
	var vehicles, idle, enRoute, onScene, alerts, emergencies int
	for _, f := range m.cfg.Fleets {
		st, ok := m.fleetStates[f.ID]
		if !ok {
			continue
		}
		vehicles += st.TotalVehicles
		idle += st.StatusSummary[string(telemetry.StatusIdle)]
		enRoute += st.StatusSummary[string(telemetry.StatusEnRoute)]
		onScene += st.StatusSummary[string(telemetry.StatusOnScene)]
		for _, n := range st.ActiveAlerts {
			alerts += n
		}
		emergencies += st.ActiveEmergencies
	}
	state := fmt.Sprintf("%sSTATE%s %svehicles=%d%s %sidle=%d%s %senr=%d%s %sons=%d%s %salerts=%d%s %semerg=%d%s",
		colorBlue, colorReset,
		colorGreen, vehicles, colorReset,
		colorCyan, idle, colorReset,
		colorYellow, enRoute, colorReset,
		colorMagenta, onScene, colorReset,
		colorRed, alerts, colorReset,
		colorRed, emergencies, colorReset)
	line := fmt.Sprintf("%s | Wrap %s | Scroll %s | Summary %s | Help %s | Fleets %s", state, wrapIndicator, scrollIndicator, summaryIndicator, helpIndicator, fleetsIndicator)
	if m.summary {
		return fmt.Sprintf("%s\n%s", m.renderSummary(), line)
	}
	return line
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" w  toggle wrap for fleet list",
		" s  toggle auto-scroll",
		" e  raise emergency (type,severity,lat,lon)",
		" t  toggle summary footer",
		" p  toggle fleet tree",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}

func (m tuiModel) renderRaise() string {
	return fmt.Sprintf("Raise Emergency (type,severity,lat,lon) - Enter to publish, Esc to cancel: %s", m.raiseInput.View())
}

func parseRaiseInput(val string) (raiseSpec, error) {
	parts := strings.Split(val, ",")
	if len(parts) < 4 {
		return raiseSpec{}, fmt.Errorf("expected type,severity,lat,lon")
	}
	incident := strings.TrimSpace(parts[0])
	severity, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return raiseSpec{}, err
	}
	if severity < 1 || severity > 5 {
		return raiseSpec{}, fmt.Errorf("severity %d out of range 1..5", severity)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return raiseSpec{}, err
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
	if err != nil {
		return raiseSpec{}, err
	}
	return raiseSpec{incident: incident, severity: severity, lat: lat, lon: lon}, nil
}
