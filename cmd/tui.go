// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/ndirstat/pkg/indicator"
	"github.com/Thermoquad/ndirstat/pkg/mhz19"
	"github.com/Thermoquad/ndirstat/pkg/monitor"
	"github.com/Thermoquad/ndirstat/pkg/reporter"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// TUI model
type model struct {
	connInfo      string
	reporting     string
	interval      time.Duration
	rangeMax      int
	started       time.Time
	stats         mhz19.Statistics
	last          *monitor.CycleResult
	rating        monitor.Rating // last rating logged
	eventLog      []eventLogEntry
	maxLogEntries int
	bar           progress.Model
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type cycleMsg struct {
	result monitor.CycleResult
	stats  mhz19.Statistics
}

// formatUptime formats a duration in milliseconds as a human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo, reporting string, interval time.Duration, rangeMax int) model {
	if rangeMax <= 0 {
		rangeMax = mhz19.DefaultRange
	}
	return model{
		connInfo:      connInfo,
		reporting:     reporting,
		interval:      interval,
		rangeMax:      rangeMax,
		started:       time.Now(),
		stats:         *mhz19.NewStatistics(),
		rating:        monitor.RatingUnknown,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		bar:           progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = msg.Width - 30
		if m.bar.Width < 10 {
			m.bar.Width = 10
		}

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case cycleMsg:
		r := msg.result
		m.stats = msg.stats
		m.logCycle(r)
		m.last = &r
	}

	return m, nil
}

// logCycle adds the noteworthy parts of a cycle to the event log
func (m *model) logCycle(r monitor.CycleResult) {
	if !r.OK() {
		m.rating = monitor.RatingUnknown
		m.addLogEntry(fmt.Sprintf("READ FAILED after %d attempts: %v", r.Attempts, r.Err), true)
		return
	}
	if r.Attempts > 1 {
		m.addLogEntry(fmt.Sprintf("Read succeeded on attempt %d", r.Attempts), false)
	}
	for _, a := range r.Anomalies {
		m.addLogEntry(a.Message, true)
	}
	if r.Reported && r.Report != reporter.StatusOK {
		m.addLogEntry(fmt.Sprintf("Report failed: %s", r.Report), true)
	}
	if r.Rating != m.rating {
		m.addLogEntry(fmt.Sprintf("Rating %s at %d ppm", r.Rating, r.Reading.PPM), false)
	}
	m.rating = r.Rating
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// swatchColors maps indicator states to terminal colors
var swatchColors = map[indicator.Color]lipgloss.Color{
	indicator.Off:   lipgloss.Color("238"),
	indicator.Red:   lipgloss.Color("9"),
	indicator.Green: lipgloss.Color("10"),
	indicator.Blue:  lipgloss.Color("12"),
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("NDIRSTAT - CO2 MONITOR"))
	s.WriteString("\n")
	header := fmt.Sprintf("%s | every %v | running %s | Press 'q' to quit",
		m.connInfo, m.interval, formatUptime(uint64(time.Since(m.started).Milliseconds())))
	if m.reporting != "" {
		header += " | reporting to " + m.reporting
	}
	s.WriteString(headerStyle.Render(header))
	s.WriteString("\n\n")

	// Current reading
	readingContent := strings.Builder{}
	if m.last == nil {
		readingContent.WriteString(warningStyle.Render("⏳ Waiting for first reading..."))
	} else {
		color := m.last.Color
		swatch := lipgloss.NewStyle().
			Background(swatchColors[color]).
			Render("      ")

		if m.last.OK() {
			ppm := m.last.Reading.PPM
			percent := float64(ppm) / float64(m.rangeMax)
			if percent > 1 {
				percent = 1
			}
			readingContent.WriteString(fmt.Sprintf("%s %s %s   %s %s\n",
				swatch,
				statsLabelStyle.Render("CO2:"),
				lipgloss.NewStyle().Bold(true).Foreground(swatchColors[color]).Render(fmt.Sprintf("%d ppm", ppm)),
				statsLabelStyle.Render("Rating:"),
				statsValueStyle.Render(m.last.Rating.String()),
			))
			readingContent.WriteString(fmt.Sprintf("%s %s\n",
				m.bar.ViewAs(percent),
				headerStyle.Render(fmt.Sprintf("of %d ppm", m.rangeMax)),
			))
			readingContent.WriteString(fmt.Sprintf("%s %s   %s %s",
				statsLabelStyle.Render("Temp:"), statsValueStyle.Render(fmt.Sprintf("%d°C", m.last.Reading.Temperature)),
				statsLabelStyle.Render("Status:"), statsValueStyle.Render(fmt.Sprintf("0x%02X", m.last.Reading.Status)),
			))
		} else {
			readingContent.WriteString(fmt.Sprintf("%s %s %s",
				swatch,
				errorStyle.Render("READ FAILED:"),
				errorStyle.Render(mhz19.CodeOf(m.last.Err).String()),
			))
		}
	}
	s.WriteString(boxStyle.Render(readingContent.String()))
	s.WriteString("\n\n")

	// Statistics
	var validPercent, errorPercent float64
	if m.stats.TotalExchanges > 0 {
		validPercent = float64(m.stats.ValidReadings) * 100.0 / float64(m.stats.TotalExchanges)
		errorPercent = float64(m.stats.Errors()) * 100.0 / float64(m.stats.TotalExchanges)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Exchanges:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalExchanges)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidReadings, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.Errors(), errorPercent)),
	))

	if m.stats.Errors() > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %d  %s %d  %s %d  %s %d\n",
			headerStyle.Render("timeout:"), m.stats.ReadFailures,
			headerStyle.Render("rejected:"), m.stats.Rejected,
			headerStyle.Render("checksum:"), m.stats.ChecksumErrors,
			headerStyle.Render("write:"), m.stats.WriteFailures,
		))
	}

	if m.stats.Anomalies > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d)\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.Anomalies)),
			headerStyle.Render("out of range"), m.stats.OutOfRange,
			headerStyle.Render("invalid temp"), m.stats.InvalidTemp,
		))
	}

	if m.stats.ValidReadings > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Min/Mean/Max:"),
			statsValueStyle.Render(fmt.Sprintf("%d / %.0f / %d ppm", m.stats.MinPPM, m.stats.MeanPPM(), m.stats.MaxPPM)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Exchange Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f /min", m.stats.ExchangeRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f /min", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f /min", m.stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 20
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
