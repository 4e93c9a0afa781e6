package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/five82/tether/internal/pipeline"
)

// renderMain renders header, log view, status line and footer.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.FocusBg)).
		Width(m.width).
		Height(m.contentHeight()).
		Render(m.viewport.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// renderHeader renders the connection summary.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)
	sep := bg.Spaces(2)
	snap := m.snapshot

	parts := []string{bg.Render("tether", styles.Logo)}
	if !snap.HasStatus {
		parts = append(parts, bg.Render("starting...", styles.WarningText))
		return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
	}

	st := snap.Status
	parts = append(parts, styles.StateStyle(st.State).Render(strings.ToUpper(st.State.String())))
	if st.Identity != "" {
		parts = append(parts, bg.Render(st.Identity, styles.AccentText))
	}
	if st.State == pipeline.StateConnected || st.Lines > 0 {
		parts = append(parts,
			bg.Render(humanize.Comma(st.Lines)+" lines", styles.Text)+bg.Space()+
				bg.Render(humanize.Bytes(uint64(max(st.Bytes, 0))), styles.MutedText))
	}
	if st.LogFile != "" {
		limit := max(m.width/3, 20)
		parts = append(parts,
			bg.Render("log", styles.FaintText)+bg.Space()+
				bg.Render(truncateMiddle(st.LogFile, limit), styles.MutedText))
	}
	if snap.LastError != nil {
		msg := snap.LastError.Error()
		if snap.FailedConnect > 1 {
			msg = fmt.Sprintf("%s (x%d)", msg, snap.FailedConnect)
		}
		parts = append(parts, bg.Render(truncateMiddle(msg, max(m.width/3, 20)), styles.DangerText))
	}
	return styles.Header.Width(m.width).Render(strings.Join(parts, sep))
}

// renderStatusLine renders buffer and search state below the log view.
func (m Model) renderStatusLine() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)

	var parts []string
	switch {
	case m.searchErr != nil:
		parts = append(parts, bg.Render("invalid pattern: "+m.searchErr.Error(), styles.DangerText))
	case m.engine != nil && m.engine.Active():
		parts = append(parts, m.renderSearchStatus(styles, bg))
	}

	follow := "off"
	if m.follow {
		follow = "on"
	}
	counts := fmt.Sprintf("%s lines buffered, follow %s", humanize.Comma(int64(m.snapshot.Buffered)), follow)
	if m.snapshot.Pending > 0 {
		counts += fmt.Sprintf(", %d pending", m.snapshot.Pending)
	}
	parts = append(parts, bg.Render(counts, styles.FaintText))

	sep := bg.Space() + bg.Render("•", styles.FaintText) + bg.Space()
	return bg.FillLine(bg.Space()+strings.Join(parts, sep), m.width)
}

func (m Model) renderSearchStatus(styles Styles, bg BgStyle) string {
	q := m.engine.Query()
	flags := ""
	if q.CaseSensitive {
		flags += " [Aa]"
	}
	if q.Regex {
		flags += " [.*]"
	}
	head := bg.Render("/"+q.Pattern, styles.AccentText) + bg.Render(flags, styles.MutedText)

	results := m.engine.Results()
	if m.engine.Scanning() {
		return head + bg.Space() + bg.Render(fmt.Sprintf("searching... %d", len(results)), styles.WarningText)
	}
	if len(results) == 0 {
		return head + bg.Space() + bg.Render("no matches", styles.DangerText)
	}
	_, idx, _ := m.engine.Selected()
	return head + bg.Space() + bg.Render(fmt.Sprintf("%d/%d", idx+1, len(results)), styles.WarningText)
}

// renderFooter shows the prompt when open, else the last message or key hints.
func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.SurfaceAlt)

	if m.prompt != promptNone {
		line := m.input.View()
		if m.prompt == promptSearch {
			line += bg.Spaces(2) + bg.Render("ctrl+t case  ctrl+r regex", styles.FaintText)
		}
		return bg.FillLine(line, m.width)
	}
	if m.flash != "" {
		style := styles.SuccessText
		if m.flashErr {
			style = styles.DangerText
		}
		return bg.FillLine(bg.Space()+bg.Render(m.flash, style), m.width)
	}

	hints := make([]string, 0, len(m.keys.ShortHelp()))
	for _, k := range m.keys.ShortHelp() {
		h := k.Help()
		hints = append(hints, bg.Render(h.Key, styles.AccentText)+bg.Space()+bg.Render(h.Desc, styles.FaintText))
	}
	return bg.FillLine(bg.Space()+bg.Join(hints, "  "), m.width)
}
