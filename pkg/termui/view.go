// Package termui is a terminal browser for a decoded minidump.
package termui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/monsterxx03/godump/pkg/report"
)

type pane int

const (
	threadsPane pane = iota
	modulesPane
	memoryPane
	streamsPane
	linkMapsPane
)

var panes = []struct {
	key    rune
	title  string
	header []string
}{
	threadsPane:  {'t', "Threads", []string{"TID", "Name", "IP", "SP", "Stack"}},
	modulesPane:  {'m', "Modules", []string{"Base", "Size", "Build ID", "Name"}},
	memoryPane:   {'M', "Memory", []string{"Start", "End", "Size"}},
	streamsPane:  {'d', "Streams", []string{"Type", "ID", "RVA", "Size"}},
	linkMapsPane: {'l', "Link maps", []string{"Addr", "LD", "Name"}},
}

func hex(v uint64) string {
	return fmt.Sprintf("%#016x", v)
}

// rows renders a pane. Each row starts with the key the detail view uses.
func rows(s *report.Summary, p pane, filter string) [][]string {
	var out [][]string
	add := func(row ...string) {
		if filter != "" && !strings.Contains(strings.ToLower(strings.Join(row, " ")), strings.ToLower(filter)) {
			return
		}
		out = append(out, row)
	}
	switch p {
	case threadsPane:
		for _, th := range s.Threads {
			add(fmt.Sprint(th.ID), th.Name, hex(th.IP), hex(th.SP), report.HumanateBytes(uint64(th.StackSize)))
		}
	case modulesPane:
		for _, m := range s.Modules {
			add(hex(m.Base), report.HumanateBytes(uint64(m.Size)), m.BuildID, m.Name)
		}
	case memoryPane:
		for _, m := range s.Memory {
			add(hex(m.Start), hex(m.Start+uint64(m.Size)), report.HumanateBytes(uint64(m.Size)))
		}
	case streamsPane:
		for _, d := range s.Streams {
			add(d.Type, fmt.Sprintf("%#x", d.ID), fmt.Sprintf("%#x", d.RVA), report.HumanateBytes(uint64(d.Size)))
		}
	case linkMapsPane:
		for _, lm := range s.LinkMaps {
			add(hex(lm.Addr), hex(lm.LD), lm.Name)
		}
	}
	return out
}

// title is the one-line process header.
func title(s *report.Summary, path string) string {
	b := fmt.Sprintf("[yellow]%s [white]| [green]Dumped: %s", path, s.Timestamp.Format("2006-01-02 15:04:05"))
	if s.Process != nil {
		b += fmt.Sprintf(" [white]| [yellow]PID: %d", s.Process.PID)
		if s.Process.Age != "" {
			b += fmt.Sprintf(" [white]| [cyan]Uptime: %s", s.Process.Age)
		}
	}
	if s.System != nil {
		b += fmt.Sprintf(" [white]| [blue]%s x%d", s.System.Arch, s.System.Processors)
	}
	return b
}

// overview describes the system, the exception and decode problems.
func overview(s *report.Summary) string {
	var lines []string
	if s.System != nil {
		lines = append(lines, fmt.Sprintf("[yellow]System: [white]%s %s", s.System.CSDVersion, s.System.Vendor))
	}
	if e := s.Exception; e != nil {
		lines = append(lines, fmt.Sprintf("[red]Exception: [white]%s code=%d addr=%s tid=%d", e.Signal, e.Code, hex(e.Address), e.ThreadID))
	} else {
		lines = append(lines, "[yellow]Exception: [white]none")
	}
	if s.Process != nil {
		lines = append(lines, fmt.Sprintf("[yellow]CPU time: [white]user %ds kernel %ds", s.Process.User, s.Process.Kernel))
	}
	for _, p := range s.Problems {
		lines = append(lines, "[red]Problem: [white]"+p)
	}
	return strings.Join(lines, "\n")
}

// registers formats the register bank of a thread.
func registers(th report.Thread) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]Thread %d %s\n", th.ID, th.Name)
	for i, r := range th.Registers {
		fmt.Fprintf(&b, "[green]%-6s[white] %s", r.Name, hex(r.Value))
		if i%3 == 2 {
			b.WriteString("\n")
		} else {
			b.WriteString("   ")
		}
	}
	return b.String()
}

type Viewer struct {
	app          *tview.Application
	table        *tview.Table
	titleView    *tview.TextView
	infoView     *tview.TextView
	detailView   *tview.TextView
	searchView   *tview.InputField
	help         *tview.TextView
	flex         *tview.Flex
	summary      *report.Summary
	path         string
	pane         pane
	searchFilter string
}

func NewViewer(path string, summary *report.Summary) *Viewer {
	v := &Viewer{
		app:     tview.NewApplication(),
		table:   tview.NewTable(),
		summary: summary,
		path:    path,
	}
	v.table.SetBorders(false).
		SetFixed(1, 0).
		SetSelectable(true, false).
		SetBorder(false)
	v.titleView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	v.infoView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	v.detailView = tview.NewTextView().
		SetDynamicColors(true)
	v.help = tview.NewTextView().
		SetDynamicColors(true)
	return v
}

func (v *Viewer) updateHelpText() {
	var keys []string
	for i, p := range panes {
		k := fmt.Sprintf("[white]%c[green] %s", p.key, strings.ToLower(p.title))
		if pane(i) == v.pane {
			k = fmt.Sprintf("[white]%c[yellow] %s", p.key, strings.ToLower(p.title))
		}
		keys = append(keys, k)
	}
	text := "[yellow]Press [white]q[green] to quit, [white]/[green] to search, " + strings.Join(keys, ", ")
	if v.searchFilter != "" {
		text += fmt.Sprintf(" [white]| [green]Current filter: [white]%q", v.searchFilter)
	}
	v.help.SetText(text)
}

func (v *Viewer) update() {
	v.table.Clear()
	for col, h := range panes[v.pane].header {
		v.table.SetCell(0, col, tview.NewTableCell(h).
			SetAlign(tview.AlignLeft).
			SetTextColor(tcell.ColorYellow).
			SetBackgroundColor(tcell.ColorDarkSlateGray).
			SetSelectable(false))
	}
	for r, row := range rows(v.summary, v.pane, v.searchFilter) {
		for col, cell := range row {
			v.table.SetCell(r+1, col, tview.NewTableCell(cell))
		}
	}
	v.table.ScrollToBeginning()
	v.titleView.SetText(title(v.summary, v.path))
	v.infoView.SetText(overview(v.summary))
	v.detailView.Clear()
	v.updateHelpText()
}

// selectThread shows the registers of the thread in row.
func (v *Viewer) selectThread(row int) {
	if v.pane != threadsPane || row < 1 {
		return
	}
	id := v.table.GetCell(row, 0).Text
	for _, th := range v.summary.Threads {
		if fmt.Sprint(th.ID) == id {
			v.detailView.SetText(registers(th))
			return
		}
	}
}

func (v *Viewer) Run() error {
	v.searchView = tview.NewInputField().
		SetLabel("Search: ").
		SetFieldBackgroundColor(tcell.ColorDefault).
		SetChangedFunc(func(text string) {
			v.searchFilter = text
			v.update()
		}).
		SetDoneFunc(func(key tcell.Key) {
			if key == tcell.KeyEsc || key == tcell.KeyEnter {
				v.flex.RemoveItem(v.searchView)
				v.app.SetFocus(v.table)
				v.updateHelpText()
			}
		})
	v.table.SetSelectionChangedFunc(func(row, _ int) {
		v.selectThread(row)
	})

	v.flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(v.titleView, 1, 1, false).
		AddItem(v.infoView, 3+len(v.summary.Problems), 1, false).
		AddItem(v.table, 0, 3, true).
		AddItem(v.detailView, 0, 1, false).
		AddItem(v.help, 1, 1, false)

	v.update()

	v.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if v.app.GetFocus() == v.searchView {
			if event.Key() == tcell.KeyEsc {
				v.app.SetFocus(v.table)
				return nil
			}
			return event
		}
		switch event.Rune() {
		case 'q':
			v.app.Stop()
			return nil
		case '/':
			v.searchView.SetText(v.searchFilter)
			v.flex.AddItem(v.searchView, 1, 1, false)
			v.app.SetFocus(v.searchView)
			return nil
		}
		for i, p := range panes {
			if event.Rune() == p.key {
				v.pane = pane(i)
				v.update()
				return nil
			}
		}
		return event
	})

	return v.app.SetRoot(v.flex, true).Run()
}
