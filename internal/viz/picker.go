package viz

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/wholebody/internal/config"
)

var (
	itemStyle     = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle = lipgloss.NewStyle().PaddingLeft(0).Foreground(lipgloss.Color("#00ff88")).Bold(true)
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).PaddingLeft(4)
)

// Choice is one robot preset offered by the picker.
type Choice struct {
	Robot  string
	Preset string
	Config *config.Config
}

func (c Choice) String() string { return c.Robot + "/" + c.Preset }

// Choices lists every preset, sorted by robot then preset name.
func Choices() []Choice {
	robots := make([]string, 0, len(config.Presets))
	for r := range config.Presets {
		robots = append(robots, r)
	}
	sort.Strings(robots)

	var out []Choice
	for _, r := range robots {
		for _, p := range config.ListPresets(r) {
			out = append(out, Choice{Robot: r, Preset: p, Config: config.GetPreset(r, p)})
		}
	}
	return out
}

// Picker chooses a preset before a live run.
type Picker struct {
	choices  []Choice
	cursor   int
	selected *Choice
	quit     bool
}

func NewPicker(choices []Choice) Picker { return Picker{choices: choices} }

// Selected is the chosen preset, or nil when the user quit.
func (p Picker) Selected() *Choice { return p.selected }

func (p Picker) Init() tea.Cmd { return nil }

func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		p.quit = true
		return p, tea.Quit
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.choices)-1 {
			p.cursor++
		}
	case "enter":
		if len(p.choices) > 0 {
			c := p.choices[p.cursor]
			p.selected = &c
		}
		return p, tea.Quit
	}
	return p, nil
}

func (p Picker) View() string {
	if p.quit || p.selected != nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(NeonGlow.Render("WHOLEBODY") + "\n")
	b.WriteString(Separator(40) + "\n\n")
	for i, c := range p.choices {
		if i == p.cursor {
			b.WriteString(selectedStyle.Render("▸ "+c.String()) + "\n")
			b.WriteString(detailStyle.Render(describe(c.Config)) + "\n")
			continue
		}
		b.WriteString(itemStyle.Render(c.String()) + "\n")
	}
	b.WriteString("\n" + Subtle.Render("↑/↓ select  enter run  q quit"))
	return GlassPanel.Render(b.String())
}

func describe(c *config.Config) string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("%s plant, %s, %.1fms, mu=%.2f", c.Plant, c.Solver.Backend, c.Period*1000, c.Contact.Friction)
}
