package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TextRenderer draws result pages for a terminal.
type TextRenderer struct {
	width int
	card  lipgloss.Style
	title lipgloss.Style
	label lipgloss.Style
	muted lipgloss.Style
	dup   lipgloss.Style
}

// NewTextRenderer builds a renderer that wraps cards at width columns.
func NewTextRenderer(width int) *TextRenderer {
	if width < 40 {
		width = 80
	}
	return &TextRenderer{
		width: width,
		card:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(width - 2),
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		label: lipgloss.NewStyle().Bold(true),
		muted: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		dup:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

// Render writes every card of v followed by the pagination summary.
func (r *TextRenderer) Render(w io.Writer, v ListView) error {
	if v.Empty() {
		_, err := fmt.Fprintln(w, v.Message)
		return err
	}
	for _, c := range v.Cards {
		if _, err := fmt.Fprintln(w, r.card.Render(r.cardBody(c))); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, r.muted.Render(r.paginationLine(v.Pagination)))
	return err
}

func (r *TextRenderer) cardBody(c Card) string {
	var b strings.Builder
	b.WriteString(r.title.Render(fmt.Sprintf("#%d %s", c.ID, c.Title)))
	b.WriteString("\n")
	b.WriteString(r.muted.Render(c.ArticleURL))
	b.WriteString("\n")
	r.field(&b, "Published Date", c.PublishedDate)
	if body := strings.TrimSpace(c.Body); body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	r.field(&b, "Tagged Companies", c.Companies)
	r.field(&b, "Persons", c.Persons)
	r.field(&b, "Organizations", c.Organizations)
	r.field(&b, "Locations", c.Locations)
	if c.HasDuplicates() {
		b.WriteString(r.dup.Render("Has duplicates: " + c.DuplicatesURL))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *TextRenderer) field(b *strings.Builder, label, value string) {
	b.WriteString(r.label.Render(label + ":"))
	b.WriteString(" ")
	b.WriteString(value)
	b.WriteString("\n")
}

func (r *TextRenderer) paginationLine(p PaginationView) string {
	parts := []string{p.Summary}
	if p.Previous != nil {
		parts = append(parts, fmt.Sprintf("previous: --page %d", p.Previous.Page))
	}
	if p.Next != nil {
		parts = append(parts, fmt.Sprintf("next: --page %d", p.Next.Page))
	}
	return strings.Join(parts, " | ")
}
