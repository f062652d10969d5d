package commands

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/keshon/kupumalam/internal/command"
	"github.com/keshon/kupumalam/internal/dispatch"
	"github.com/keshon/kupumalam/internal/paginator"
	"github.com/keshon/kupumalam/internal/reply"
)

const helpTimeout = 120 * time.Second

func (d Deps) help(ctx context.Context, c *dispatch.Context) error {
	silent := flag(c.Interaction, "silent")
	pages := d.helpPages(c.Interaction.Username)
	if len(pages) == 0 {
		m := reply.Text("No commands available.")
		m.Ephemeral = silent
		return c.Reply(ctx, m)
	}
	_, err := d.Pager.Start(ctx, view{c.Responder}, pages, c.Interaction.UserID, paginator.Options{
		Timeout:   helpTimeout,
		Ephemeral: silent,
	})
	return err
}

// helpPages builds a homepage followed by one page per category, in the
// order categories first appear. Hidden and uncategorised commands are
// left out.
func (d Deps) helpPages(username string) []reply.Message {
	var categories []string
	byCategory := make(map[string][]*command.Definition)
	for _, def := range d.Catalog.All() {
		if def.Hidden || def.Category == "" {
			continue
		}
		if _, seen := byCategory[def.Category]; !seen {
			categories = append(categories, def.Category)
		}
		byCategory[def.Category] = append(byCategory[def.Category], def)
	}
	if len(categories) == 0 {
		return nil
	}

	total := len(categories) + 1
	footer := func(page int) string {
		return fmt.Sprintf("Requested by %s | Page %d of %d", username, page, total)
	}

	pages := []reply.Message{{Embeds: []reply.Embed{{
		Title:       "Welcome to the Help Command",
		Description: "Here you can find all the available commands for this bot. Use the navigation buttons to view them by category.",
		Footer:      footer(1),
	}}}}
	for i, cat := range categories {
		var lines []string
		for n, def := range byCategory[cat] {
			lines = append(lines, fmt.Sprintf("**%d**. %s - %s", n+1, d.mention(def), def.Description))
		}
		pages = append(pages, reply.Message{Embeds: []reply.Embed{{
			Title:       capitalize(cat) + " Category",
			Description: strings.Join(lines, "\n"),
			Footer:      footer(i + 2),
		}}})
	}
	return pages
}

func (d Deps) mention(def *command.Definition) string {
	if d.Mentions == nil {
		return "`" + def.Path() + "`"
	}
	return d.Mentions.Mention(def)
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
