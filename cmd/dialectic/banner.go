package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerDimStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	bannerThesisStyle  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	bannerAntiStyle    = lipgloss.NewStyle().Foreground(colorPrimaryLight)
	bannerTitleStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	bannerTaglineStyle = lipgloss.NewStyle().Foreground(colorPrimaryDark).Italic(true)
)

// renderBanner draws two opposing arrows meeting at the name.
func renderBanner() string {
	dot := bannerDimStyle.Render("·")
	thesis := bannerThesisStyle.Render("▶")
	anti := bannerAntiStyle.Render("◀")
	title := bannerTitleStyle.Render("DIALECTIC")

	lines := []string{
		"  " + thesis + " " + dot + " " + dot + " " + dot + "       " + dot + " " + dot + " " + dot + " " + anti,
		"        " + dot + "  " + title + "  " + dot,
		"  " + thesis + " " + dot + " " + dot + " " + dot + "       " + dot + " " + dot + " " + dot + " " + anti,
	}
	return strings.Join(lines, "\n")
}

func renderBannerWithTagline() string {
	tagline := bannerTaglineStyle.Render("     thesis, antithesis, agents")
	return renderBanner() + "\n" + tagline
}
