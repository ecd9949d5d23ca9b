package main

import "github.com/charmbracelet/lipgloss"

// ANSI 256 palette, degraded by lipgloss when stdout is not a terminal.
var (
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true)
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("38")).Bold(true)
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Italic(true)
)
