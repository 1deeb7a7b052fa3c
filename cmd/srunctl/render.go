package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/micro-ha/srun-guard/internal/model"
	"github.com/micro-ha/srun-guard/internal/srun"
)

var (
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#89B4FA")).Width(10)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

var stateStyles = map[model.NetworkState]lipgloss.Style{
	model.StateOnline:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A6E3A1")),
	model.StateOffline:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAB387")),
	model.StateError:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F38BA8")),
	model.StateChecking: lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
}

type renderer struct {
	w io.Writer
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

func (r *renderer) row(label, value string) {
	fmt.Fprintln(r.w, labelStyle.Render(label)+value)
}

func (r *renderer) status(profile string, status model.NetworkStatus) {
	style, ok := stateStyles[status.State]
	if !ok {
		style = lipgloss.NewStyle()
	}
	r.row("profile", profile)
	r.row("state", style.Render(string(status.State)))
	switch status.State {
	case model.StateOnline:
		r.row("user", status.Username)
		r.row("ip", status.IPAddress)
		r.row("traffic", model.FormatBytes(status.UsedBytes))
		r.row("online", model.FormatDuration(status.OnlineSeconds))
	case model.StateError:
		r.row("error", status.ErrorMessage)
	}
}

func (r *renderer) outcome(op string, out model.LoginOutcome) {
	if out.IsSuccess() {
		msg := op + " " + string(out.Result)
		if out.Message != "" {
			msg += ": " + out.Message
		}
		fmt.Fprintln(r.w, successStyle.Render(msg))
		return
	}
	fmt.Fprintln(r.w, errorStyle.Render(op+" failed: "+out.Message))
}

func (r *renderer) encoded(username, password string) {
	if username != "" {
		r.row("username", srun.URLEncode(srun.EncryptUsername(username)))
	}
	if password != "" {
		r.row("password", srun.URLEncode(srun.EncryptPassword(password)))
	}
}

func (r *renderer) event(ev model.Event) {
	parts := []string{dimStyle.Render(ev.At.Local().Format("15:04:05")), string(ev.Type)}
	switch {
	case ev.Status != nil:
		style, ok := stateStyles[ev.Status.State]
		if !ok {
			style = lipgloss.NewStyle()
		}
		parts = append(parts, style.Render(ev.Status.Describe()))
	case ev.Outcome != nil && ev.Outcome.IsSuccess():
		parts = append(parts, successStyle.Render(string(ev.Outcome.Result)))
	case ev.Outcome != nil:
		parts = append(parts, errorStyle.Render(ev.Outcome.Message))
	}
	fmt.Fprintln(r.w, strings.Join(parts, " "))
}

func (r *renderer) failure(err error) {
	fmt.Fprintln(r.w, errorStyle.Render("error: "+err.Error()))
}
