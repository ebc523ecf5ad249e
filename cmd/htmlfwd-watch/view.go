package main

import (
	"fmt"
	"io"
	"strings"

	htmlfwd "github.com/htmlfwd/go-client"
)

// view is the observer's copy of every endpoint's state.
type view struct {
	rows []htmlfwd.EndpointState
}

// apply merges a frame into the view. A reload replaces every row; an
// update overwrites the rows it carries and leaves null entries alone.
func (v *view) apply(f htmlfwd.ObserverFrame) {
	if f.Reload != nil {
		v.rows = append(v.rows[:0], f.Reload...)
		return
	}
	for i, snap := range f.Update {
		if snap == nil || i >= len(v.rows) {
			continue
		}
		v.rows[i].Status = snap.Status
		v.rows[i].RetrySec = snap.RetrySec
	}
}

// tick counts every pending retry down by one second.
func (v *view) tick() {
	for i := range v.rows {
		r := v.rows[i].RetrySec
		if r == nil {
			continue
		}
		next := *r - 1
		if next < 0 {
			next = 0
		}
		v.rows[i].RetrySec = &next
	}
}

func (v *view) render(w io.Writer) {
	if len(v.rows) == 0 {
		fmt.Fprintln(w, "(no endpoints)")
		return
	}
	for i, r := range v.rows {
		status := r.Status.String()
		if r.RetrySec != nil {
			status = fmt.Sprintf("%s (retry in %ds)", status, *r.RetrySec)
		}
		fmt.Fprintf(w, "%2d  %-16s %-24s %s\n", i, r.Label, r.Host, status)
	}
}

// parseInput turns a console line into a command:
//
//	connect 0
//	disconnect 1
//	reload devbox=devbox:8888 ci=ci.local:80
func parseInput(line string) (htmlfwd.Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return htmlfwd.Command{}, fmt.Errorf("empty command")
	}
	switch fields[0] {
	case "connect", "disconnect":
		if len(fields) != 2 {
			return htmlfwd.Command{}, fmt.Errorf("usage: %s <index>", fields[0])
		}
		var index int
		if _, err := fmt.Sscanf(fields[1], "%d", &index); err != nil {
			return htmlfwd.Command{}, fmt.Errorf("bad index %q", fields[1])
		}
		if fields[0] == "connect" {
			return htmlfwd.ConnectCommand(index), nil
		}
		return htmlfwd.DisconnectCommand(index), nil
	case "reload":
		specs := make([]htmlfwd.EndpointSpec, 0, len(fields)-1)
		for _, f := range fields[1:] {
			label, host, ok := strings.Cut(f, "=")
			if !ok || host == "" {
				return htmlfwd.Command{}, fmt.Errorf("bad endpoint %q, want label=host", f)
			}
			specs = append(specs, htmlfwd.EndpointSpec{Label: label, Host: host})
		}
		return htmlfwd.ReloadCommand(specs), nil
	}
	return htmlfwd.Command{}, fmt.Errorf("unknown command %q", fields[0])
}
