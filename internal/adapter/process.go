package adapter

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// procInfo is the subset of process state the adapters match against.
// Name and Cmdline are lower-cased up front.
type procInfo struct {
	PID     int32
	Name    string
	Cmdline string
	Cwd     string
}

// listProcesses enumerates live processes. Processes that disappear
// mid-scan or deny access are skipped; an error listing the inventory
// itself yields a nil slice and that scan cycle finds nothing.
func listProcesses() ([]procInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	out := make([]procInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		cmdline, _ := p.Cmdline()
		cwd, _ := p.Cwd()
		out = append(out, procInfo{
			PID:     p.Pid,
			Name:    strings.ToLower(name),
			Cmdline: strings.ToLower(cmdline),
			Cwd:     cwd,
		})
	}
	return out, nil
}
