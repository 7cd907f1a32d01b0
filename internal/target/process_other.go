//go:build !darwin && !windows

package target

import "path/filepath"

func platformLayout(home string) layout {
	return layout{
		find: &Command{Name: "pgrep", Args: []string{"-f", "antigravity"}},
		start: []Command{
			{Name: "antigravity"},
		},
		stateDB: filepath.Join(home, ".config", "Antigravity", "User", "globalStorage", "state.vscdb"),
	}
}
