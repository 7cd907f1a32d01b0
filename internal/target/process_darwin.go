package target

import "path/filepath"

func platformLayout(home string) layout {
	return layout{
		stop: []Command{
			{Name: "pkill", Args: []string{"-9", "-i", "Antigravity"}},
			{Name: "pkill", Args: []string{"-9", "-f", "Antigravity Helper"}},
		},
		start: []Command{
			{Name: "open", Args: []string{"-a", "Antigravity"}},
		},
		stateDB: filepath.Join(home, "Library", "Application Support", "Antigravity", "User", "globalStorage", "state.vscdb"),
	}
}
