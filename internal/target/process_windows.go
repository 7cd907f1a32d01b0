package target

import (
	"os"
	"path/filepath"
)

func platformLayout(home string) layout {
	localAppData := os.Getenv("LOCALAPPDATA")
	if localAppData == "" {
		localAppData = filepath.Join(home, "AppData", "Local")
	}
	appData := os.Getenv("APPDATA")
	if appData == "" {
		appData = filepath.Join(home, "AppData", "Roaming")
	}

	return layout{
		stop: []Command{
			{Name: "taskkill", Args: []string{"/F", "/IM", "Antigravity.exe", "/T"}},
		},
		start: []Command{
			{Name: filepath.Join(localAppData, "Programs", "Antigravity", "Antigravity.exe")},
			{Name: `C:\Program Files\Antigravity\Antigravity.exe`},
		},
		stateDB: filepath.Join(appData, "Antigravity", "User", "globalStorage", "state.vscdb"),
	}
}
