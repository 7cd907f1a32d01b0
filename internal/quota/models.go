package quota

import "strings"

// DisplayName maps a backend model id to the label Antigravity shows.
func DisplayName(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "claude") && strings.Contains(n, "sonnet") && !strings.Contains(n, "thinking"):
		return "Claude Sonnet 4.5"
	case strings.Contains(n, "thinking"):
		if strings.Contains(n, "opus") {
			return "Claude Opus 4.5 (Thinking)"
		}
		return "Claude Sonnet 4.5 (Thinking)"
	case strings.Contains(n, "opus"):
		return "Claude Opus 4.5"
	case strings.Contains(n, "gemini") && strings.Contains(n, "pro"):
		switch {
		case strings.Contains(n, "high"):
			return "Gemini 3 Pro (High)"
		case strings.Contains(n, "low"):
			return "Gemini 3 Pro (Low)"
		}
		return "Gemini 3 Pro"
	case strings.Contains(n, "gemini") && strings.Contains(n, "flash"):
		return "Gemini 3 Flash"
	case strings.Contains(n, "gpt") && strings.Contains(n, "oss"):
		return "GPT-OSS 120B"
	}

	clean := name
	if i := strings.LastIndex(clean, "/"); i >= 0 {
		clean = clean[i+1:]
	}
	return strings.NewReplacer("-", " ", "_", " ").Replace(clean)
}

// Priority orders model families for display; lower comes first.
func Priority(name string) int {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "claude") && strings.Contains(n, "sonnet") && !strings.Contains(n, "thinking"):
		return 1
	case strings.Contains(n, "thinking"):
		return 2
	case strings.Contains(n, "opus"):
		return 3
	case strings.Contains(n, "gemini") && strings.Contains(n, "pro"):
		return 4
	case strings.Contains(n, "gemini") && strings.Contains(n, "flash"):
		return 5
	case strings.Contains(n, "gpt"):
		return 6
	}
	return 100
}
