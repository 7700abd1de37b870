package loader

import "strings"

// CleanCode extracts Go source from a model reply. Fenced blocks are unwrapped;
// when several are present the first one declaring a function wins.
func CleanCode(reply string) string {
	text := strings.TrimSpace(reply)
	if !strings.Contains(text, "```") {
		return text
	}

	blocks := fencedBlocks(text)
	if len(blocks) == 0 {
		return strings.TrimSpace(strings.ReplaceAll(text, "```", ""))
	}
	for _, b := range blocks {
		if strings.Contains(b, "func ") {
			return b
		}
	}
	return blocks[0]
}

func fencedBlocks(text string) []string {
	var blocks []string
	var current []string
	inside := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inside {
				blocks = append(blocks, strings.TrimSpace(strings.Join(current, "\n")))
				current = nil
			}
			inside = !inside
			continue
		}
		if inside {
			current = append(current, line)
		}
	}
	if inside && len(current) > 0 {
		// Unterminated fence: keep what was written.
		blocks = append(blocks, strings.TrimSpace(strings.Join(current, "\n")))
	}
	return blocks
}
