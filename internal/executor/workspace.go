package executor

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// slugify reduces title to a short filesystem-safe token, for the
// `task-<shortid>-<slug>.txt` naming scheme.
func slugify(title string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "task"
	}
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

// shortID returns the first 8 characters of a task id, for a readable
// workspace filename.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// persistOutput writes output to dir under a deterministic name.
// A write failure is logged and swallowed — it must
// never fail the task.
func persistOutput(dir, taskID, title, output string) {
	if dir == "" {
		return
	}
	name := fmt.Sprintf("task-%s-%s.txt", shortID(taskID), slugify(title))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(output), 0o644); err != nil {
		log.Printf("[EXECUTOR] failed to persist workspace output for task %s: %v", taskID, err)
	}
}
