package template

import (
	"fmt"
	"strings"
)

const (
	managedConfigPrefix   = "#!MANAGED-CONFIG"
	managedConfigInterval = 86400
)

// EnsureManagedConfig makes the first non-empty line
//
//	#!MANAGED-CONFIG <profileURL> interval=86400
//
// An existing line keeps its parameters; only the URL is replaced.
func EnsureManagedConfig(text string, profileURL string) (string, error) {
	if strings.TrimSpace(profileURL) == "" {
		return "", newError("INVALID_ARGUMENT", "profile URL must not be empty", "", "")
	}
	if strings.TrimSpace(text) == "" {
		return "", newError("TEMPLATE_EMPTY", "Template not set", "", "")
	}

	newline := detectNewline(text)
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	managed := -1
	for i, line := range lines {
		if !isManagedConfigLine(line) {
			continue
		}
		if managed != -1 {
			return "", managedConfigAmbiguous("template has more than one #!MANAGED-CONFIG line")
		}
		managed = i
	}

	if managed == -1 {
		lines = append([]string{fmt.Sprintf("%s %s interval=%d", managedConfigPrefix, profileURL, managedConfigInterval)}, lines...)
	} else {
		if managed != firstNonEmptyLine(lines) {
			return "", managedConfigAmbiguous("#!MANAGED-CONFIG must be the first non-empty line")
		}
		rewritten, err := rewriteManagedConfigURL(lines[managed], profileURL)
		if err != nil {
			return "", err
		}
		lines[managed] = rewritten
	}

	out := strings.Join(lines, "\n")
	if newline == "\r\n" {
		out = strings.ReplaceAll(out, "\n", "\r\n")
	}
	return out, nil
}

func isManagedConfigLine(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), managedConfigPrefix)
}

func firstNonEmptyLine(lines []string) int {
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			return i
		}
	}
	return -1
}

// rewriteManagedConfigURL swaps the URL token and keeps everything around it.
func rewriteManagedConfigURL(line string, newURL string) (string, error) {
	lead := leadingWhitespace(line)
	after := line[len(lead)+len(managedConfigPrefix):]

	urlStart := len(after) - len(strings.TrimLeft(after, " \t"))
	if urlStart == len(after) {
		return "", managedConfigAmbiguous("#!MANAGED-CONFIG has no URL")
	}
	urlEnd := urlStart
	for urlEnd < len(after) && after[urlEnd] != ' ' && after[urlEnd] != '\t' {
		urlEnd++
	}
	return lead + managedConfigPrefix + after[:urlStart] + newURL + after[urlEnd:], nil
}

func managedConfigAmbiguous(msg string) error {
	return newError("TEMPLATE_SECTION_ERROR", msg, "", "Surge expects a single #!MANAGED-CONFIG line at the top of the profile")
}
