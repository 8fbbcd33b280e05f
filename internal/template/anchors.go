// Package template fills the stored Surge profile template with the proxies
// and groups of a user's enabled subscriptions.
package template

import (
	"fmt"
	"strings"
)

const (
	AnchorProxies = "#@PROXIES@#"
	AnchorGroups  = "#@GROUPS@#"
)

// Blocks are the rendered lines that replace the anchors.
type Blocks struct {
	Proxies string
	Groups  string
}

// Validate checks the anchors of a Surge template: #@PROXIES@# exactly once
// inside [Proxy], #@GROUPS@# at most once inside [Proxy Group], each on a
// line of its own.
func Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return newError("TEMPLATE_EMPTY", "Template not set", "", "")
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	_, err := findAnchors(lines)
	return err
}

// Inject replaces the anchors with blocks, keeping the anchor line's
// indentation and the template's newline style. A template without
// #@GROUPS@# simply drops blocks.Groups.
func Inject(text string, blocks Blocks) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", newError("TEMPLATE_EMPTY", "Template not set", "", "")
	}

	newline := detectNewline(text)
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(normalized, "\n")

	pos, err := findAnchors(lines)
	if err != nil {
		return "", err
	}

	lines[pos.proxies] = indentBlock(lines[pos.proxies], blocks.Proxies)
	if pos.groups >= 0 {
		lines[pos.groups] = indentBlock(lines[pos.groups], blocks.Groups)
	}

	out := strings.Join(lines, "\n")
	if newline == "\r\n" {
		out = strings.ReplaceAll(out, "\n", "\r\n")
	}
	return out, nil
}

type anchorPos struct {
	proxies int
	groups  int
}

func findAnchors(lines []string) (anchorPos, error) {
	pos := anchorPos{proxies: -1, groups: -1}

	section := ""
	for i, line := range lines {
		trim := strings.TrimSpace(line)
		for _, a := range []string{AnchorProxies, AnchorGroups} {
			if strings.Contains(line, a) && trim != a {
				return anchorPos{}, newError("TEMPLATE_SECTION_ERROR", "anchor must be on a line of its own", line, a)
			}
		}

		if sec, ok := parseSectionHeader(trim); ok {
			section = sec
			continue
		}

		switch trim {
		case AnchorProxies:
			if pos.proxies >= 0 {
				return anchorPos{}, anchorDup(AnchorProxies)
			}
			if section != "proxy" {
				return anchorPos{}, newError("TEMPLATE_SECTION_ERROR", fmt.Sprintf("%s must be inside [Proxy]", AnchorProxies), line, "")
			}
			pos.proxies = i
		case AnchorGroups:
			if pos.groups >= 0 {
				return anchorPos{}, anchorDup(AnchorGroups)
			}
			if section != "proxy group" {
				return anchorPos{}, newError("TEMPLATE_SECTION_ERROR", fmt.Sprintf("%s must be inside [Proxy Group]", AnchorGroups), line, "")
			}
			pos.groups = i
		}
	}

	if pos.proxies < 0 {
		return anchorPos{}, newError("TEMPLATE_ANCHOR_MISSING", fmt.Sprintf("missing anchor %s", AnchorProxies), "", "add a line with "+AnchorProxies+" under [Proxy]")
	}
	return pos, nil
}

func anchorDup(anchor string) error {
	return newError("TEMPLATE_ANCHOR_DUP", fmt.Sprintf("anchor %s appears more than once", anchor), "", "")
}

func indentBlock(anchorLine string, block string) string {
	if block == "" {
		return ""
	}
	indent := leadingWhitespace(anchorLine)
	blockLines := strings.Split(block, "\n")
	for i := range blockLines {
		blockLines[i] = indent + blockLines[i]
	}
	return strings.Join(blockLines, "\n")
}

func parseSectionHeader(trim string) (string, bool) {
	if len(trim) < 3 || trim[0] != '[' || trim[len(trim)-1] != ']' {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(trim[1 : len(trim)-1])), true
}

func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

func detectNewline(s string) string {
	if strings.Contains(s, "\r\n") {
		return "\r\n"
	}
	return "\n"
}
