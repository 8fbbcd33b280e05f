package profile

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/John-Robertt/surge-balancer/internal/model"
)

func proxyLine(p model.Proxy) (string, error) {
	name := p.Name
	if strings.Contains(name, ",") {
		name = "\"" + name + "\""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s = ss, %s, %d, encrypt-method=%s, password=%s", name, p.Server, p.Port, p.Cipher, p.Password)

	if p.PluginName != "" {
		mode, host, err := obfsOptions(p)
		if err != nil {
			return "", err
		}
		b.WriteString(", obfs=" + mode)
		if host != "" {
			b.WriteString(", obfs-host=" + host)
		}
	}
	if p.UDPRelay != nil {
		fmt.Fprintf(&b, ", udp-relay=%t", *p.UDPRelay)
	}
	return b.String(), nil
}

// obfsOptions accepts simple-obfs / obfs-local with a required obfs=<mode>.
func obfsOptions(p model.Proxy) (mode string, host string, err error) {
	if p.PluginName != "simple-obfs" && p.PluginName != "obfs-local" {
		return "", "", newError(http.StatusUnprocessableEntity, "UNSUPPORTED_PLUGIN", fmt.Sprintf("unsupported shadowsocks plugin: %s", p.PluginName), p.Name, nil)
	}
	for _, kv := range p.PluginOpts {
		switch kv.Key {
		case "obfs":
			mode = kv.Value
		case "obfs-host":
			host = kv.Value
		}
	}
	if mode == "" {
		return "", "", newError(http.StatusUnprocessableEntity, "UNSUPPORTED_PLUGIN", "obfs plugin is missing obfs=<mode>", p.Name, nil)
	}
	return mode, host, nil
}

func groupLine(g model.Group) string {
	var b strings.Builder
	b.WriteString(g.Name)
	b.WriteString(" = select")
	for _, m := range g.Members {
		b.WriteString(", ")
		if strings.Contains(m, ",") {
			m = "\"" + m + "\""
		}
		b.WriteString(m)
	}
	return b.String()
}

var groupNameReplacer = strings.NewReplacer(",", " ", "=", "-", "\r", "", "\n", "", "\x00", "")

// groupName makes a subscription name usable as a Surge policy group name.
func groupName(sub string) string {
	return strings.TrimSpace(groupNameReplacer.Replace(sub))
}
