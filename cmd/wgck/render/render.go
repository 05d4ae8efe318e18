// Package render fills <PLACEHOLDER> templates for the server and client
// configs and writes the client files and their QR codes.
package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"wg-confkeeper/models"
)

var placeholderRe = regexp.MustCompile(`<([A-Z0-9_]+)>`)

// placeholder name of every obfuscation field
var obfuscationPlaceholders = map[string]string{
	"Jc":   "JC",
	"Jmin": "JMIN",
	"Jmax": "JMAX",
	"S1":   "S1",
	"S2":   "S2",
	"H1":   "H1",
	"H2":   "H2",
	"H3":   "H3",
	"H4":   "H4",
}

type Values map[string]string

// Render replaces the placeholders that have a value, others stay as they are.
func Render(tmpl string, values Values) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(token string) string {
		if v, ok := values[token[1:len(token)-1]]; ok {
			return v
		}
		return token
	})
}

// DisableObfuscation turns "Jc = <JC>" style lines into comments.
func DisableObfuscation(tmpl string) string {
	lines := strings.Split(tmpl, "\n")
	for i, ln := range lines {
		key, value, ok := strings.Cut(ln, "=")
		if !ok {
			continue
		}
		if _, known := obfuscationPlaceholders[strings.TrimSpace(key)]; known && strings.HasPrefix(strings.TrimSpace(value), "<") {
			lines[i] = "# " + ln
		}
	}
	return strings.Join(lines, "\n")
}

// DropEmptyField removes "key = " lines whose value rendered empty.
func DropEmptyField(text, key string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, ln := range lines {
		k, v, ok := strings.Cut(ln, "=")
		if ok && strings.TrimSpace(k) == key && strings.TrimSpace(v) == "" {
			continue
		}
		kept = append(kept, ln)
	}
	return strings.Join(kept, "\n")
}

// Prepare disables the obfuscation lines unless the kind supports them.
func Prepare(tmpl string, kind models.Kind) string {
	if kind.Obfuscated() {
		return tmpl
	}
	return DisableObfuscation(tmpl)
}

// ObfuscationValues copies Jc..H4 from the server interface.
func ObfuscationValues(srv models.ServerInterface) Values {
	values := make(Values, len(obfuscationPlaceholders))
	for key, placeholder := range obfuscationPlaceholders {
		if v, ok := srv.Get(key); ok {
			values[placeholder] = v
		}
	}
	return values
}

type ServerParams struct {
	Kind       models.Kind
	PrivateKey string
	PublicKey  string
	Address    models.Address
	Port       int
	Interface  string
	Adapter    string
	Now        time.Time
}

// ServerConfig renders a new server document.
func ServerConfig(p ServerParams) (string, error) {
	if !p.Address.HasPrefix() {
		return "", fmt.Errorf("%w: server address %s needs a mask", models.ErrInvalidAddress, p.Address)
	}
	if p.Port <= 0 || p.Port > 65535 {
		return "", fmt.Errorf("invalid listen port %d", p.Port)
	}
	if p.Interface == "" {
		return "", fmt.Errorf("invalid tunnel name %q", p.Interface)
	}

	values := Values{
		"SERVER_KEY_TIME":    p.Now.Format(time.RFC3339),
		"SERVER_PRIVATE_KEY": p.PrivateKey,
		"SERVER_PUBLIC_KEY":  p.PublicKey,
		"SERVER_ADDR":        p.Address.String(),
		"SERVER_PORT":        strconv.Itoa(p.Port),
		"INTERFACE":          p.Interface,
		"ADAPTER":            p.Adapter,
	}
	if p.Kind.Obfuscated() {
		obf, err := RandomObfuscation()
		if err != nil {
			return "", err
		}
		for k, v := range obf {
			values[k] = v
		}
	}
	return Render(Prepare(serverTemplate, p.Kind), values), nil
}

// ClientTemplate renders the template the client configs are made from. The
// endpoint address must be a bare address.
func ClientTemplate(kind models.Kind, endpoint models.Address, dns []string, keepAlive int) (string, error) {
	if endpoint.HasPrefix() {
		return "", fmt.Errorf("%w: endpoint %s must not have a mask", models.ErrInvalidAddress, endpoint)
	}
	values := Values{
		"SERVER_ADDR": endpoint.IP(),
		"DNS":         strings.Join(dns, ", "),
		"KEEPALIVE":   strconv.Itoa(keepAlive),
	}
	return Render(Prepare(clientTemplate, kind), values), nil
}

// ClientValues collects everything a client config needs from the server
// interface and the peer.
func ClientValues(kind models.Kind, srv models.ServerInterface, serverPub string, peer *models.PeerRecord) Values {
	values := Values{
		"CLIENT_PRIVATE_KEY": peer.PrivateKey,
		"CLIENT_PUBLIC_KEY":  peer.PublicKey,
		"CLIENT_KEY_TIME":    peer.GenKeyTime,
		"CLIENT_NAME":        peer.Name,
		"PRESHARED_KEY":      peer.PresharedKey,
		"SERVER_PUBLIC_KEY":  serverPub,
	}
	if peer.AllowedIPs != nil {
		values["CLIENT_TUNNEL_IP"] = peer.AllowedIPs.String()
	}
	if v, ok := srv.Get("ListenPort"); ok {
		values["SERVER_PORT"] = v
	}
	if kind.Obfuscated() {
		for k, v := range ObfuscationValues(srv) {
			values[k] = v
		}
	}
	return values
}
