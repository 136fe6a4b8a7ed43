package roster

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"rsc.io/qr"
)

var (
	unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_=+.-]`)
	repeatedDashes  = regexp.MustCompile(`-{2,}`)
)

// maxFileNameLength bounds the stem of a downloaded config file name.
const maxFileNameLength = 32

// qrSize is the rendered edge length of a QR code in pixels.
const qrSize = 512

// GetClientConfiguration renders the wg-quick config for one client.
func (r *Roster) GetClientConfiguration(ctx context.Context, id ClientID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.loadClient(id)
	if err != nil {
		return "", err
	}
	srv, err := r.loadServer()
	if err != nil {
		return "", err
	}
	return r.renderClientConfig(srv, c), nil
}

// GetClientQRCodeSVG renders the client config as a QR code in SVG.
func (r *Roster) GetClientQRCodeSVG(ctx context.Context, id ClientID) (string, error) {
	conf, err := r.GetClientConfiguration(ctx, id)
	if err != nil {
		return "", err
	}
	return renderQRCodeSVG(conf)
}

// ConfigFileName returns a download-safe file name for a client's config:
// the name with unsafe runs collapsed to single dashes, at most 32
// characters, falling back to the client ID.
func ConfigFileName(c *Client) string {
	stem := unsafeFileChars.ReplaceAllString(c.Name, "-")
	stem = repeatedDashes.ReplaceAllString(stem, "-")
	stem = strings.TrimSuffix(stem, "-")
	if len(stem) > maxFileNameLength {
		stem = stem[:maxFileNameLength]
	}
	if stem == "" {
		stem = string(c.ID)
	}
	return stem + ".conf"
}

func (r *Roster) renderClientConfig(srv *Server, c *Client) string {
	var b strings.Builder

	privateKey := c.PrivateKey
	if privateKey == "" {
		privateKey = "REPLACE_ME"
	}

	b.WriteString("[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", privateKey)
	fmt.Fprintf(&b, "Address = %s/24\n", c.Address)
	if r.cfg.DefaultDNS != "" {
		fmt.Fprintf(&b, "DNS = %s\n", r.cfg.DefaultDNS)
	}
	if r.cfg.MTU > 0 {
		fmt.Fprintf(&b, "MTU = %d\n", r.cfg.MTU)
	}

	b.WriteString("\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", srv.PublicKey)
	if c.PreSharedKey != "" {
		fmt.Fprintf(&b, "PresharedKey = %s\n", c.PreSharedKey)
	}
	fmt.Fprintf(&b, "AllowedIPs = %s\n", r.cfg.AllowedIPs)
	fmt.Fprintf(&b, "PersistentKeepalive = %d\n", r.cfg.PersistentKeepalive)
	fmt.Fprintf(&b, "Endpoint = %s:%d", r.cfg.Host, r.cfg.ConfigPort)

	return b.String()
}

func (r *Roster) renderServerConfig(srv *Server, clients map[string]*Client) string {
	var b strings.Builder

	b.WriteString("# Note: Do not edit this file directly.\n")
	b.WriteString("# Your changes will be overwritten!\n\n")
	b.WriteString("# Server\n[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", srv.PrivateKey)
	fmt.Fprintf(&b, "Address = %s/24\n", srv.Address)
	fmt.Fprintf(&b, "ListenPort = %d\n", r.cfg.Port)
	fmt.Fprintf(&b, "PreUp = %s\n", r.cfg.PreUp)
	fmt.Fprintf(&b, "PostUp = %s\n", r.cfg.PostUp)
	fmt.Fprintf(&b, "PreDown = %s\n", r.cfg.PreDown)
	fmt.Fprintf(&b, "PostDown = %s\n", r.cfg.PostDown)

	for _, c := range sortedClients(clients) {
		if !c.Enabled {
			continue
		}
		fmt.Fprintf(&b, "\n# Client: %s (%s)\n[Peer]\n", c.Name, c.ID)
		fmt.Fprintf(&b, "PublicKey = %s\n", c.PublicKey)
		if c.PreSharedKey != "" {
			fmt.Fprintf(&b, "PresharedKey = %s\n", c.PreSharedKey)
		}
		fmt.Fprintf(&b, "AllowedIPs = %s/32\n", c.Address)
	}

	return b.String()
}

// renderQRCodeSVG encodes text as a square SVG with a four-module quiet zone.
func renderQRCodeSVG(text string) (string, error) {
	code, err := qr.Encode(text, qr.L)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}

	const quiet = 4
	modules := code.Size + 2*quiet

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" version="1.1" width="%d" height="%d" viewBox="0 0 %d %d" shape-rendering="crispEdges">`,
		qrSize, qrSize, modules, modules)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#ffffff"/>`, modules, modules)
	b.WriteString(`<path fill="#000000" d="`)
	for y := 0; y < code.Size; y++ {
		for x := 0; x < code.Size; x++ {
			if code.Black(x, y) {
				fmt.Fprintf(&b, "M%d %dh1v1h-1z", x+quiet, y+quiet)
			}
		}
	}
	b.WriteString(`"/></svg>`)
	return b.String(), nil
}
