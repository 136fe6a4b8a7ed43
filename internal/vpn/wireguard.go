package vpn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vishvananda/netlink"
	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"grimm.is/tunnelgate/internal/logging"
)

// Netlinker abstracts the netlink calls the device needs.
type Netlinker interface {
	LinkByName(name string) (netlink.Link, error)
	LinkAdd(link netlink.Link) error
	LinkDel(link netlink.Link) error
	LinkSetUp(link netlink.Link) error
	LinkSetMTU(link netlink.Link, mtu int) error
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
	AddrAdd(link netlink.Link, addr *netlink.Addr) error
}

type systemNetlinker struct{}

func (systemNetlinker) LinkByName(name string) (netlink.Link, error) { return netlink.LinkByName(name) }
func (systemNetlinker) LinkAdd(link netlink.Link) error              { return netlink.LinkAdd(link) }
func (systemNetlinker) LinkDel(link netlink.Link) error              { return netlink.LinkDel(link) }
func (systemNetlinker) LinkSetUp(link netlink.Link) error            { return netlink.LinkSetUp(link) }
func (systemNetlinker) LinkSetMTU(link netlink.Link, mtu int) error {
	return netlink.LinkSetMTU(link, mtu)
}
func (systemNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return netlink.AddrList(link, family)
}
func (systemNetlinker) AddrAdd(link netlink.Link, addr *netlink.Addr) error {
	return netlink.AddrAdd(link, addr)
}

// wgController is the subset of *wgctrl.Client used here.
type wgController interface {
	Device(name string) (*wgtypes.Device, error)
	ConfigureDevice(name string, cfg wgtypes.Config) error
	Close() error
}

// WireGuardDevice manages a kernel WireGuard interface via netlink and wgctrl.
type WireGuardDevice struct {
	logger    *logging.Logger
	nl        Netlinker
	newClient func() (wgController, error)

	mu     sync.Mutex
	client wgController
}

// NewWireGuardDevice creates a device backed by the host kernel.
func NewWireGuardDevice(logger *logging.Logger) *WireGuardDevice {
	if logger == nil {
		logger = logging.Default()
	}
	return &WireGuardDevice{
		logger: logger.WithComponent("vpn"),
		nl:     systemNetlinker{},
		newClient: func() (wgController, error) {
			return wgctrl.New()
		},
	}
}

func (d *WireGuardDevice) wg() (wgController, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		c, err := d.newClient()
		if err != nil {
			return nil, fmt.Errorf("failed to open wgctrl: %w", err)
		}
		d.client = c
	}
	return d.client, nil
}

// Sync brings the interface up and replaces its peer set with cfg.Peers.
func (d *WireGuardDevice) Sync(ctx context.Context, cfg InterfaceConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	link, err := d.ensureLink(cfg.Name)
	if err != nil {
		return err
	}

	conf, err := d.buildConfig(cfg)
	if err != nil {
		return err
	}

	client, err := d.wg()
	if err != nil {
		return err
	}
	if err := client.ConfigureDevice(cfg.Name, conf); err != nil {
		return fmt.Errorf("failed to configure wireguard device: %w", err)
	}

	if cfg.Address != "" {
		if err := d.ensureAddress(link, cfg.Address); err != nil {
			return err
		}
	}

	if cfg.MTU > 0 {
		if err := d.nl.LinkSetMTU(link, cfg.MTU); err != nil {
			d.logger.Warn("failed to set MTU", "interface", cfg.Name, "mtu", cfg.MTU, "error", err)
		}
	}

	if err := d.nl.LinkSetUp(link); err != nil {
		return fmt.Errorf("failed to bring interface up: %w", err)
	}

	d.logger.Debug("wireguard interface synced", "interface", cfg.Name, "peers", len(conf.Peers))
	return nil
}

// ensureLink returns the named wireguard link, creating it if missing.
func (d *WireGuardDevice) ensureLink(name string) (netlink.Link, error) {
	if existing, err := d.nl.LinkByName(name); err == nil {
		if existing.Type() != "wireguard" {
			return nil, fmt.Errorf("interface %s exists but is not wireguard (type: %s)", name, existing.Type())
		}
		return existing, nil
	}

	attrs := netlink.NewLinkAttrs()
	attrs.Name = name
	if err := d.nl.LinkAdd(&netlink.Wireguard{LinkAttrs: attrs}); err != nil {
		return nil, fmt.Errorf("failed to create wireguard interface: %w", err)
	}
	d.logger.Info("created wireguard interface", "interface", name)

	link, err := d.nl.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get link after creation: %w", err)
	}
	return link, nil
}

func (d *WireGuardDevice) ensureAddress(link netlink.Link, cidr string) error {
	addr, err := netlink.ParseAddr(cidr)
	if err != nil {
		return fmt.Errorf("invalid address %s: %w", cidr, err)
	}

	current, err := d.nl.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return fmt.Errorf("failed to list addresses: %w", err)
	}
	for _, cur := range current {
		if cur.Equal(*addr) {
			return nil
		}
	}

	if err := d.nl.AddrAdd(link, addr); err != nil && !errors.Is(err, os.ErrExist) &&
		!strings.Contains(err.Error(), "file exists") {
		return fmt.Errorf("failed to add address %s: %w", cidr, err)
	}
	return nil
}

// buildConfig translates cfg into a wgctrl configuration that replaces
// every peer on the device. Peers with unparseable keys are skipped.
func (d *WireGuardDevice) buildConfig(cfg InterfaceConfig) (wgtypes.Config, error) {
	conf := wgtypes.Config{ReplacePeers: true}

	if cfg.PrivateKey != "" {
		key, err := wgtypes.ParseKey(cfg.PrivateKey)
		if err != nil {
			return conf, fmt.Errorf("invalid private key: %w", err)
		}
		conf.PrivateKey = &key
	}

	if cfg.ListenPort != 0 {
		port := cfg.ListenPort
		conf.ListenPort = &port
	}

	conf.Peers = make([]wgtypes.PeerConfig, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		pubKey, err := wgtypes.ParseKey(p.PublicKey)
		if err != nil {
			d.logger.Warn("invalid peer public key, skipping", "peer", p.Name, "error", err)
			continue
		}

		peer := wgtypes.PeerConfig{
			PublicKey:         pubKey,
			AllowedIPs:        []net.IPNet{},
			ReplaceAllowedIPs: true,
		}

		if p.PresharedKey != "" {
			psk, err := wgtypes.ParseKey(p.PresharedKey)
			if err != nil {
				d.logger.Warn("invalid peer preshared key", "peer", p.Name, "error", err)
			} else {
				peer.PresharedKey = &psk
			}
		}

		if p.PersistentKeepalive != 0 {
			ka := time.Duration(p.PersistentKeepalive) * time.Second
			peer.PersistentKeepaliveInterval = &ka
		}

		for _, cidr := range p.AllowedIPs {
			_, ipnet, err := net.ParseCIDR(cidr)
			if err != nil {
				d.logger.Warn("invalid allowed ip", "peer", p.Name, "cidr", cidr)
				continue
			}
			peer.AllowedIPs = append(peer.AllowedIPs, *ipnet)
		}

		conf.Peers = append(conf.Peers, peer)
	}

	return conf, nil
}

// Peers reads live peer statistics. A missing interface yields no peers.
func (d *WireGuardDevice) Peers(ctx context.Context, name string) ([]PeerStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := d.wg()
	if err != nil {
		return nil, err
	}

	device, err := client.Device(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get device info: %w", err)
	}

	peers := make([]PeerStatus, 0, len(device.Peers))
	for _, p := range device.Peers {
		var endpoint string
		if p.Endpoint != nil {
			endpoint = p.Endpoint.String()
		}
		peers = append(peers, PeerStatus{
			PublicKey:           p.PublicKey.String(),
			Endpoint:            endpoint,
			LatestHandshake:     p.LastHandshakeTime,
			TransferRx:          uint64(p.ReceiveBytes),
			TransferTx:          uint64(p.TransmitBytes),
			PersistentKeepalive: int(p.PersistentKeepaliveInterval.Seconds()),
		})
	}
	return peers, nil
}

// Down deletes the interface. A missing interface is not an error.
func (d *WireGuardDevice) Down(name string) error {
	link, err := d.nl.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to get link: %w", err)
	}

	if err := d.nl.LinkDel(link); err != nil {
		return fmt.Errorf("failed to delete interface: %w", err)
	}

	d.logger.Info("wireguard interface removed", "interface", name)
	return nil
}

// Close releases the wgctrl handle.
func (d *WireGuardDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}
