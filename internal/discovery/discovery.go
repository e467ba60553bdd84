// Package discovery advertises the control panel on the local network.
package discovery

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/mdns"
	qrcode "github.com/skip2/go-qrcode"
)

// ServiceType is the mDNS service the server registers
const ServiceType = "_aplgui._tcp"

// Advertisement is a running mDNS responder
type Advertisement struct {
	server *mdns.Server
}

// TXTRecords returns the records published alongside the service
func TXTRecords(projectRoot, url, version string) []string {
	return []string{
		fmt.Sprintf("project=%s", projectRoot),
		fmt.Sprintf("url=%s", url),
		fmt.Sprintf("version=%s", version),
	}
}

// InstanceName picks the advertised instance name
func InstanceName(instance string) string {
	name := strings.TrimSpace(instance)
	if name != "" {
		return name
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return "aplgui-" + host
	}
	return "aplgui"
}

// Advertise starts answering mDNS queries for the server
func Advertise(instance string, port int, txt []string) (*Advertisement, error) {
	if port <= 0 {
		return nil, fmt.Errorf("invalid port for mDNS advertisement: %d", port)
	}
	service, err := mdns.NewMDNSService(InstanceName(instance), ServiceType, "local", "", port, nil, txt)
	if err != nil {
		return nil, fmt.Errorf("create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("start mDNS server: %w", err)
	}
	return &Advertisement{server: server}, nil
}

// Close stops the responder
func (a *Advertisement) Close() error {
	if a == nil || a.server == nil {
		return nil
	}
	return a.server.Shutdown()
}

// QRCode renders url as a terminal QR code
func QRCode(url string) (string, error) {
	code, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return code.ToString(false), nil
}
