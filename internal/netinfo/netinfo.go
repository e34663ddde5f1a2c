// Package netinfo works out the URL students should open and renders it as
// a QR code for the faculty screen.
package netinfo

import (
	"fmt"
	"net"

	"github.com/skip2/go-qrcode"
)

// StudentPath is the page students land on after scanning.
const StudentPath = "/student.html"

// Info describes how students reach the server.
type Info struct {
	NetworkIP  string `json:"networkIp"`
	Port       string `json:"port"`
	StudentURL string `json:"studentUrl"`
}

// Resolve returns the student URL. A configured public host wins; otherwise
// the first non-loopback IPv4 address is used, falling back to localhost.
func Resolve(publicHost, port string) Info {
	host := publicHost
	if host == "" {
		host = NetworkIP(net.InterfaceAddrs)
	}
	return Info{
		NetworkIP:  host,
		Port:       port,
		StudentURL: fmt.Sprintf("http://%s%s", net.JoinHostPort(host, port), StudentPath),
	}
}

// NetworkIP picks the first non-loopback IPv4 address reported by addrs.
func NetworkIP(addrs func() ([]net.Addr, error)) string {
	list, err := addrs()
	if err != nil {
		return "localhost"
	}
	for _, a := range list {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return "localhost"
}

// QR renders url as a square PNG of size pixels.
func QR(url string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(url, qrcode.Medium, size)
}
