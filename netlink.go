// Netlink implementation of enc28j60.

package enc28j60

import (
	"net"

	"tinygo.org/x/drivers/netlink"
)

var _ netlink.Netlinker = (*Device)(nil)

// NetConnect starts the device. The link comes up when a cable is attached.
// Connection parameters describe WiFi networks and are ignored.
func (d *Device) NetConnect(params *netlink.ConnectParams) error {
	return d.Start()
}

func (d *Device) NetDisconnect() {
	d.Stop()
}

func (d *Device) NetNotify(cb func(netlink.Event)) {
	d.hmu.Lock()
	defer d.hmu.Unlock()
	d.netNotify = cb
}

func (d *Device) GetHardwareAddr() (net.HardwareAddr, error) {
	mac, err := d.HardwareAddr6()
	if err != nil {
		return net.HardwareAddr{}, err
	}
	return net.HardwareAddr(mac[:]), nil
}

func (d *Device) GetIPAddr() (net.IP, error) {
	return net.IP{}, netlink.ErrNotSupported
}
