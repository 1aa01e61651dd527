//go:build linux

package netinfo

import (
	"fmt"
	"net/netip"

	"github.com/vishvananda/netlink"
)

func interfaces(q Query) ([]iface, error) {
	if q.Name != "" {
		link, err := netlink.LinkByName(q.Name)
		if err == nil {
			c, err := fromLink(link)
			if err != nil {
				return nil, err
			}
			if q.IP == "" {
				return []iface{c}, nil
			}
			all, err := allLinks()
			if err != nil {
				return []iface{c}, nil
			}
			return append([]iface{c}, all...), nil
		}
		if _, ok := err.(netlink.LinkNotFoundError); !ok {
			return nil, fmt.Errorf("find interface %q: %w", q.Name, err)
		}
		if q.IP == "" {
			return nil, ErrNotAvailable
		}
	}
	return allLinks()
}

func allLinks() ([]iface, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	out := make([]iface, 0, len(links))
	for _, link := range links {
		c, err := fromLink(link)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func fromLink(link netlink.Link) (iface, error) {
	attrs := link.Attrs()
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return iface{}, fmt.Errorf("list addresses on %q: %w", attrs.Name, err)
	}
	c := iface{Name: attrs.Name, MAC: attrs.HardwareAddr}
	for _, a := range addrs {
		if a.IPNet == nil {
			continue
		}
		ip, ok := netip.AddrFromSlice(a.IP)
		if !ok {
			continue
		}
		ones, _ := a.Mask.Size()
		c.Addrs = append(c.Addrs, netip.PrefixFrom(ip.Unmap(), ones))
	}
	return c, nil
}
