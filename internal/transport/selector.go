package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/vishvananda/netlink"

	"github.com/8inary/infra/internal/inventory"
)

// AddressLister returns the IP addresses configured on this host.
type AddressLister func() ([]net.IP, error)

// RemoteFactory opens a remote transport to m.
type RemoteFactory func(m inventory.Machine) (Transport, error)

// Selector chooses and caches one transport per machine. The local address
// set is read once; later interface changes do not affect earlier choices.
type Selector struct {
	listAddrs AddressLister
	newRemote RemoteFactory
	newLocal  func() Transport

	addrsOnce sync.Once
	localIPs  map[string]struct{}
	addrsErr  error

	mu     sync.Mutex
	chosen map[string]Transport
}

// NewSelector creates a selector. A nil lister uses HostAddresses.
func NewSelector(lister AddressLister, remote RemoteFactory) *Selector {
	if lister == nil {
		lister = HostAddresses
	}
	return &Selector{
		listAddrs: lister,
		newRemote: remote,
		newLocal:  func() Transport { return NewLocal() },
		chosen:    make(map[string]Transport),
	}
}

// IsLocal reports whether address belongs to this host.
func (s *Selector) IsLocal(address string) (bool, error) {
	s.addrsOnce.Do(func() {
		ips, err := s.listAddrs()
		if err != nil {
			s.addrsErr = fmt.Errorf("failed to list local addresses: %w", err)
			return
		}
		s.localIPs = make(map[string]struct{}, len(ips))
		for _, ip := range ips {
			s.localIPs[ip.String()] = struct{}{}
		}
	})
	if s.addrsErr != nil {
		return false, s.addrsErr
	}

	ip := net.ParseIP(address)
	if ip == nil {
		resolved, err := net.LookupIP(address)
		if err != nil {
			return false, fmt.Errorf("failed to resolve %s: %w", address, err)
		}
		for _, r := range resolved {
			if _, ok := s.localIPs[r.String()]; ok {
				return true, nil
			}
		}
		return false, nil
	}
	_, ok := s.localIPs[ip.String()]
	return ok, nil
}

// For returns the transport for m, opening it on first request.
func (s *Selector) For(m inventory.Machine) (Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.chosen[m.ID]; ok {
		return t, nil
	}

	local, err := s.IsLocal(m.Address)
	if err != nil {
		return nil, err
	}

	var t Transport
	if local {
		t = s.newLocal()
	} else {
		if s.newRemote == nil {
			return nil, fmt.Errorf("no remote transport configured for %s", m)
		}
		t, err = s.newRemote(m)
		if err != nil {
			return nil, fmt.Errorf("failed to open transport to %s: %w", m, err)
		}
	}
	s.chosen[m.ID] = t
	return t, nil
}

// Close closes every transport handed out.
func (s *Selector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for id, t := range s.chosen {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.chosen, id)
	}
	return errors.Join(errs...)
}

// HostAddresses lists addresses through netlink and falls back to the
// net package where netlink is unavailable.
func HostAddresses() ([]net.IP, error) {
	addrs, err := netlink.AddrList(nil, netlink.FAMILY_ALL)
	if err == nil {
		ips := make([]net.IP, 0, len(addrs))
		for _, a := range addrs {
			if a.IPNet != nil {
				ips = append(ips, a.IP)
			}
		}
		return ips, nil
	}

	ifAddrs, ifErr := net.InterfaceAddrs()
	if ifErr != nil {
		return nil, errors.Join(err, ifErr)
	}
	ips := make([]net.IP, 0, len(ifAddrs))
	for _, a := range ifAddrs {
		if ipNet, ok := a.(*net.IPNet); ok {
			ips = append(ips, ipNet.IP)
		}
	}
	return ips, nil
}
