// Package announce advertises a running driver instance over mDNS/
// DNS-SD, so other machines on the LAN can discover it without being
// told a device name up front.
package announce

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
)

// ServiceType is the DNS-SD service type this driver announces itself
// under.
const ServiceType = "_jackio._tcp"

// Start announces name on port, returning a stop function. It runs the
// responder in a background goroutine.
func Start(name string, port int) (stop func(), err error) {
	var cfg = dnssd.Config{
		Name: name,
		Type: ServiceType,
		Port: port,
	}

	var service, svcErr = dnssd.NewService(cfg)
	if svcErr != nil {
		return nil, fmt.Errorf("announce: create service: %w", svcErr)
	}

	var responder, respErr = dnssd.NewResponder()
	if respErr != nil {
		return nil, fmt.Errorf("announce: create responder: %w", respErr)
	}

	if _, err := responder.Add(service); err != nil {
		return nil, fmt.Errorf("announce: add service: %w", err)
	}

	var ctx, cancel = context.WithCancel(context.Background())
	go func() {
		_ = responder.Respond(ctx)
	}()

	return cancel, nil
}
