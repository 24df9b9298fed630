package cluster

import (
	"context"
	"fmt"
	"net"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/transport"
	"github.com/felixgeelhaar/clusterprep/internal/ports"
)

// Connector hands out connections to hosts. *transport.ConnectionPool
// implements it.
type Connector interface {
	Get(ctx context.Context, host *fleet.Host) (transport.Connection, error)
}

// HostFailure records why a host has no address.
type HostFailure struct {
	Host fleet.HostID
	Err  error
}

// Discovery is the outcome of Discover.
type Discovery struct {
	Topology *Topology
	Failures []HostFailure
}

// Discover runs the discovery command on every host, at most limit at a
// time, and returns the topology of the hosts that answered with an IP.
// Hosts that fail are logged and reported in Failures; they do not stop
// the others. Only a cancelled ctx makes Discover return an error.
func Discover(ctx context.Context, conns Connector, hosts []*fleet.Host, cfg DiscoveryConfig, limit int) (*Discovery, error) {
	cmd, err := RenderCommand(cfg.Command, DiscoveryData{Interface: cfg.Interface})
	if err != nil {
		return nil, err
	}

	logger := ports.LoggerOrNop(ctx)

	addrs := make([]*Address, len(hosts))
	failures := make([]error, len(hosts))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, host := range hosts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ip, err := discoverHost(gctx, conns, host, cmd)
			if err != nil {
				failures[i] = err
				logger.Warn(gctx, "address discovery failed",
					ports.F(ports.HostField, host.ID().String()), ports.Err(err))
				return nil
			}
			addrs[i] = &Address{Host: host.ID(), Hostname: host.SSH().Hostname, IP: ip}
			logger.Debug(gctx, "address discovered",
				ports.F(ports.HostField, host.ID().String()), ports.F("ip", ip.String()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("discovery interrupted: %w", err)
	}

	d := &Discovery{}
	entries := make([]Address, 0, len(hosts))
	for i, a := range addrs {
		if a != nil {
			entries = append(entries, *a)
			continue
		}
		d.Failures = append(d.Failures, HostFailure{Host: hosts[i].ID(), Err: failures[i]})
	}
	d.Topology = NewTopology(entries...)
	return d, nil
}

func discoverHost(ctx context.Context, conns Connector, host *fleet.Host, cmd string) (net.IP, error) {
	conn, err := conns.Get(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	res, err := conn.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return ParseAddress(string(res.Stdout))
}

// ParseAddress returns the IP on the first non-empty line of out.
func ParseAddress(out string) (net.IP, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ip := net.ParseIP(line)
		if ip == nil {
			return nil, fmt.Errorf("discovery output %q is not an IP address", line)
		}
		return ip, nil
	}
	return nil, fmt.Errorf("discovery printed nothing")
}
