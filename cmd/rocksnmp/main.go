// Command rocksnmp is a thin wiring of the reactor, subagent engine,
// and value registry. It is explicitly not part of the core (spec.md
// §1): the storage engine this package polls is a stand-in
// (storage.StaticSource) until a host process supplies a real
// storage.Source.
package main

import (
	"flag"
	"net"
	"os"
	"time"

	"github.com/stardog-union/rocksnmp/internal/reactor"
	"github.com/stardog-union/rocksnmp/internal/rlog"
	"github.com/stardog-union/rocksnmp/internal/snmpagent"
	"github.com/stardog-union/rocksnmp/internal/snmpval"
	"github.com/stardog-union/rocksnmp/internal/storage"
)

func main() {
	masterAddr := flag.String("master", "127.0.0.1:705", "master subagent listener address")
	agentName := flag.String("name", "rocksnmp", "agent descriptive name sent in the Open packet")
	reconnect := flag.Duration("reconnect", 30*time.Second, "reconnect interval after a connection failure")
	flag.Parse()

	ip, port, err := splitHostPort(*masterAddr)
	if err != nil {
		rlog.Error("rocksnmp: invalid -master address", "err", err)
		os.Exit(1)
	}

	source := storage.NewStaticSource()
	source.SetCounter("block-cache-hits", 0)
	source.SetTick(0, 0)

	registry := snmpval.NewRegistry()
	registerCounters(registry, source)

	cfg := snmpagent.Config{
		MasterIP:          ip,
		MasterPort:        port,
		AgentPrefix:       snmpval.OID{1, 3, 6, 1, 4, 1, 38693, 5},
		AgentName:         *agentName,
		ReconnectInterval: *reconnect,
	}
	agent := snmpagent.New(cfg, registry)

	r, err := reactor.New()
	if err != nil {
		rlog.Error("rocksnmp: reactor construction failed", "err", err)
		os.Exit(1)
	}

	r.Attach(agent)
	r.RunThreaded()
	if !r.Join() {
		os.Exit(1)
	}
}

// registerCounters wires a handful of named storage counters into the
// OID registry under the agent's prefix, as live-polling values that
// re-read source on every serialize rather than a startup snapshot
// (spec.md §1 "exports live operational counters"). A real deployment
// would enumerate the storage engine's actual counters here instead.
func registerCounters(registry *snmpval.Registry, source storage.Source) {
	base := snmpval.OID{1, 3, 6, 1, 4, 1, 38693, 5, 1}
	if _, ok := source.GetNamedCounter("block-cache-hits"); ok {
		registry.Register(snmpval.NewLiveNamedCounter64(base.Append(1), source, "block-cache-hits"))
	}
	if _, ok := source.GetTick(0); ok {
		registry.Register(snmpval.NewLiveTickCounter64(base.Append(2), source, 0))
	}
}

func splitHostPort(addr string) (net.IP, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, 0, err
		}
		ip = ips[0]
	}
	var port int
	for _, c := range portStr {
		if c < '0' || c > '9' {
			return nil, 0, &net.AddrError{Err: "invalid port", Addr: addr}
		}
		port = port*10 + int(c-'0')
	}
	return ip, port, nil
}
