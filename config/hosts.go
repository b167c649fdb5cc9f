package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"relaynode.dev/node/identity"
)

// Host is one parsed known-hosts entry.
type Host struct {
	IP   string
	Port uint16
	ID   identity.PublicKey
}

// fallbackHosts seeds bootstrap when the known-hosts file is absent or
// empty (spec §6). These are placeholder testnet seeds, not reachable
// production addresses.
var fallbackHosts = []Host{
	{IP: "127.0.0.1", Port: 31111},
}

// LoadHosts parses a whitespace-separated "ip:port base58_id" file.
// Malformed lines are skipped with a warning; an absent or empty file
// falls back to fallbackHosts.
func LoadHosts(path string, log logrus.FieldLogger) []Host {
	if log == nil {
		log = logrus.StandardLogger()
	}

	f, err := os.Open(path)
	if err != nil {
		log.WithError(err).Info("known-hosts file unavailable, using fallback bootstrap")
		return fallbackHosts
	}
	defer f.Close()

	var hosts []Host
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			log.WithField("line", line).Warn("malformed known-hosts line, skipping")
			continue
		}
		host, err := parseHostLine(fields[0], fields[1])
		if err != nil {
			log.WithField("line", line).WithError(err).Warn("malformed known-hosts line, skipping")
			continue
		}
		hosts = append(hosts, host)
	}

	if len(hosts) == 0 {
		log.Info("known-hosts file empty, using fallback bootstrap")
		return fallbackHosts
	}
	return hosts
}

func parseHostLine(addr, id string) (Host, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return Host{}, strconv.ErrSyntax
	}
	ip, portStr := addr[:idx], addr[idx+1:]
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Host{}, err
	}
	pubkey, err := identity.Parse(id)
	if err != nil {
		return Host{}, err
	}
	return Host{IP: ip, Port: uint16(port), ID: pubkey}, nil
}
