package remote

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// ConnectionParams is everything needed to reach a host.
type ConnectionParams struct {
	Alias         string
	Host          string
	Port          int
	User          string
	IdentityFiles []string
}

// Resolver maps a host alias to connection parameters.
type Resolver interface {
	Resolve(alias string) (ConnectionParams, error)
}

// SSHConfigResolver resolves aliases through an OpenSSH client config file.
// A missing file is not an error: the alias is then used as the host name.
type SSHConfigResolver struct {
	Path string
}

// NewSSHConfigResolver returns a resolver for path, defaulting to ~/.ssh/config.
func NewSSHConfigResolver(path string) *SSHConfigResolver {
	if path == "" {
		path = filepath.Join(homeDir(), ".ssh", "config")
	}
	return &SSHConfigResolver{Path: expandHome(path)}
}

// Resolve implements Resolver.
func (r *SSHConfigResolver) Resolve(alias string) (ConnectionParams, error) {
	if alias == "" {
		return ConnectionParams{}, fmt.Errorf("%w: empty host alias", ErrConnection)
	}
	p := ConnectionParams{Alias: alias, Host: alias, Port: 22}

	cfg, err := r.load()
	if err != nil {
		return ConnectionParams{}, fmt.Errorf("%w: ssh config %s: %v", ErrConnection, r.Path, err)
	}
	if cfg != nil {
		if v, _ := cfg.Get(alias, "HostName"); v != "" {
			p.Host = v
		}
		if v, _ := cfg.Get(alias, "User"); v != "" {
			p.User = v
		}
		if v, _ := cfg.Get(alias, "Port"); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return ConnectionParams{}, fmt.Errorf("%w: invalid port %q for %s", ErrConnection, v, alias)
			}
			p.Port = port
		}
		ids, _ := cfg.GetAll(alias, "IdentityFile")
		for _, id := range ids {
			if id != "" {
				p.IdentityFiles = append(p.IdentityFiles, expandHome(id))
			}
		}
	}
	if p.User == "" {
		if u, err := user.Current(); err == nil {
			p.User = u.Username
		}
	}
	return p, nil
}

func (r *SSHConfigResolver) load() (*ssh_config.Config, error) {
	f, err := os.Open(r.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ssh_config.Decode(f)
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

func expandHome(p string) string {
	if p == "~" {
		return homeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}
