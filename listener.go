// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"strconv"

	"github.com/rs/zerolog/log"

	"codeberg.org/quickai/quickai/config"
)

var (
	errChmodSocket = errors.New("failed to change unix socket permissions")
	errChownSocket = errors.New("failed to change unix socket ownership")
)

// listen opens the Unix socket when one is configured, else the TCP address.
func listen(ctx context.Context, cfg *config.ServerConfig) (net.Listener, error) {
	var lc net.ListenConfig

	if path := cfg.Basic.UnixSocket; path != "" {
		l, err := lc.Listen(ctx, "unix", path)
		if err != nil {
			return nil, fmt.Errorf("failed to start Unix socket listener on %v: %w", path, err)
		}

		if err := prepareSocket(path, cfg.Basic.UnixSocketUser, cfg.Basic.UnixSocketGroup,
			cfg.Basic.UnixSocketPermissions); err != nil {
			_ = l.Close()

			return nil, err
		}

		log.Info().Str("address", path).Msg("Listening on Unix domain socket")

		return l, nil
	}

	l, err := lc.Listen(ctx, "tcp", net.JoinHostPort(cfg.Basic.Host, cfg.Basic.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to start TCP listener: %w", err)
	}

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		_ = l.Close()

		return nil, fmt.Errorf("unexpected listener address %v", l.Addr())
	}

	log.Info().
		Str("address", addr.String()).
		Int("port", addr.Port).
		Str("url", fmt.Sprintf("http://localhost:%d/", addr.Port)).
		Msg("Listening on address")

	return l, nil
}

// prepareSocket hands the socket at path to owner and group and applies perm.
// Empty owner or group leave that side unchanged.
func prepareSocket(path, owner, group string, perm os.FileMode) error {
	uid, err := lookupID(owner, user.Lookup, func(u *user.User) string { return u.Uid })
	if err != nil {
		return fmt.Errorf("%w: %w", errChownSocket, err)
	}

	gid, err := lookupID(group, user.LookupGroup, func(g *user.Group) string { return g.Gid })
	if err != nil {
		return fmt.Errorf("%w: %w", errChownSocket, err)
	}

	if uid != -1 || gid != -1 {
		if err := os.Chown(path, uid, gid); err != nil {
			return fmt.Errorf("%w: %w", errChownSocket, err)
		}
	}

	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("%w: %w", errChmodSocket, err)
	}

	return nil
}

// lookupID resolves a numeric id or a name. An empty value is -1, which
// os.Chown leaves alone.
func lookupID[T any](value string, lookup func(string) (T, error), id func(T) string) (int, error) {
	if value == "" {
		return -1, nil
	}

	if n, err := strconv.Atoi(value); err == nil {
		return n, nil
	}

	found, err := lookup(value)
	if err != nil {
		return -1, fmt.Errorf("failed to look up %q: %w", value, err)
	}

	n, err := strconv.Atoi(id(found))
	if err != nil {
		return -1, fmt.Errorf("non-numeric id for %q: %w", value, err)
	}

	return n, nil
}
