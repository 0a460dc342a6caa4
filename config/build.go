// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"runtime/debug"
	"strings"
)

// BuildVersion is the latest tagged release of the server.
const BuildVersion string = "v0.4.0"

// buildInfo is the VCS stamp the Go toolchain embeds in the binary.
type buildInfo struct {
	revision string
	date     string
	dirty    bool
}

// Revision renders the stamp as "2025-06-01-1a2b3c4d", with "+dirty" when
// the tree had local changes, or "unknown" for unstamped builds.
func (b buildInfo) Revision() string {
	if b.revision == "" {
		return "unknown"
	}

	var sb strings.Builder

	sb.WriteString(b.date)
	sb.WriteByte('-')
	sb.WriteString(b.revision[:min(len(b.revision), 8)])

	if b.dirty {
		sb.WriteString("+dirty")
	}

	return sb.String()
}

func (b *buildInfo) load() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	*b = stampFrom(info.Settings)
}

func stampFrom(settings []debug.BuildSetting) buildInfo {
	values := make(map[string]string, len(settings))
	for _, s := range settings {
		values[s.Key] = s.Value
	}

	date, _, _ := strings.Cut(values["vcs.time"], "T")

	return buildInfo{
		revision: values["vcs.revision"],
		date:     date,
		dirty:    values["vcs.modified"] == "true",
	}
}
