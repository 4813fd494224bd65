// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestWithFieldBeforeInit(t *testing.T) {
	saved := log
	log = nil
	defer func() { log = saved }()

	// Must not panic and must be chainable.
	WithField("session", "sess_1").Info("ignored")
}

func TestWithFieldAfterInit(t *testing.T) {
	var buf bytes.Buffer
	Init("debug", "text", &buf)
	defer func() { log = nil }()

	WithField("evicted", 3).Debug("sweep done")

	out := buf.String()
	if !strings.Contains(out, "evicted=3") {
		t.Errorf("output missing structured field: %q", out)
	}
	if !strings.Contains(out, "sweep done") {
		t.Errorf("output missing message: %q", out)
	}
}

func TestInitLevels(t *testing.T) {
	var buf bytes.Buffer
	Init("warn", "text", &buf)
	defer func() { log = nil }()

	Infof("hidden")
	Warnf("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warning missing: %q", out)
	}
}
