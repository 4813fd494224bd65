// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		wantCmd string
		wantArg string
	}{
		{"/quit", "/quit", ""},
		{"/load sess_123", "/load", "sess_123"},
		{"/new my persona chat", "/new", "my persona chat"},
		{"/EXPORT markdown", "/export", "markdown"},
		{"  /help  ", "/help", ""},
		{"/load   sess_9  ", "/load", "sess_9"},
	}

	for _, tt := range tests {
		cmd, arg := parseCommand(tt.line)
		if cmd != tt.wantCmd || arg != tt.wantArg {
			t.Errorf("parseCommand(%q) = (%q, %q), want (%q, %q)",
				tt.line, cmd, arg, tt.wantCmd, tt.wantArg)
		}
	}
}
