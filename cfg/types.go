// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Octal is the datatype for params such as file-mode and dir-mode which
// accept a base-8 value (e.g. "0644").
type Octal int

func (o *Octal) UnmarshalText(text []byte) error {
	v, err := strconv.ParseInt(string(text), 8, 32)
	if err != nil {
		return err
	}
	*o = Octal(v)
	return nil
}

func (o Octal) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(o), 8)), nil
}

// LogSeverity is the logging severity; one of TRACE, DEBUG, INFO, WARNING,
// ERROR, OFF.
type LogSeverity string

const (
	TraceLogSeverity   LogSeverity = "TRACE"
	DebugLogSeverity   LogSeverity = "DEBUG"
	InfoLogSeverity    LogSeverity = "INFO"
	WarningLogSeverity LogSeverity = "WARNING"
	ErrorLogSeverity   LogSeverity = "ERROR"
	OffLogSeverity     LogSeverity = "OFF"
)

var validSeverities = []string{"TRACE", "DEBUG", "INFO", "WARNING", "ERROR", "OFF"}

// severityRank orders severities from loudest (TRACE) to silent (OFF), so
// callers can ask "is this at least as severe as X" with a single
// comparison instead of a switch, matching gcsfuse's cfg.LogSeverity.Rank.
var severityRank = map[LogSeverity]int{
	TraceLogSeverity:   0,
	DebugLogSeverity:   1,
	InfoLogSeverity:    2,
	WarningLogSeverity: 3,
	ErrorLogSeverity:   4,
	OffLogSeverity:     5,
}

// Rank returns l's position in the TRACE..OFF ordering. Lower is louder.
func (l LogSeverity) Rank() int {
	return severityRank[l]
}

func (l *LogSeverity) UnmarshalText(text []byte) error {
	level := LogSeverity(strings.ToUpper(string(text)))
	if !slices.Contains(validSeverities, string(level)) {
		return fmt.Errorf("invalid log severity: %s (must be one of %v)", text, validSeverities)
	}
	*l = level
	return nil
}

// LogFormat is either "text" or "json".
type LogFormat string

const (
	TextLogFormat LogFormat = "text"
	JSONLogFormat LogFormat = "json"
)

func (f *LogFormat) UnmarshalText(text []byte) error {
	v := LogFormat(strings.ToLower(string(text)))
	if v != TextLogFormat && v != JSONLogFormat {
		return fmt.Errorf("invalid log format: %s (must be text or json)", text)
	}
	*f = v
	return nil
}

// ControlTransport selects how vector/graph control requests are
// delivered (SPEC_FULL.md §6.2): the path-overlay convention, the
// side-channel Unix socket, or both.
type ControlTransport string

const (
	ControlTransportPathOverlay ControlTransport = "path-overlay"
	ControlTransportSideChannel ControlTransport = "side-channel"
	ControlTransportBoth        ControlTransport = "both"
)

func (c *ControlTransport) UnmarshalText(text []byte) error {
	v := ControlTransport(strings.ToLower(string(text)))
	switch v {
	case ControlTransportPathOverlay, ControlTransportSideChannel, ControlTransportBoth:
		*c = v
		return nil
	default:
		return fmt.Errorf("invalid control transport: %s", text)
	}
}

// ResolvedPath is an absolute, cleaned filesystem path.
type ResolvedPath string

func (p *ResolvedPath) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		*p = ""
		return nil
	}
	abs, err := filepath.Abs(s)
	if err != nil {
		return fmt.Errorf("resolve path %q: %w", s, err)
	}
	*p = ResolvedPath(filepath.Clean(abs))
	return nil
}
