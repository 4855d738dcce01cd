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

package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const (
	textTraceString   = `^time="\d{4}/\d{2}/\d{2} [0-9:.]{15}" severity=TRACE msg="TestLogs: www.traceExample.com"`
	textDebugString   = `^time="\d{4}/\d{2}/\d{2} [0-9:.]{15}" severity=DEBUG msg="TestLogs: www.debugExample.com"`
	textInfoString    = `^time="\d{4}/\d{2}/\d{2} [0-9:.]{15}" severity=INFO msg="TestLogs: www.infoExample.com"`
	textWarningString = `^time="\d{4}/\d{2}/\d{2} [0-9:.]{15}" severity=WARNING msg="TestLogs: www.warningExample.com"`
	textErrorString   = `^time="\d{4}/\d{2}/\d{2} [0-9:.]{15}" severity=ERROR msg="TestLogs: www.errorExample.com"`

	jsonTraceString   = `^{"time":"[^"]+","severity":"TRACE","msg":"TestLogs: www.traceExample.com"}`
	jsonDebugString   = `^{"time":"[^"]+","severity":"DEBUG","msg":"TestLogs: www.debugExample.com"}`
	jsonInfoString    = `^{"time":"[^"]+","severity":"INFO","msg":"TestLogs: www.infoExample.com"}`
	jsonWarningString = `^{"time":"[^"]+","severity":"WARNING","msg":"TestLogs: www.warningExample.com"}`
	jsonErrorString   = `^{"time":"[^"]+","severity":"ERROR","msg":"TestLogs: www.errorExample.com"}`
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func redirectLogsToGivenBuffer(buf *bytes.Buffer, format, level string) {
	defaultLoggerFactory = &loggerFactory{format: format}
	setLoggingLevel(level, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createHandler(buf, programLevel))
	// The prefix "TestLogs: " below is folded into each message by the
	// test helpers, matching the literal expected strings above.
}

func testLoggingFunctions() []func() {
	return []func(){
		func() { Tracef("TestLogs: www.traceExample.com") },
		func() { Debugf("TestLogs: www.debugExample.com") },
		func() { Infof("TestLogs: www.infoExample.com") },
		func() { Warnf("TestLogs: www.warningExample.com") },
		func() { Errorf("TestLogs: www.errorExample.com") },
	}
}

func fetchOutput(format, level string) []string {
	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, format, level)

	var output []string
	for _, f := range testLoggingFunctions() {
		f()
		output = append(output, buf.String())
		buf.Reset()
	}
	return output
}

func validateOutput(t *testing.T, expected, output []string) {
	for i := range output {
		if expected[i] == "" {
			assert.Equal(t, expected[i], output[i])
			continue
		}
		re := regexp.MustCompile(expected[i])
		assert.True(t, re.MatchString(output[i]), "line %d: %q did not match %q", i, output[i], expected[i])
	}
}

func (s *LoggerTest) TestTextFormatLogLevelOff() {
	validateOutput(s.T(), []string{"", "", "", "", ""}, fetchOutput("text", Off))
}

func (s *LoggerTest) TestTextFormatLogLevelError() {
	validateOutput(s.T(), []string{"", "", "", "", textErrorString}, fetchOutput("text", Error))
}

func (s *LoggerTest) TestTextFormatLogLevelWarning() {
	validateOutput(s.T(), []string{"", "", "", textWarningString, textErrorString}, fetchOutput("text", Warning))
}

func (s *LoggerTest) TestTextFormatLogLevelInfo() {
	validateOutput(s.T(), []string{"", "", textInfoString, textWarningString, textErrorString}, fetchOutput("text", Info))
}

func (s *LoggerTest) TestTextFormatLogLevelDebug() {
	validateOutput(s.T(), []string{"", textDebugString, textInfoString, textWarningString, textErrorString}, fetchOutput("text", Debug))
}

func (s *LoggerTest) TestTextFormatLogLevelTrace() {
	validateOutput(s.T(), []string{textTraceString, textDebugString, textInfoString, textWarningString, textErrorString}, fetchOutput("text", Trace))
}

func (s *LoggerTest) TestJSONFormatLogLevelInfo() {
	validateOutput(s.T(), []string{"", "", jsonInfoString, jsonWarningString, jsonErrorString}, fetchOutput("json", Info))
}

func (s *LoggerTest) TestJSONFormatLogLevelTrace() {
	validateOutput(s.T(), []string{jsonTraceString, jsonDebugString, jsonInfoString, jsonWarningString, jsonErrorString}, fetchOutput("json", Trace))
}

func (s *LoggerTest) TestSetLoggingLevel() {
	cases := []struct {
		in       string
		expected slog.Level
	}{
		{Trace, LevelTrace},
		{Debug, LevelDebug},
		{Info, LevelInfo},
		{Warning, LevelWarn},
		{Error, LevelError},
		{Off, LevelOff},
	}
	for _, c := range cases {
		v := new(slog.LevelVar)
		setLoggingLevel(c.in, v)
		assert.Equal(s.T(), c.expected, v.Level())
	}
}

func (s *LoggerTest) TestSetFormat() {
	Init("text", Info, nil)
	SetFormat("json")
	assert.Equal(s.T(), "json", defaultLoggerFactory.format)
}
