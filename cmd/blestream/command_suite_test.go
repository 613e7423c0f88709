package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/internal/testutils"
	"github.com/srg/blestream/pkg/stream/goble"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent mock device identification
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
)

// syncBuffer is a bytes.Buffer safe for the command's goroutines and a watching test goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite resets command flags between tests and captures command output.
// All cmd/blestream test suites embed it.
type CommandTestSuite struct {
	suite.Suite

	Stdout *syncBuffer
	Stderr *syncBuffer

	originalDial func(context.Context, string, time.Duration, *logrus.Logger) (goble.GATTClient, func(), error)
}

func (s *CommandTestSuite) SetupSuite() {
	s.originalDial = dialPeripheral
}

func (s *CommandTestSuite) TearDownSuite() {
	dialPeripheral = s.originalDial
}

// SetupTest runs before each test in the suite
func (s *CommandTestSuite) SetupTest() {
	// Reset flags before each test for proper isolation
	replaySubscribers = 1
	replayFormat = ""
	connectTimeout = 0
	connectNotify = nil
	connectIndicate = false
	connectRaw = false
	connectFormat = ""
	s.Require().NoError(rootCmd.PersistentFlags().Set("log-level", ""))
	s.Require().NoError(rootCmd.PersistentFlags().Set("config", ""))

	dialPeripheral = s.originalDial
	s.Stdout = &syncBuffer{}
	s.Stderr = &syncBuffer{}
}

// UseClient makes the connect command dial client instead of a real device
func (s *CommandTestSuite) UseClient(client *testutils.MockGATTClient) {
	dialPeripheral = func(context.Context, string, time.Duration, *logrus.Logger) (goble.GATTClient, func(), error) {
		return client, func() {}, nil
	}
}

// ExecuteCommand runs the root command with args; stdout and stderr land in s.Stdout and s.Stderr.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	rootCmd.SetOut(s.Stdout)
	rootCmd.SetErr(s.Stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return s.Stdout.String(), err
}

// WriteFile stores content in a per-test temp dir and returns its path
func (s *CommandTestSuite) WriteFile(name, content string) string {
	path := filepath.Join(s.T().TempDir(), name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600), "fixture write MUST succeed")
	return path
}

// FixturePath resolves a path relative to the project root
func (s *CommandTestSuite) FixturePath(relPath string) string {
	root, err := testutils.ProjectRoot()
	s.Require().NoError(err, "project root MUST be found")
	return filepath.Join(root, relPath)
}

// TextLines keeps the text output lines printed by source, in order
func TextLines(output, source string) string {
	prefix := "[" + source + "]"
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, prefix) {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// JSONLines keeps the JSON output records printed by source, in order
func JSONLines(output, source string) string {
	marker := `"source":"` + source + `"`
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, marker) {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
