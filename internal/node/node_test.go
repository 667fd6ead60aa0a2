/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package node

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/mike-tr-adamson/ccm/internal/config"
	"github.com/mike-tr-adamson/ccm/internal/confmerge"
	"github.com/mike-tr-adamson/ccm/internal/logwatch"
	"github.com/mike-tr-adamson/ccm/internal/process"
	"github.com/stretchr/testify/require"
)

// fakeDSE stands in for the dse launch script. `dse cassandra` records its
// arguments and environment next to the bin directory, logs the CQL listener
// line and daemonises a sleeper; any other verb echoes its arguments.
const fakeDSE = `#!/bin/sh
dir="$(cd "$(dirname "$0")/.." && pwd)"
if [ "$1" = "cassandra" ]; then
  echo "$@" > "$dir/launch.args"
  env > "$dir/launch.env"
  while [ $# -gt 0 ]; do
    if [ "$1" = "-p" ]; then pidfile="$2"; fi
    shift
  done
  mkdir -p "$dir/logs"
  echo "INFO Starting listening for CQL clients on /127.0.0.1:9042" >> "$dir/logs/system.log"
  sleep 30 >/dev/null 2>&1 </dev/null &
  echo $! > "$pidfile"
  echo "INFO DSE daemon starting"
  exit 0
fi
echo "verb $*"
exit 4
`

const brokenDSE = `#!/bin/sh
echo "Error: could not find java" >&2
exit 1
`

const fakeAgent = `#!/bin/sh
dir="$(cd "$(dirname "$0")/.." && pwd)"
sleep 30 >/dev/null 2>&1 </dev/null &
echo $! > "$dir/datastax-agent.pid"
`

type fakePeer struct {
	name    string
	running bool
	watcher logwatch.Watcher
}

func (p *fakePeer) Name() string                 { return p.name }
func (p *fakePeer) IsRunning() bool              { return p.running }
func (p *fakePeer) LogWatcher() logwatch.Watcher { return p.watcher }

type fakeCluster struct {
	path      string
	authn     AuthMode
	krb5      string
	overrides confmerge.Overrides
	opsCenter bool
	peers     []Peer
}

func (c *fakeCluster) Name() string                         { return "test" }
func (c *fakeCluster) Path() string                         { return c.path }
func (c *fakeCluster) AuthMode() AuthMode                   { return c.authn }
func (c *fakeCluster) KerberosConfig() string               { return c.krb5 }
func (c *fakeCluster) ConfigOverrides() confmerge.Overrides { return c.overrides }
func (c *fakeCluster) HasOpsCenter() bool                   { return c.opsCenter }
func (c *fakeCluster) Peers(self string) []Peer             { return c.peers }

type memoryStore struct {
	saved []Config
}

func (s *memoryStore) SaveNodeConfig(cfg Config) error {
	s.saved = append(s.saved, cfg)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(_ context.Context, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) transitions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		if e.Kind == EventTransition {
			out = append(out, string(e.From)+"->"+string(e.To))
		}
	}
	return out
}

type fixture struct {
	t       *testing.T
	install string
	cluster *fakeCluster
	store   *memoryStore
	events  *eventLog
	node    *Node
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}

// freePort returns a port nothing listens on right now.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func newFixture(t *testing.T, dseScript string) *fixture {
	t.Helper()
	root := t.TempDir()
	install := filepath.Join(root, "dse-install")
	writeFile(t, filepath.Join(install, "bin", "dse"), dseScript, 0755)

	f := &fixture{
		t:       t,
		install: install,
		cluster: &fakeCluster{
			path:      root,
			authn:     AuthNone,
			krb5:      filepath.Join(root, "krb5.conf"),
			overrides: confmerge.Overrides{},
		},
		store:  &memoryStore{},
		events: &eventLog{},
	}
	f.node = f.newNode(Config{
		Name:       "node1",
		InstallDir: install,
		Path:       filepath.Join(root, "node1"),
		Interfaces: Interfaces{
			Thrift:  process.Endpoint{Role: "thrift", Host: "127.0.0.1", Port: freePort(t)},
			Storage: process.Endpoint{Role: "storage", Host: "127.0.0.1", Port: freePort(t)},
		},
		JMXPort: 7199,
	})
	require.NoError(t, os.MkdirAll(f.node.Path(), 0755))

	t.Cleanup(func() {
		for _, pidFile := range []string{f.node.PIDFile(), f.node.Agent().PIDFile()} {
			if pid := process.RunningPID(pidFile); pid > 0 {
				_ = process.SendSignal(pid, syscall.SIGKILL)
			}
		}
	})
	return f
}

func (f *fixture) newNode(cfg Config) *Node {
	return New(cfg, f.cluster,
		WithConfigStore(f.store),
		WithEventHandler(f.events.handle),
		WithTimeouts(config.NodeConfig{
			StartTimeout:      10 * time.Second,
			StopTimeout:       5 * time.Second,
			GracefulTimeout:   2 * time.Second,
			NoWaitGrace:       200 * time.Millisecond,
			BinaryProtoSettle: 10 * time.Millisecond,
			PollInterval:      20 * time.Millisecond,
		}),
	)
}

func (f *fixture) launched(name string) string {
	f.t.Helper()
	data, err := os.ReadFile(filepath.Join(f.node.Path(), name))
	require.NoError(f.t, err)
	return strings.TrimSpace(string(data))
}

func (f *fixture) spawned() bool {
	_, err := os.Stat(filepath.Join(f.node.Path(), "launch.args"))
	return err == nil
}

func envLine(environ, name string) (string, bool) {
	return process.Lookup(strings.Split(environ, "\n"), name)
}
