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

package process

import (
	"bytes"
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/mike-tr-adamson/ccm/internal/nodeerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// startChild runs a command we reap ourselves.
func startChild(t *testing.T, name string, args ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(name, args...)
	require.NoError(t, cmd.Start())
	go func() { _ = cmd.Wait() }()
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return cmd
}

func TestIsAlive(t *testing.T) {
	assert.True(t, IsAlive(os.Getpid()))
	assert.False(t, IsAlive(0))
	assert.False(t, IsAlive(-1))
}

func TestIsAlive_ExitedChild(t *testing.T) {
	skipOnWindows(t)
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	assert.False(t, IsAlive(cmd.Process.Pid))
}

func TestReadPIDFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.pid")
	require.NoError(t, os.WriteFile(good, []byte("4242\n"), 0644))
	pid, err := ReadPIDFile(good)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	bad := filepath.Join(dir, "bad.pid")
	require.NoError(t, os.WriteFile(bad, []byte("not-a-pid"), 0644))
	_, err = ReadPIDFile(bad)
	assert.Error(t, err)

	_, err = ReadPIDFile(filepath.Join(dir, "missing.pid"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.NoError(t, RemovePIDFile(filepath.Join(dir, "missing.pid")))
	assert.NoError(t, RemovePIDFile(good))
	assert.NoFileExists(t, good)
}

func TestRunningPID(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "live.pid")
	require.NoError(t, os.WriteFile(live, []byte(strconv.Itoa(os.Getpid())), 0644))
	assert.Equal(t, os.Getpid(), RunningPID(live))
	assert.Equal(t, 0, RunningPID(filepath.Join(dir, "none.pid")))
}

func TestCheckAvailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	err = CheckAvailable(Endpoint{Role: "thrift", Host: "127.0.0.1", Port: port})
	require.Error(t, err)
	assert.ErrorIs(t, err, nodeerr.ErrPortUnavailable)
	assert.Contains(t, err.Error(), "thrift")

	free, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	freePort := free.Addr().(*net.TCPAddr).Port
	require.NoError(t, free.Close())
	assert.NoError(t, CheckAvailable(Endpoint{Role: "storage", Host: "127.0.0.1", Port: freePort}))
}

func TestTerminate_Gently(t *testing.T) {
	skipOnWindows(t)
	cmd := startChild(t, "sleep", "30")

	exited, err := Terminate(context.Background(), cmd.Process.Pid, TerminateOptions{
		Gently:       true,
		Wait:         true,
		PollInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, exited)
}

func TestTerminate_EscalatesToKill(t *testing.T) {
	skipOnWindows(t)
	// Ignored signals survive exec, so sleep ignores SIGTERM.
	cmd := startChild(t, "sh", "-c", `trap "" TERM; exec sleep 30`)
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	exited, err := Terminate(context.Background(), cmd.Process.Pid, TerminateOptions{
		Gently:          true,
		Wait:            true,
		GracefulTimeout: 200 * time.Millisecond,
		PollInterval:    20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, exited)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestTerminate_AlreadyGone(t *testing.T) {
	exited, err := Terminate(context.Background(), 0, TerminateOptions{Wait: true})
	require.NoError(t, err)
	assert.True(t, exited)
}

func TestRunTool(t *testing.T) {
	skipOnWindows(t)
	var out bytes.Buffer

	code, err := RunTool(context.Background(), ToolCommand{
		Path:   "sh",
		Args:   []string{"-c", "echo $CCM_TOOL_VAR; exit 3"},
		Env:    []string{"CCM_TOOL_VAR=hello"},
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "hello\n", out.String())

	_, err = RunTool(context.Background(), ToolCommand{Path: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("CCM_ENV_BASE", "base")
	t.Setenv("CCM_ENV_OVERRIDDEN", "old")

	env := Environment{"CCM_ENV_OVERRIDDEN": "new", "CCM_ENV_ADDED": "added"}
	environ := env.Environ()

	v, ok := Lookup(environ, "CCM_ENV_BASE")
	assert.True(t, ok)
	assert.Equal(t, "base", v)
	v, _ = Lookup(environ, "CCM_ENV_OVERRIDDEN")
	assert.Equal(t, "new", v)
	v, _ = Lookup(environ, "CCM_ENV_ADDED")
	assert.Equal(t, "added", v)
	_, ok = Lookup(environ, "CCM_ENV_NEVER_SET")
	assert.False(t, ok)
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(2)
	b.WriteLine("one")
	b.WriteLine("two\r")
	assert.Equal(t, "one\ntwo", b.String())

	b.WriteLine("three")
	assert.Equal(t, "two\nthree", b.String())
}
