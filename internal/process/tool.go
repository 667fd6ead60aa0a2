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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// ToolCommand is a foreground command whose exit code is handed back untouched.
// ToolCommand 是一个前台命令，其退出码原样返回给调用方。
type ToolCommand struct {
	Path   string
	Args   []string
	Env    []string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// RunTool runs tc to completion. A non-zero exit is not an error; err is only
// set when the command could not be run at all.
// RunTool 运行命令直至结束。非零退出码不视为错误，只有命令无法运行时才返回 err。
func RunTool(ctx context.Context, tc ToolCommand) (int, error) {
	cmd := exec.CommandContext(ctx, tc.Path, tc.Args...)
	cmd.Env = tc.Env
	cmd.Dir = tc.Dir
	cmd.Stdin = tc.Stdin
	cmd.Stdout = tc.Stdout
	cmd.Stderr = tc.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("failed to run %s: %w", tc.Path, err)
}
