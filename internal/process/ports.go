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
	"net"
	"strconv"

	"github.com/mike-tr-adamson/ccm/internal/nodeerr"
)

// Endpoint is a network interface a node binds, tagged with its role.
// Endpoint 是节点绑定的网络接口，并标注其角色。
type Endpoint struct {
	Role string `json:"role" yaml:"role"`
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// CheckAvailable tries to bind each endpoint and fails on the first one in use.
// The check is best effort: another process may grab the port right after.
// CheckAvailable 尝试绑定每个端点，遇到第一个被占用的端点即失败。该检查是尽力而为的。
func CheckAvailable(endpoints ...Endpoint) error {
	for _, ep := range endpoints {
		if ep.Port == 0 {
			continue
		}
		ln, err := net.Listen("tcp", ep.String())
		if err != nil {
			return nodeerr.Newf(nodeerr.CodePortUnavailable, "%s interface %s is not available", ep.Role, ep).
				WithContext("role", ep.Role).
				WithContext("address", ep.String()).
				WithCause(err).
				WithSuggestion("stop the process bound to this address or start with a replace address")
		}
		_ = ln.Close()
	}
	return nil
}
