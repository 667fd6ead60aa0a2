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
	"fmt"
	"os"
	"path/filepath"

	"github.com/mike-tr-adamson/ccm/internal/nodeerr"
	"github.com/mike-tr-adamson/ccm/internal/process"
)

const (
	defaultMaxHeapSize = "500M"
	defaultHeapNewSize = "50M"

	// debugBasePort plus the last digit of the thrift address gives the JDWP port
	debugBasePort = 2345
)

// products that keep their conf directory under <node>/resources/<product>/conf
var confProducts = []struct {
	product string
	envVar  string
}{
	{"hadoop", "HADOOP_CONF_DIR"},
	{"hive", "HIVE_CONF_DIR"},
	{"sqoop", "SQOOP_CONF_DIR"},
	{"pig", "PIG_CONF_DIR"},
	{"mahout", "MAHOUT_CONF_DIR"},
	{"spark", "SPARK_CONF_DIR"},
	{"shark", "SHARK_CONF_DIR"},
}

// BaseEnvironment returns the variables every DSE process of this node runs
// with: install homes, per-product conf dirs inside the node and heap sizes.
// BaseEnvironment 返回该节点所有 DSE 进程使用的环境变量：安装目录、节点内各产品配置目录以及堆大小。
func (n *Node) BaseEnvironment() process.Environment {
	install := n.cfg.InstallDir
	resources := filepath.Join(n.cfg.Path, "resources")

	env := process.Environment{
		"MAX_HEAP_SIZE":   envOr("CCM_MAX_HEAP_SIZE", defaultMaxHeapSize),
		"HEAP_NEWSIZE":    envOr("CCM_HEAP_NEWSIZE", defaultHeapNewSize),
		"DSE_HOME":        install,
		"DSE_CONF":        filepath.Join(resources, "dse", "conf"),
		"CASSANDRA_HOME":  filepath.Join(install, "resources", "cassandra"),
		"CASSANDRA_CONF":  filepath.Join(resources, "cassandra", "conf"),
		"TOMCAT_HOME":     filepath.Join(resources, "tomcat"),
		"TOMCAT_CONF_DIR": filepath.Join(resources, "tomcat", "conf"),
	}
	for _, p := range confProducts {
		env[p.envVar] = filepath.Join(resources, p.product, "conf")
	}
	return env
}

// startEnvironment layers the debug and kerberos settings of a start.
func (n *Node) startEnvironment(opts StartOptions) (process.Environment, error) {
	env := n.BaseEnvironment()
	if opts.Debug {
		port, err := n.debugPort()
		if err != nil {
			return nil, err
		}
		env["JVM_EXTRA_OPTS"] = fmt.Sprintf("-Xrunjdwp:transport=dt_socket,address=%d,server=y,suspend=n", port)
	}
	if n.cluster.AuthMode() == AuthKerberos {
		krb5 := n.cluster.KerberosConfig()
		env["JVM_OPTS"] = "-Djava.security.krb5.conf=" + krb5
		env["KRB5_CONFIG"] = krb5
	}
	return env, nil
}

// kerberosEnvironment is the environment of kinit, klist and kdestroy.
func (n *Node) kerberosEnvironment() process.Environment {
	env := n.BaseEnvironment()
	env["KRB5_CONFIG"] = n.cluster.KerberosConfig()
	env["KRB5CCNAME"] = filepath.Join(n.cfg.Path, "krb5_ticket")
	return env
}

// debugPort derives the JDWP port from the last digit of the thrift address,
// so nodes on 127.0.0.1, 127.0.0.2, ... get distinct ports.
func (n *Node) debugPort() (int, error) {
	host := n.cfg.Interfaces.Thrift.Host
	if host == "" {
		return 0, nodeerr.New(nodeerr.CodePrecondition, "debug requires a thrift interface").
			WithContext("node", n.cfg.Name)
	}
	last := host[len(host)-1]
	if last < '0' || last > '9' {
		return 0, nodeerr.Newf(nodeerr.CodePrecondition, "cannot derive a debug port from thrift address %q", host).
			WithContext("node", n.cfg.Name)
	}
	return debugBasePort + int(last-'0'), nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
