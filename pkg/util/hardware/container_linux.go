// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hardware

import (
	"github.com/cockroachdb/errors"
	"github.com/containerd/cgroups/v3"
	"github.com/containerd/cgroups/v3/cgroup1"
	statsv1 "github.com/containerd/cgroups/v3/cgroup1/stats"
	"github.com/containerd/cgroups/v3/cgroup2"
	statsv2 "github.com/containerd/cgroups/v3/cgroup2/stats"
)

func getCgroupV1Stats() (*statsv1.Metrics, error) {
	manager, err := cgroup1.Load(cgroup1.StaticPath("/"))
	if err != nil {
		return nil, err
	}
	stats, err := manager.Stat(cgroup1.IgnoreNotExist)
	if err != nil {
		return nil, err
	}
	if stats.GetMemory() == nil || stats.GetMemory().GetUsage() == nil {
		return nil, errors.New("cannot find memory usage info from cgroups v1")
	}
	return stats, nil
}

func getCgroupV2Stats() (*statsv2.Metrics, error) {
	manager, err := cgroup2.Load("/")
	if err != nil {
		return nil, err
	}
	stats, err := manager.Stat()
	if err != nil {
		return nil, err
	}
	if stats.GetMemory() == nil {
		return nil, errors.New("cannot find memory usage info from cgroups v2")
	}
	return stats, nil
}

// getContainerMemLimit 返回 cgroup 的内存限制，没有限制时返回的值大于主机内存。
func getContainerMemLimit() (uint64, error) {
	switch cgroups.Mode() {
	case cgroups.Legacy:
		stats, err := getCgroupV1Stats()
		if err != nil {
			return 0, err
		}
		return stats.GetMemory().GetUsage().GetLimit(), nil
	case cgroups.Hybrid, cgroups.Unified:
		stats, err := getCgroupV2Stats()
		if err != nil {
			return 0, err
		}
		return stats.GetMemory().GetUsageLimit(), nil
	default:
		return 0, errors.New("unknown cgroup mode")
	}
}
