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
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-objstream/pkg/log"
)

var (
	memOnce  sync.Once
	memTotal uint64
)

// GetCPUNum 返回当前进程可用的 CPU 数。
// 启用 automaxprocs 后 GOMAXPROCS 已经按容器配额设置。
func GetCPUNum() int {
	cur := runtime.GOMAXPROCS(0)
	if cur <= 0 {
		cur = runtime.NumCPU()
	}
	return cur
}

// GetMemoryCount 返回可用的内存总量（字节）。
// 运行在容器中且容器有内存限制时，返回容器限制。
func GetMemoryCount() uint64 {
	memOnce.Do(func() {
		memTotal = getHostMemory()
		limit, err := getContainerMemLimit()
		if err != nil {
			log.Debug("no container memory limit", zap.Error(err))
			return
		}
		if limit > 0 && (memTotal == 0 || limit < memTotal) {
			memTotal = limit
		}
	})
	return memTotal
}

func getHostMemory() uint64 {
	stats, err := mem.VirtualMemory()
	if err != nil {
		log.Warn("failed to get memory count", zap.Error(err))
		return 0
	}
	return stats.Total
}

// GetUsedMemoryCount 返回主机已使用的内存（字节）。
func GetUsedMemoryCount() uint64 {
	stats, err := mem.VirtualMemory()
	if err != nil {
		log.Warn("failed to get memory usage count", zap.Error(err))
		return 0
	}
	return stats.Used
}

// GetFreeMemoryCount 返回可用内存减去已使用内存，不足时为 0。
func GetFreeMemoryCount() uint64 {
	total, used := GetMemoryCount(), GetUsedMemoryCount()
	if used >= total {
		return 0
	}
	return total - used
}
