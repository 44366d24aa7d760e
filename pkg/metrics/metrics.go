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

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// objstreamNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	objstreamNamespace = "objstream"

	streamSubsystem = "stream"
	saveSubsystem   = "save"
	loadSubsystem   = "load"

	// 以下为当前使用的通用标签名。
	LayoutLabelName = "layout"
	ReasonLabelName = "reason"

	LayoutProtected   = "protected"
	LayoutUnprotected = "unprotected"
)

var (
	// longTaskBuckets 为长耗时任务的桶划分，单位为毫秒。
	longTaskBuckets = []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 20000, 50000, 100000, 250000} // 单位：毫秒

	// sizeBuckets 为数据大小的桶划分，单位为字节。
	sizeBuckets = []float64{1000, 10000, 100000, 1000000, 10000000, 100000000, 500000000, 1024000000, 4096000000} // 单位：字节

	StreamOpcodesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: objstreamNamespace,
			Subsystem: streamSubsystem,
			Name:      "opcodes_written_total",
			Help:      "number of opcodes binarized into final byte streams",
		})

	StreamCorruptions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: objstreamNamespace,
			Subsystem: streamSubsystem,
			Name:      "corruptions_total",
			Help:      "number of opcode streams that failed to allocate a page",
		})

	SkipBlocksDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: objstreamNamespace,
			Subsystem: streamSubsystem,
			Name:      "skip_blocks_discarded_total",
			Help:      "number of skip blocks discarded while reading",
		})

	SavedObjects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: objstreamNamespace,
			Subsystem: saveSubsystem,
			Name:      "objects_total",
			Help:      "number of objects written to files",
		}, []string{LayoutLabelName})

	SavedBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: objstreamNamespace,
			Subsystem: saveSubsystem,
			Name:      "file_bytes",
			Help:      "size of saved files",
			Buckets:   sizeBuckets,
		}, []string{LayoutLabelName})

	SaveLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: objstreamNamespace,
			Subsystem: saveSubsystem,
			Name:      "latency_ms",
			Help:      "latency of saving a file",
			Buckets:   longTaskBuckets,
		}, []string{LayoutLabelName})

	SaveFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: objstreamNamespace,
			Subsystem: saveSubsystem,
			Name:      "failures_total",
			Help:      "number of failed saves",
		}, []string{ReasonLabelName})

	LostPointers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: objstreamNamespace,
			Subsystem: saveSubsystem,
			Name:      "lost_pointers_total",
			Help:      "number of pointers to objects outside the saved hierarchy",
		})

	LoadedObjects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: objstreamNamespace,
			Subsystem: loadSubsystem,
			Name:      "objects_total",
			Help:      "number of objects created while loading files",
		}, []string{LayoutLabelName})

	LoadLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: objstreamNamespace,
			Subsystem: loadSubsystem,
			Name:      "latency_ms",
			Help:      "latency of loading a file",
			Buckets:   longTaskBuckets,
		}, []string{LayoutLabelName})

	ChecksumFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: objstreamNamespace,
			Subsystem: loadSubsystem,
			Name:      "checksum_failures_total",
			Help:      "number of objects whose checksum did not match",
		})

	ImportFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: objstreamNamespace,
			Subsystem: loadSubsystem,
			Name:      "import_failures_total",
			Help:      "number of imports that could not be loaded",
		})

	metricRegisterer prometheus.Registerer
	registerOnce     sync.Once
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标，重复调用只有第一次生效。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(StreamOpcodesWritten)
		r.MustRegister(StreamCorruptions)
		r.MustRegister(SkipBlocksDiscarded)
		r.MustRegister(SavedObjects)
		r.MustRegister(SavedBytes)
		r.MustRegister(SaveLatency)
		r.MustRegister(SaveFailures)
		r.MustRegister(LostPointers)
		r.MustRegister(LoadedObjects)
		r.MustRegister(LoadLatency)
		r.MustRegister(ChecksumFailures)
		r.MustRegister(ImportFailures)
		metricRegisterer = r
	})
}

// Layout 返回布局标签值。
func Layout(protected bool) string {
	if protected {
		return LayoutProtected
	}
	return LayoutUnprotected
}
