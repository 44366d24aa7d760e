package filetables

import (
	"github.com/blang/semver/v4"

	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

var (
	// CurrentVersion 是写入新文件时使用的格式版本。
	CurrentVersion = semver.MustParse("1.1.0")

	// BuffersVersion 起文件头带有异步缓冲区表。
	BuffersVersion = semver.MustParse("1.1.0")

	supportedRange = ">=1.0.0 <2.0.0"
	supported      = semver.MustParseRange(supportedRange)
)

// CheckVersion 解析并检查文件格式版本。
func CheckVersion(version string) (semver.Version, error) {
	v, err := semver.Parse(version)
	if err != nil {
		return semver.Version{}, merr.WrapErrVersionUnsupported(version, supportedRange)
	}
	if !supported(v) {
		return semver.Version{}, merr.WrapErrVersionUnsupported(version, supportedRange)
	}
	return v, nil
}

// HasBuffers 报告该版本的文件头是否带有缓冲区表。
func HasBuffers(v semver.Version) bool {
	return v.GTE(BuffersVersion)
}
