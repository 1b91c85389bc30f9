package asset

import (
	"fmt"
	"path"
	"strings"

	"asphalt/pkg/core"
	"asphalt/pkg/types"
)

// Asset 是一次同步中的单个资源
// Data/Ext/Hash 在 Process 之后才是最终值
type Asset struct {
	RelPath   string // 相对 input 前缀的路径，统一使用 "/"
	SourceExt string // 原始扩展名 (小写，不带点)
	Data      []byte
	Ext       string // Data 对应的规范扩展名
	Kind      Kind
	Hash      types.Hash
}

// New 对文件分类，但不做任何转换
func New(relPath string, data []byte) (*Asset, error) {
	srcExt := normalizeExt(path.Ext(relPath))
	kind, err := KindFromExtension(srcExt)
	if err != nil {
		return nil, err
	}
	return &Asset{
		RelPath:   relPath,
		SourceExt: srcExt,
		Data:      data,
		Ext:       canonicalExt(kind),
		Kind:      kind,
	}, nil
}

// FileName 是 rel_path 的最后一段
func (a *Asset) FileName() string {
	return path.Base(a.RelPath)
}

// DisplayName 是上传时使用的名字，取文件名的最后 50 个字节
func (a *Asset) DisplayName() string {
	name := a.FileName()
	if len(name) <= maxDisplayName {
		return name
	}
	cut := len(name) - maxDisplayName
	// 不要从 UTF-8 字符中间截断
	for cut < len(name) && !isRuneStart(name[cut]) {
		cut++
	}
	return name[cut:]
}

const maxDisplayName = 50

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func (a *Asset) String() string {
	return fmt.Sprintf("%s (%s)", a.RelPath, a.Kind)
}

func (a *Asset) rehash() {
	a.Hash = core.HashBytes(a.Data)
}

func canonicalExt(k Kind) string {
	switch k.Format {
	case FormatStatic:
		return "fbx"
	case FormatAnimationBinary:
		return "rbxm"
	case FormatAnimationXML:
		return "rbxmx"
	}
	return strings.ToLower(string(k.Format))
}
