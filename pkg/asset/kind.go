package asset

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownExtension = errors.New("unknown extension")

// Class 是资源的大类
type Class string

const (
	ClassDecal Class = "decal"
	ClassAudio Class = "audio"
	ClassModel Class = "model"
)

// Format 是大类下的具体格式
type Format string

const (
	FormatPng Format = "png"
	FormatJpg Format = "jpg"
	FormatBmp Format = "bmp"
	FormatTga Format = "tga"

	FormatMp3  Format = "mp3"
	FormatOgg  Format = "ogg"
	FormatFlac Format = "flac"
	FormatWav  Format = "wav"

	FormatStatic          Format = "static"
	FormatAnimationBinary Format = "animation-binary"
	FormatAnimationXML    Format = "animation-xml"
)

// Kind 是一个简单的 tagged value: 大类 + 格式
type Kind struct {
	Class  Class
	Format Format
}

func (k Kind) String() string { return string(k.Class) + "/" + string(k.Format) }

func (k Kind) IsDecal() bool { return k.Class == ClassDecal }

func (k Kind) IsAnimation() bool {
	return k.Class == ClassModel && (k.Format == FormatAnimationBinary || k.Format == FormatAnimationXML)
}

// IsModel 包括静态模型和动画
func (k Kind) IsModel() bool { return k.Class == ClassModel }

// AssetType 是上传请求里的 assetType 字段
func (k Kind) AssetType() string {
	switch {
	case k.Class == ClassDecal:
		return "Decal"
	case k.Class == ClassAudio:
		return "Audio"
	case k.IsAnimation():
		return "Animation"
	default:
		return "Model"
	}
}

// MimeType 用于 multipart 的 fileContent
func (k Kind) MimeType() string {
	switch k.Format {
	case FormatPng:
		return "image/png"
	case FormatJpg:
		return "image/jpeg"
	case FormatBmp:
		return "image/bmp"
	case FormatTga:
		return "image/tga"
	case FormatMp3:
		return "audio/mpeg"
	case FormatOgg:
		return "audio/ogg"
	case FormatFlac:
		return "audio/flac"
	case FormatWav:
		return "audio/wav"
	case FormatStatic:
		return "model/fbx"
	case FormatAnimationBinary:
		return "model/x-rbxm"
	case FormatAnimationXML:
		return "model/x-rbxmx"
	}
	return "application/octet-stream"
}

// 扩展名 -> Kind 查表
// svg 会被栅格化，所以直接归为 Decal(Png)
var extensions = map[string]Kind{
	"png":  {ClassDecal, FormatPng},
	"jpg":  {ClassDecal, FormatJpg},
	"jpeg": {ClassDecal, FormatJpg},
	"bmp":  {ClassDecal, FormatBmp},
	"tga":  {ClassDecal, FormatTga},
	"svg":  {ClassDecal, FormatPng},

	"mp3":  {ClassAudio, FormatMp3},
	"ogg":  {ClassAudio, FormatOgg},
	"flac": {ClassAudio, FormatFlac},
	"wav":  {ClassAudio, FormatWav},

	"fbx":   {ClassModel, FormatStatic},
	"rbxm":  {ClassModel, FormatAnimationBinary},
	"rbxmx": {ClassModel, FormatAnimationXML},
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// KindFromExtension 根据扩展名分类 (不区分大小写，可以带点)
func KindFromExtension(ext string) (Kind, error) {
	k, ok := extensions[normalizeExt(ext)]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %q", ErrUnknownExtension, ext)
	}
	return k, nil
}

// IsSupported 供 walker 在读文件之前过滤
func IsSupported(ext string) bool {
	_, ok := extensions[normalizeExt(ext)]
	return ok
}
