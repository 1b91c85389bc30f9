// pkg/rbxm/animation.go
package rbxm

import (
	"errors"
	"fmt"
)

type Format int

const (
	FormatBinary Format = iota
	FormatXML
)

const animationClass = "KeyframeSequence"

var (
	ErrNotAnimation = errors.New("Root class name of this model is not KeyframeSequence. Asphalt expects Roblox model files (.rbxm/.rbxmx) to be animations (regular models can't be uploaded with Open Cloud). If you did not expect this error, don't include this file in this input.")
	ErrEmptyModel   = errors.New("no children found in root")
)

// ExtractAnimation 只保留模型中的第一个根实例，它必须是 KeyframeSequence
// 输出总是二进制模型，XML 输入会被转换
func ExtractAnimation(data []byte, format Format) ([]byte, error) {
	switch format {
	case FormatBinary:
		return extractBinary(data)
	case FormatXML:
		return xmlToBinary(data)
	default:
		return nil, fmt.Errorf("unknown model format %d", format)
	}
}

func extractBinary(data []byte) ([]byte, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}

	roots := doc.Roots()
	if len(roots) == 0 {
		return nil, ErrEmptyModel
	}
	first := roots[0]
	if first.Class.Name != animationClass {
		return nil, ErrNotAnimation
	}
	// 只有一个根时原样返回
	if len(roots) == 1 {
		return data, nil
	}

	sub, err := doc.Subtree(first.Ref)
	if err != nil {
		return nil, err
	}
	return sub.Encode()
}
