package svg

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	ErrNotSVG             = errors.New("document root is not <svg>")
	ErrUnsupportedElement = errors.New("unsupported svg element")
)

const svgNS = "http://www.w3.org/2000/svg"

// oksvg 能绘制的元素，加上这里自己绘制的 text/tspan
// 其它 SVG 元素 (image, filter, mask, clipPath ...) 画不出来，直接报错而不是上传一张错误的图
var supportedElements = map[string]bool{
	"svg": true, "g": true, "line": true, "stop": true, "rect": true, "circle": true,
	"ellipse": true, "polyline": true, "polygon": true, "path": true, "desc": true,
	"defs": true, "style": true, "title": true, "linearGradient": true,
	"radialGradient": true, "use": true, "metadata": true,
	"text": true, "tspan": true,
}

// textStyle 是沿 <g>/<text>/<tspan> 继承的文字属性
type textStyle struct {
	family string
	size   float64
	fill   string
	anchor string
	// 累积的 translate，ok=false 表示祖先上有无法处理的 transform
	tx, ty      float64
	transformOK bool
}

// textRun 是一段用同一位置和样式绘制的文字
type textRun struct {
	x, y  float64
	text  string
	style textStyle
}

type frame struct {
	style textStyle
	run   int // 当前所属的 textRun，-1 表示不在文字里
	skip  bool
}

// scanText 检查元素是否都能绘制，并收集所有文字
func scanText(data []byte) ([]textRun, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false

	var runs []textRun
	root := textStyle{family: "sans-serif", size: 16, fill: "black", anchor: "start", transformOK: true}
	stack := []frame{{style: root, run: -1}}
	sawRoot := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse svg: %w", err)
		}

		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			// metadata/defs 的内容不直接绘制；其它命名空间 (inkscape, sodipodi) 是编辑器数据
			if top.skip || (t.Name.Space != "" && t.Name.Space != svgNS) {
				stack = append(stack, frame{run: -1, skip: true})
				continue
			}
			name := t.Name.Local
			if !sawRoot {
				if name != "svg" {
					return nil, ErrNotSVG
				}
				sawRoot = true
			}
			if !supportedElements[name] {
				return nil, fmt.Errorf("%w: <%s>", ErrUnsupportedElement, name)
			}

			st := top.style.inherit(t.Attr)
			next := frame{style: st, run: top.run}
			if name != "tspan" {
				next.run = -1
			}
			switch name {
			case "metadata", "defs":
				next.skip = true
			case "text":
				runs = append(runs, textRun{x: attrNumber(t.Attr, "x"), y: attrNumber(t.Attr, "y"), style: st})
				next.run = len(runs) - 1
			case "tspan":
				// 带坐标的 tspan 另起一段，否则接在父 text 后面
				if top.run >= 0 && (hasAttr(t.Attr, "x") || hasAttr(t.Attr, "y")) {
					parent := runs[top.run]
					x, y := parent.x, parent.y
					if hasAttr(t.Attr, "x") {
						x = attrNumber(t.Attr, "x")
					}
					if hasAttr(t.Attr, "y") {
						y = attrNumber(t.Attr, "y")
					}
					runs = append(runs, textRun{x: x, y: y, style: st})
					next.run = len(runs) - 1
				}
			}
			stack = append(stack, next)

		case xml.CharData:
			if top.run >= 0 && !top.skip {
				runs[top.run].text += string(t)
			}

		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if !sawRoot {
		return nil, ErrNotSVG
	}

	// 折叠空白，丢掉空的段落
	out := runs[:0]
	for _, r := range runs {
		r.text = strings.Join(strings.Fields(r.text), " ")
		if r.text == "" {
			continue
		}
		if !r.style.transformOK {
			return nil, fmt.Errorf("%w: text under a non-translate transform", ErrUnsupportedElement)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s textStyle) inherit(attrs []xml.Attr) textStyle {
	set := func(key, value string) {
		value = strings.TrimSpace(value)
		switch key {
		case "font-family":
			s.family = value
		case "font-size":
			if v := parseLength(value); v > 0 {
				s.size = v
			}
		case "fill":
			s.fill = value
		case "text-anchor":
			s.anchor = value
		}
	}
	for _, a := range attrs {
		switch a.Name.Local {
		case "style":
			for _, decl := range strings.Split(a.Value, ";") {
				if k, v, ok := strings.Cut(decl, ":"); ok {
					set(strings.TrimSpace(k), v)
				}
			}
		case "transform":
			tx, ty, ok := parseTranslate(a.Value)
			if !ok {
				s.transformOK = false
			}
			s.tx += tx
			s.ty += ty
		default:
			set(a.Name.Local, a.Value)
		}
	}
	return s
}

// parseTranslate 只接受 translate(x[,y])
func parseTranslate(v string) (x, y float64, ok bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, 0, true
	}
	args, found := strings.CutPrefix(v, "translate(")
	if !found || !strings.HasSuffix(args, ")") {
		return 0, 0, false
	}
	nums := numbers(strings.TrimSuffix(args, ")"))
	switch len(nums) {
	case 1:
		return nums[0], 0, true
	case 2:
		return nums[0], nums[1], true
	}
	return 0, 0, false
}

func numbers(s string) []float64 {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' })
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSuffix(f, "px"), 64)
		if err != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}

func hasAttr(attrs []xml.Attr, name string) bool {
	for _, a := range attrs {
		if a.Name.Local == name {
			return true
		}
	}
	return false
}

// attrNumber 取坐标列表的第一个值 (x="1 2 3" 只用 1)
func attrNumber(attrs []xml.Attr, name string) float64 {
	for _, a := range attrs {
		if a.Name.Local == name {
			if nums := numbers(a.Value); len(nums) > 0 {
				return nums[0]
			}
		}
	}
	return 0
}
