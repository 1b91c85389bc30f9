package codegen

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"asphalt/pkg/config"
)

var ErrKeyCollision = errors.New("codegen key collision")

// Node 是生成代码的中间树
// 叶子节点 value 非空，表节点 children 非空
type Node struct {
	name     string
	isTable  bool
	children map[string]*Node
	value    string
}

func newTable(name string) *Node {
	return &Node{name: name, isTable: true, children: make(map[string]*Node)}
}

// BuildTree 把 rel_path -> 值 转成树
// flat: 一层，key 是完整路径; nested: 按 "/" 拆成子表
func BuildTree(entries map[string]string, style config.Style, stripExtensions bool) (*Node, error) {
	root := newTable("")

	// 按路径排序插入，冲突的报错信息是确定的
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		var parts []string
		if style == config.StyleNested {
			parts = strings.Split(p, "/")
		} else {
			parts = []string{p}
		}
		if stripExtensions {
			last := len(parts) - 1
			parts[last] = stripExt(parts[last])
		}
		if err := root.insert(parts, p, entries[p]); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// stripExt 去掉最后一个扩展名，flat 模式下只作用于文件名部分
func stripExt(s string) string {
	dir, file := path.Split(s)
	if ext := path.Ext(file); ext != "" && ext != file {
		file = strings.TrimSuffix(file, ext)
	}
	return dir + file
}

// insert 将一个路径插入到树中
// 例如 parts=["a","b","c.png"] -> 递归创建 a, b, 然后在 b 下创建 c.png
func (n *Node) insert(parts []string, relPath, value string) error {
	current := n

	// 遍历路径中的目录部分
	for _, part := range parts[:len(parts)-1] {
		child, exists := current.children[part]
		if !exists {
			child = newTable(part)
			current.children[part] = child
		}
		if !child.isTable {
			return fmt.Errorf("%w: %q is both a file and a directory", ErrKeyCollision, part)
		}
		current = child
	}

	leaf := parts[len(parts)-1]
	if existing, ok := current.children[leaf]; ok {
		if existing.isTable {
			return fmt.Errorf("%w: %q is both a file and a directory", ErrKeyCollision, leaf)
		}
		return fmt.Errorf("%w: %q maps to the same key %q as another file", ErrKeyCollision, relPath, leaf)
	}
	current.children[leaf] = &Node{name: leaf, value: value}
	return nil
}

// sortedChildren 为了保证输出的确定性，必须按 key 排序
func (n *Node) sortedChildren() []*Node {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Node, len(names))
	for i, name := range names {
		out[i] = n.children[name]
	}
	return out
}
