package codegen

import (
	"strings"
)

type Language int

const (
	Luau Language = iota
	TypeScript
)

// Extension 是生成文件的后缀
func (l Language) Extension() string {
	if l == TypeScript {
		return ".d.ts"
	}
	return ".luau"
}

// Render 生成完整的模块代码
// Luau:       local <name> = {...}\n\nreturn <name>
// TypeScript: declare const <name>: {...}\n\nexport = <name>
func Render(lang Language, name string, root *Node) string {
	var b strings.Builder
	if lang == TypeScript {
		b.WriteString("declare const " + name + ": ")
		writeTS(&b, root, 0)
		b.WriteString("\n\nexport = " + name)
	} else {
		b.WriteString("local " + name + " = ")
		writeLuau(&b, root, 0)
		b.WriteString("\n\nreturn " + name)
	}
	return b.String()
}

func writeLuau(b *strings.Builder, n *Node, indent int) {
	if !n.isTable {
		b.WriteString(quote(n.value))
		return
	}
	b.WriteString("{\n")
	for _, child := range n.sortedChildren() {
		b.WriteString(strings.Repeat("\t", indent+1))
		if isIdentifier(child.name, false) {
			b.WriteString(child.name)
		} else {
			b.WriteString("[" + quote(child.name) + "]")
		}
		b.WriteString(" = ")
		writeLuau(b, child, indent+1)
		b.WriteString(",\n")
	}
	b.WriteString(strings.Repeat("\t", indent) + "}")
}

// TypeScript 只输出类型，叶子全部是 string
func writeTS(b *strings.Builder, n *Node, indent int) {
	if !n.isTable {
		b.WriteString("string")
		return
	}
	b.WriteString("{\n")
	for _, child := range n.sortedChildren() {
		b.WriteString(strings.Repeat("\t", indent+1))
		if isIdentifier(child.name, true) {
			b.WriteString(child.name)
		} else {
			b.WriteString(quote(child.name))
		}
		b.WriteString(": ")
		writeTS(b, child, indent+1)
		b.WriteString("\n")
	}
	b.WriteString(strings.Repeat("\t", indent) + "}")
}

// isIdentifier: [A-Za-z_][A-Za-z0-9_]*，TypeScript 额外允许 $
func isIdentifier(s string, allowDollar bool) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c == '$' && allowDollar:
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)

func quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}
