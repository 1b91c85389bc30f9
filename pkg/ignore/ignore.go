package ignore

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName 是项目级忽略文件
const FileName = ".asphaltignore"

// 系统级默认忽略规则，始终生效
var defaultRules = []string{
	// --- 常见垃圾文件 ---
	".DS_Store", // macOS
	"Thumbs.db", // Windows

	// debug 目标的输出目录，不能再被同步回去
	".asphalt-debug",
}

// Matcher 封装了忽略逻辑
// 它负责判断一个文件是否应该被 walker 跳过
type Matcher struct {
	root    string
	ignorer *gitignore.GitIgnore
}

// NewMatcher 初始化忽略匹配器
// rootPath: 项目根目录 (用于查找 .asphaltignore)
// extra: input 自己的 ignore 规则
func NewMatcher(rootPath string, extra ...string) (*Matcher, error) {
	rules := append(append([]string{}, defaultRules...), extra...)

	var ignorer *gitignore.GitIgnore
	var err error

	ignoreFilePath := filepath.Join(rootPath, FileName)
	if _, errStat := os.Stat(ignoreFilePath); errStat == nil {
		// 文件内容和默认规则合并编译
		ignorer, err = gitignore.CompileIgnoreFileAndLines(ignoreFilePath, rules...)
	} else {
		ignorer = gitignore.CompileIgnoreLines(rules...)
	}

	if err != nil {
		return nil, err
	}

	return &Matcher{root: rootPath, ignorer: ignorer}, nil
}

// MatchesFile 把磁盘路径换算成相对项目根的路径再匹配
// 不在项目根下的路径按原样匹配
func (m *Matcher) MatchesFile(p string) bool {
	if m == nil {
		return false
	}
	if rel, err := filepath.Rel(m.root, p); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		p = rel
	}
	return m.Matches(filepath.ToSlash(p))
}

// Matches 检查给定的路径是否匹配忽略规则
// path: 使用 "/" 分隔的相对路径 (例如 "ui/icon.png")
// 返回: true 表示应该忽略
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}
