package svg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

var ErrNoFonts = errors.New("svg contains text but no usable system font was found")

// 通用族名直接落到默认字体
var genericFamilies = map[string]bool{
	"serif": true, "sans-serif": true, "monospace": true, "cursive": true, "fantasy": true, "system-ui": true,
}

// 没有匹配时按顺序尝试
var preferredFallbacks = []string{"dejavu sans", "arial", "helvetica", "liberation sans", "noto sans", "segoe ui", "go"}

// FontDB 是系统字体库，第一次用到时加载一次，之后只读
type FontDB struct {
	dirs []string

	once     sync.Once
	families map[string]*opentype.Font // 小写族名
	fallback *opentype.Font
}

// NewFontDB dirs 为空时使用平台默认的字体目录
func NewFontDB(dirs ...string) *FontDB {
	if len(dirs) == 0 {
		dirs = SystemFontDirs()
	}
	return &FontDB{dirs: dirs}
}

// SystemFontDirs 返回当前平台的字体目录
func SystemFontDirs() []string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		dirs := []string{filepath.Join(os.Getenv("WINDIR"), "Fonts")}
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			dirs = append(dirs, filepath.Join(local, "Microsoft", "Windows", "Fonts"))
		}
		return dirs
	case "darwin":
		return []string{"/System/Library/Fonts", "/Library/Fonts", filepath.Join(home, "Library", "Fonts")}
	default:
		return []string{"/usr/share/fonts", "/usr/local/share/fonts", filepath.Join(home, ".local", "share", "fonts"), filepath.Join(home, ".fonts")}
	}
}

func (db *FontDB) load() {
	db.families = make(map[string]*opentype.Font)
	var buf sfnt.Buffer
	add := func(f *opentype.Font) {
		name, err := f.Name(&buf, sfnt.NameIDFamily)
		if err != nil || name == "" {
			return
		}
		key := strings.ToLower(name)
		if _, ok := db.families[key]; !ok {
			db.families[key] = f
		}
	}

	for _, dir := range db.dirs {
		// 目录不存在很正常，跳过
		_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(p))
			if ext != ".ttf" && ext != ".otf" && ext != ".ttc" && ext != ".otc" {
				return nil
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return nil
			}
			if ext == ".ttc" || ext == ".otc" {
				coll, err := opentype.ParseCollection(data)
				if err != nil {
					log.WithField("path", p).Debug("skipping unreadable font collection")
					return nil
				}
				for i := 0; i < coll.NumFonts(); i++ {
					if f, err := coll.Font(i); err == nil {
						add(f)
					}
				}
				return nil
			}
			f, err := opentype.Parse(data)
			if err != nil {
				log.WithField("path", p).Debug("skipping unreadable font")
				return nil
			}
			add(f)
			return nil
		})
	}

	for _, name := range preferredFallbacks {
		if f, ok := db.families[name]; ok {
			db.fallback = f
			break
		}
	}
	if db.fallback == nil && len(db.families) > 0 {
		names := make([]string, 0, len(db.families))
		for name := range db.families {
			names = append(names, name)
		}
		sort.Strings(names)
		db.fallback = db.families[names[0]]
	}
	log.WithField("families", len(db.families)).Debug("loaded system fonts")
}

// Match 按 CSS font-family 列表选择字体，找不到时返回默认字体
func (db *FontDB) Match(family string) (*opentype.Font, error) {
	db.once.Do(db.load)
	for _, name := range strings.Split(family, ",") {
		name = strings.ToLower(strings.Trim(strings.TrimSpace(name), `"'`))
		if name == "" || genericFamilies[name] {
			continue
		}
		if f, ok := db.families[name]; ok {
			return f, nil
		}
	}
	if db.fallback == nil {
		return nil, ErrNoFonts
	}
	return db.fallback, nil
}
