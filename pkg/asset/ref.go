package asset

import (
	"fmt"

	"asphalt/pkg/types"
)

// Ref 是同步后的资源句柄：Cloud(id) 或 Studio(url)，二选一
type Ref struct {
	Cloud  types.AssetID
	Studio string
}

func CloudRef(id types.AssetID) *Ref { return &Ref{Cloud: id} }

func StudioRef(url string) *Ref { return &Ref{Studio: url} }

// IsCloud 只有 Cloud 类型的 Ref 会进入锁文件
func (r Ref) IsCloud() bool { return r.Studio == "" }

// Value 返回写入生成代码里的字符串
func (r Ref) Value() string {
	if r.IsCloud() {
		return fmt.Sprintf("rbxassetid://%d", r.Cloud)
	}
	return r.Studio
}

func (r Ref) String() string { return r.Value() }
