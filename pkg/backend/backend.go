// pkg/backend/backend.go
package backend

import (
	"context"
	"fmt"

	"asphalt/pkg/asset"
)

// Backend 决定一个资源同步到哪里
// 返回 nil Ref 表示这个资源不会出现在生成的代码里
type Backend interface {
	Sync(ctx context.Context, input string, a *asset.Asset) (*asset.Ref, error)
}

type Target string

const (
	TargetCloud  Target = "cloud"
	TargetStudio Target = "studio"
	TargetDebug  Target = "debug"
)

func ParseTarget(s string) (Target, error) {
	switch t := Target(s); t {
	case TargetCloud, TargetStudio, TargetDebug:
		return t, nil
	case "":
		return TargetCloud, nil
	}
	return "", fmt.Errorf("unknown target %q (want cloud, studio or debug)", s)
}

// IsLocal: studio/debug 每个资源成功后都写 lockfile
func (t Target) IsLocal() bool { return t != TargetCloud }
