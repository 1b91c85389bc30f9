package exporter

import (
	"fmt"
	"io"

	"asphalt/pkg/asset"
	"asphalt/pkg/types"

	log "github.com/sirupsen/logrus"
)

// StoreURL 是资源在 Creator Store 上的页面
func StoreURL(id types.AssetID) string {
	return fmt.Sprintf("https://create.roblox.com/store/asset/%d", id)
}

// PrintAsset 输出一次单文件上传的结果: stdout 只有一行 (ID 或 --link 时的链接)，方便脚本使用
// 其余信息走日志
func PrintAsset(w io.Writer, a *asset.Asset, id types.AssetID, link bool) {
	log.WithFields(log.Fields{
		"name": a.DisplayName(),
		"type": a.Kind,
		"size": fmtSize(int64(len(a.Data))),
		"hash": a.Hash,
	}).Infof("Uploaded asset %d", id)

	if link {
		fmt.Fprintln(w, StoreURL(id))
		return
	}
	fmt.Fprintln(w, id)
}

func fmtSize(s int64) string {
	if s < 1024 {
		return fmt.Sprintf("%dB", s)
	} else if s < 1024*1024 {
		return fmt.Sprintf("%.1fKB", float64(s)/1024)
	}
	return fmt.Sprintf("%.2fMB", float64(s)/1024/1024)
}
