package exporter

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"asphalt/pkg/lockfile"
	"asphalt/pkg/types"
)

// Row 是 lockfile 中的一条记录
type Row struct {
	Input   string
	Hash    types.Hash
	AssetID types.AssetID
}

type Exporter struct {
	lock *lockfile.Lockfile
}

func NewExporter(lock *lockfile.Lockfile) *Exporter {
	return &Exporter{lock: lock}
}

// Rows 按 (input, hash) 排序返回记录
// input 非空时只返回该 input
func (e *Exporter) Rows(input string) []Row {
	var rows []Row
	for name, entries := range e.lock.Snapshot() {
		if input != "" && name != input {
			continue
		}
		for hash, entry := range entries {
			rows = append(rows, Row{Input: name, Hash: hash, AssetID: entry.AssetID})
		}
	}
	slices.SortFunc(rows, func(a, b Row) int {
		if a.Input != b.Input {
			if a.Input < b.Input {
				return -1
			}
			return 1
		}
		if a.Hash < b.Hash {
			return -1
		}
		if a.Hash > b.Hash {
			return 1
		}
		return 0
	})
	return rows
}

// PrintTable 以表格形式打印 lockfile
// short 为 true 时只打印 Hash 前 8 位 (像 git log --oneline)
func (e *Exporter) PrintTable(w io.Writer, input string, short bool) error {
	rows := e.Rows(input)
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No assets in lockfile")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "INPUT\tHASH\tASSET ID\n")
	for _, r := range rows {
		hash := r.Hash.String()
		if short && len(hash) > 8 {
			hash = hash[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", r.Input, hash, r.AssetID)
	}
	return tw.Flush()
}
