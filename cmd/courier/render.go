package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"courier/internal/ipc"
)

const (
	ansiReset = "\x1b[0m"
	ansiBlue  = "\x1b[34m"
)

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func batchRows(batches []ipc.BatchView) [][]string {
	rows := make([][]string, 0, len(batches))
	for _, batch := range batches {
		rows = append(rows, []string{
			fmt.Sprint(batch.UserID),
			batch.SourceID,
			fmt.Sprint(batch.DestChat),
			fmt.Sprintf("%d/%d", batch.Completed, batch.Total),
			fmt.Sprint(batch.Failed),
			fmt.Sprintf("%.1f%%", batch.Progress),
			formatETA(batch.ETASeconds),
			batchState(batch),
		})
	}
	return rows
}

func batchState(batch ipc.BatchView) string {
	switch {
	case batch.Cancelled:
		return "cancelling"
	case batch.Paused:
		return "paused"
	case batch.Current != nil:
		return batch.Current.Status
	default:
		return "waiting"
	}
}

func formatETA(seconds int64) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func formatTransfer(task *ipc.TaskView) string {
	if task == nil || task.Size <= 0 {
		return "-"
	}
	return fmt.Sprintf("%s / %s (%s/s)",
		humanize.Bytes(uint64(task.Transferred)),
		humanize.Bytes(uint64(task.Size)),
		humanize.Bytes(uint64(task.SpeedBps)))
}
