package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/wentf9/routerctl/pkg/models"
	"github.com/wentf9/routerctl/pkg/transport"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printSegments 按命令拆分 transcript 输出
func printSegments(w io.Writer, resp transport.Response) {
	res := &models.SessionResult{Output: resp.Output, Marks: resp.Marks}
	if len(res.Marks) > 0 && res.Marks[0].Offset > 0 {
		fmt.Fprintln(w, strings.TrimRight(res.Output[:res.Marks[0].Offset], "\r\n"))
	}
	for i, m := range res.Marks {
		fmt.Fprintf(w, "===== %s =====\n", m.Command)
		fmt.Fprintln(w, strings.TrimRight(res.Segment(i), "\r\n"))
	}
}
