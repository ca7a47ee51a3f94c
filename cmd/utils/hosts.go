package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wentf9/routerctl/pkg/models"
)

// ReadTargetsCSV 读取 "address,username,password[,port[,hostname]]" 格式的设备列表, 首行为表头时跳过
func ReadTargetsCSV(path string) ([]models.RouterTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("无法打开CSV文件: %w", err)
	}
	defer f.Close()
	return ParseTargetsCSV(f)
}

func ParseTargetsCSV(r io.Reader) ([]models.RouterTarget, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var targets []models.RouterTarget
	first := true
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取CSV文件失败: %w", err)
		}
		if first {
			first = false
			if strings.Contains(strings.ToLower(rec[0]), "address") || strings.EqualFold(strings.TrimSpace(rec[0]), "ip") {
				continue
			}
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("CSV格式错误, 每行需要包含: address,username,password (第 %d 行)", len(targets)+1)
		}
		t := models.RouterTarget{
			Address:  strings.TrimSpace(rec[0]),
			Username: strings.TrimSpace(rec[1]),
			Password: strings.TrimSpace(rec[2]),
		}
		if len(rec) > 3 {
			t.Port = ParsePort(strings.TrimSpace(rec[3]))
		}
		if len(rec) > 4 {
			t.Hostname = strings.TrimSpace(rec[4])
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("CSV文件中没有找到有效的设备信息")
	}
	return targets, nil
}
