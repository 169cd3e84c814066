package utils

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/xuri/excelize/v2"
)

// Contains 切片中是否存在item
func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	return Contains(df.Names(), name)
}

// WrapText 按单词把长文本折行，每行不超过width个字符(单词本身过长时除外)
func WrapText(s string, width int) string {
	words := strings.Fields(s)
	if len(words) == 0 || width <= 0 {
		return s
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len([]rune(line))+1+len([]rune(w)) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

// Sheet 工作簿中的一个工作表
type Sheet struct {
	Name string
	DF   dataframe.DataFrame
}

// SaveToExcel 将单个DataFrame保存为xlsx
func SaveToExcel(df dataframe.DataFrame, filePath string) error {
	return ExportWorkbook([]Sheet{{Name: "Sheet1", DF: df}}, filePath)
}

// ExportWorkbook 每个DataFrame写入一个工作表
func ExportWorkbook(sheets []Sheet, filePath string) error {
	if len(sheets) == 0 {
		return fmt.Errorf("没有可导出的数据")
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				return fmt.Errorf("重命名工作表失败: %w", err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return fmt.Errorf("创建工作表 %s 失败: %w", s.Name, err)
		}
		if err := writeSheet(f, s.Name, s.DF); err != nil {
			return err
		}
	}

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheetName string, df dataframe.DataFrame) error {
	// 写入列名
	colNames := df.Names()
	for i, name := range colNames {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return err
		}
	}

	// 写入数据，NaN留空
	for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
		for colIdx, colName := range colNames {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			elem := df.Col(colName).Elem(rowIdx)
			if elem.IsNA() {
				continue
			}
			val := elem.Val()
			if fv, ok := val.(float64); ok && (math.IsNaN(fv) || math.IsInf(fv, 0)) {
				continue
			}
			if err := f.SetCellValue(sheetName, cell, val); err != nil {
				return err
			}
		}
	}
	return nil
}
