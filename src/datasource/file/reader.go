// reader.go
package file

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ReadOptions 读取表格的选项
type ReadOptions struct {
	SheetName string   // xlsx工作表名称，为空时取第一个
	Encoding  string   // csv文本编码
	Raw       bool     // 所有单元格按字符串读取，不做缺失值转换
	NaNValues []string // 非Raw模式下视为缺失值的字符串
}

// ReadTable 根据扩展名读取csv或xlsx为DataFrame
func ReadTable(path string, opts ReadOptions) (dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		records, err := ReadXLSXRecords(path, opts.SheetName)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		return LoadRecords(records, opts)
	default:
		f, err := os.Open(path)
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("failed to open csv file: %w", err)
		}
		defer f.Close()
		return ReadCSV(f, opts)
	}
}

// ReadRawTable 所有单元格按字符串读取，缺失值保持原样，供清洗使用
func ReadRawTable(path, sheetName, encoding string) (dataframe.DataFrame, error) {
	return ReadTable(path, ReadOptions{SheetName: sheetName, Encoding: encoding, Raw: true})
}

// ReadCSV 从reader读取csv
func ReadCSV(r io.Reader, opts ReadOptions) (dataframe.DataFrame, error) {
	dec, err := decoder(opts.Encoding)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	df := dataframe.ReadCSV(transform.NewReader(r, dec), loadOptions(opts)...)
	if df.Err != nil {
		return df, fmt.Errorf("解析csv失败: %w", df.Err)
	}
	return df, nil
}

// LoadRecords 将字符串记录(首行为标题)转换为DataFrame
func LoadRecords(records [][]string, opts ReadOptions) (dataframe.DataFrame, error) {
	if len(records) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("表格为空")
	}
	df := dataframe.LoadRecords(records, loadOptions(opts)...)
	if df.Err != nil {
		return df, fmt.Errorf("转换为dataframe失败: %w", df.Err)
	}
	return df, nil
}

func loadOptions(opts ReadOptions) []dataframe.LoadOption {
	if opts.Raw {
		return []dataframe.LoadOption{
			dataframe.DetectTypes(false),
			dataframe.DefaultType(series.String),
			dataframe.NaNValues(nil),
		}
	}
	nan := opts.NaNValues
	if len(nan) == 0 {
		nan = []string{"", "NA", "NaN", "<nil>"}
	}
	return []dataframe.LoadOption{
		dataframe.DetectTypes(true),
		dataframe.NaNValues(nan),
	}
}

// decoder 根据编码名称返回解码器，utf-8会去掉BOM
func decoder(name string) (transform.Transformer, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "utf-8", "utf8", "utf-8-sig":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "gbk", "gb2312":
		return simplifiedchinese.GBK.NewDecoder(), nil
	case "windows-1258", "cp1258":
		return charmap.Windows1258.NewDecoder(), nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("不支持的编码: %s", name)
	}
}

// ReadXLSXRecords 使用tealeg/xlsx读取工作表，第一行为标题行
func ReadXLSXRecords(filePath, sheetName string) ([][]string, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("xlsx open file false: %w", err)
	}
	return sheetRecords(xlFile, sheetName)
}

// ReadXLSXBytes 从内存中的xlsx读取记录
func ReadXLSXBytes(data []byte, sheetName string) ([][]string, error) {
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, fmt.Errorf("xlsx open binary false: %w", err)
	}
	return sheetRecords(xlFile, sheetName)
}

func sheetRecords(xlFile *xlsx.File, sheetName string) ([][]string, error) {
	if len(xlFile.Sheets) == 0 {
		return nil, fmt.Errorf("excel文件中没有工作表")
	}
	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		s, ok := xlFile.Sheet[sheetName]
		if !ok {
			return nil, fmt.Errorf("工作表 %s 不存在", sheetName)
		}
		sheet = s
	}
	return convertSheetToRecords(sheet), nil
}

// convertSheetToRecords 将xlsx.Sheet转换为字符串记录，行宽以标题行为准
func convertSheetToRecords(sheet *xlsx.Sheet) [][]string {
	if len(sheet.Rows) == 0 {
		return nil
	}

	var headers []string
	for _, cell := range sheet.Rows[0].Cells {
		headers = append(headers, cell.String())
	}

	records := make([][]string, 0, len(sheet.Rows))
	records = append(records, headers)
	for _, row := range sheet.Rows[1:] {
		if row == nil {
			continue
		}
		rec := make([]string, len(headers))
		for i, cell := range row.Cells {
			if i < len(headers) {
				rec[i] = cell.String()
			}
		}
		records = append(records, rec)
	}
	return records
}

// WriteCSV 写出DataFrame为csv(不含索引)，自动创建目录
// 浮点数按最短精确表示写出，缺失值写为空
func WriteCSV(df dataframe.DataFrame, path string) error {
	if df.Err != nil {
		return fmt.Errorf("写出csv失败: %w", df.Err)
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(csvRecords(df)); err != nil {
		return fmt.Errorf("写出csv失败: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("保存文件 %s 失败: %w", path, err)
	}
	return nil
}

// csvRecords 标题行加数据行
func csvRecords(df dataframe.DataFrame) [][]string {
	nrow, ncol := df.Dims()
	records := make([][]string, nrow+1)
	records[0] = df.Names()
	for i := 1; i <= nrow; i++ {
		records[i] = make([]string, ncol)
	}
	for j := 0; j < ncol; j++ {
		col := df.Col(records[0][j])
		for i := 0; i < nrow; i++ {
			records[i+1][j] = formatCell(col.Elem(i), col.Type())
		}
	}
	return records
}

func formatCell(e series.Element, t series.Type) string {
	if e.IsNA() {
		return ""
	}
	if t == series.Float {
		return strconv.FormatFloat(e.Float(), 'g', -1, 64)
	}
	return e.String()
}

// ensureDir 确保目录存在
func ensureDir(dirPath string) error {
	if dirPath == "" || dirPath == "." {
		return nil
	}
	if info, err := os.Stat(dirPath); err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("%s exists but is not a directory", dirPath)
	}
	return os.MkdirAll(dirPath, 0755)
}

// EnsureDir 导出的目录创建方法
func EnsureDir(dirPath string) error { return ensureDir(dirPath) }
