// email_handler.go
package email

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"PopulationAnalysis/src/datasource/file"

	"github.com/go-gota/gota/dataframe"
)

// ====================== 邮件处理器实现 ======================

// AttachmentHandler 将目标邮件中的csv/xlsx附件保存到数据目录
type AttachmentHandler struct {
	TargetSubject string          // 目标邮件主题关键词
	DataDir       string          // 附件保存目录
	processedUIDs map[uint32]bool // 已处理邮件UID记录
	mu            sync.RWMutex    // 保护processedUIDs的读写锁
}

func NewAttachmentHandler(subject, dataDir string) *AttachmentHandler {
	return &AttachmentHandler{
		TargetSubject: subject,
		DataDir:       dataDir,
		processedUIDs: make(map[uint32]bool),
	}
}

// IsProcessed 检查邮件是否已处理过（线程安全）
func (h *AttachmentHandler) IsProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

// markAsProcessed 标记邮件为已处理（线程安全）
func (h *AttachmentHandler) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// isDataFile 只处理csv和xlsx附件
func isDataFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// Handle 处理单个邮件，返回保存的附件路径
func (h *AttachmentHandler) Handle(email *Email, logger Logger) ([]string, error) {
	if email == nil || h.IsProcessed(email.UID) {
		return nil, nil
	}

	// 与IMAP SEARCH一致，不区分大小写
	if !strings.Contains(strings.ToLower(email.Subject), strings.ToLower(h.TargetSubject)) {
		logger.Infof("跳过主题不匹配的邮件: %s", email.Subject)
		return nil, nil
	}

	logger.Infof("处理邮件: %s 发件人: %s 日期: %s",
		email.Subject, email.From, email.Date.Format("2006-01-02 15:04:05"))

	if err := os.MkdirAll(h.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("创建目录失败: %v", err)
	}

	var saved []string
	for _, attachment := range email.Attachments {
		if !isDataFile(attachment.Filename) {
			continue
		}
		if _, err := LoadAttachment(attachment, "", ""); err != nil {
			logger.Errorf("附件 %s 无法解析为表格，跳过: %v", attachment.Filename, err)
			continue
		}

		// 去掉附件名中的路径部分
		filePath := filepath.Join(h.DataDir, filepath.Base(attachment.Filename))
		if err := os.WriteFile(filePath, attachment.Content, 0644); err != nil {
			return saved, fmt.Errorf("保存附件失败: %v", err)
		}

		logger.Infof("附件已保存到: %s", filePath)
		saved = append(saved, filePath)
	}

	if len(saved) > 0 {
		h.markAsProcessed(email.UID)
	}
	return saved, nil
}

// LoadAttachment 将附件内容解析为DataFrame，所有单元格按字符串读取
func LoadAttachment(att *Attachment, sheetName, encoding string) (dataframe.DataFrame, error) {
	opts := file.ReadOptions{SheetName: sheetName, Encoding: encoding, Raw: true}
	switch strings.ToLower(filepath.Ext(att.Filename)) {
	case ".xlsx":
		records, err := file.ReadXLSXBytes(att.Content, sheetName)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		return file.LoadRecords(records, opts)
	case ".csv":
		return file.ReadCSV(strings.NewReader(string(att.Content)), opts)
	}
	return dataframe.DataFrame{}, fmt.Errorf("不支持的附件类型: %s", att.Filename)
}

// Fetch 检查邮箱，保存最新数据邮件的附件并标记为已读
func Fetch(mailService MailService, handler *AttachmentHandler, logger Logger) ([]string, error) {
	startTime := time.Now()
	logger.Infof("开始检查邮箱...")

	if err := mailService.Connect(); err != nil {
		return nil, fmt.Errorf("连接失败: %w", err)
	}
	defer mailService.Disconnect()

	emails, err := mailService.SearchDatasets(handler.TargetSubject)
	if err != nil {
		return nil, fmt.Errorf("获取邮件失败: %w", err)
	}

	target := latestDataset(emails)
	if target == nil {
		logger.Infof("没有新的数据邮件")
		return nil, nil
	}
	logger.Infof("找到数据邮件: %s，耗时: %v", target.Subject, time.Since(startTime))

	saved, err := handler.Handle(target, logger)
	if err != nil {
		return saved, fmt.Errorf("处理邮件失败(UID:%d): %w", target.UID, err)
	}
	if len(saved) > 0 {
		if err := mailService.MarkSeen(target.UID); err != nil {
			logger.Errorf("标记邮件已读失败(UID:%d): %v", target.UID, err)
		}
	}
	return saved, nil
}
