// client.go
package email

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

const (
	DefaultFolder      = "INBOX"
	DefaultLookback    = 24 * time.Hour // 只查找这段时间内收到的邮件
	MaxDatasetMessages = 20             // 单次最多下载的邮件数量
)

func init() {
	// 附件名和主题中的GBK/越南语编码交给go-message统一解码
	message.CharsetReader = charsetReader
}

// MailService 数据邮箱
type MailService interface {
	Connect() error
	Disconnect()
	// SearchDatasets 返回主题包含subject、带csv/xlsx附件的未读邮件
	SearchDatasets(subject string) ([]*Email, error)
	// MarkSeen 附件保存成功后标记为已读
	MarkSeen(uid uint32) error
}

// Logger 邮件流程使用的日志接口
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// Email 一封数据邮件，只保留csv/xlsx附件
type Email struct {
	UID         uint32
	Date        time.Time
	From        string
	Subject     string
	Attachments []*Attachment
}

// Attachment 数据附件
type Attachment struct {
	Filename string
	Content  []byte
}

/******************** IMAP邮箱 ********************/

// Mailbox 通过IMAP读取统计数据邮件
type Mailbox struct {
	Server   string // 含端口，如 "imap.example.com:993"
	Username string
	Password string
	Folder   string
	Lookback time.Duration

	mu sync.Mutex
	c  *client.Client
}

// NewMailbox 创建邮箱，文件夹和时间范围取默认值
func NewMailbox(server, username, password string) *Mailbox {
	return &Mailbox{
		Server:   server,
		Username: username,
		Password: password,
		Folder:   DefaultFolder,
		Lookback: DefaultLookback,
	}
}

// Connect 建立TLS连接并登录，已有可用连接时直接返回
func (m *Mailbox) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.c != nil {
		if err := m.c.Noop(); err == nil {
			return nil
		}
		m.c.Logout()
		m.c = nil
	}

	c, err := client.DialTLS(m.Server, nil)
	if err != nil {
		return fmt.Errorf("连接服务器失败: %w", err)
	}
	if err := c.Login(m.Username, m.Password); err != nil {
		c.Logout()
		return fmt.Errorf("登录失败: %w", err)
	}
	m.c = c
	return nil
}

// Disconnect 退出登录
func (m *Mailbox) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c != nil {
		m.c.Logout()
		m.c = nil
	}
}

// searchCriteria 未读、Lookback内、主题包含subject
func searchCriteria(subject string, since time.Time) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = since
	if subject != "" {
		criteria.Header.Add("Subject", subject)
	}
	return criteria
}

// SearchDatasets 由服务器按主题筛选，下载正文时不改变已读状态
func (m *Mailbox) SearchDatasets(subject string) ([]*Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.c == nil {
		return nil, fmt.Errorf("未连接到邮件服务器")
	}
	if _, err := m.c.Select(m.Folder, false); err != nil {
		return nil, fmt.Errorf("选择邮箱 %s 失败: %w", m.Folder, err)
	}

	uids, err := m.c.UidSearch(searchCriteria(subject, time.Now().Add(-m.Lookback)))
	if err != nil {
		return nil, fmt.Errorf("搜索邮件失败: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	// UID递增，保留最新的几封
	if len(uids) > MaxDatasetMessages {
		uids = uids[len(uids)-MaxDatasetMessages:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(seqset, items, messages)
	}()

	var emails []*Email
	var parseErrs []string
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			parseErrs = append(parseErrs, fmt.Sprintf("UID %d: 正文为空", msg.Uid))
			continue
		}
		e, err := ParseMessage(r)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Sprintf("UID %d: %v", msg.Uid, err))
			continue
		}
		e.UID = msg.Uid
		if e.Date.IsZero() {
			e.Date = msg.InternalDate
		}
		emails = append(emails, e)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("获取邮件内容失败: %w", err)
	}
	if len(emails) == 0 && len(parseErrs) > 0 {
		return nil, fmt.Errorf("解析邮件失败: %s", strings.Join(parseErrs, "; "))
	}
	return emails, nil
}

// MarkSeen 给邮件加上\Seen标记
func (m *Mailbox) MarkSeen(uid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.c == nil {
		return fmt.Errorf("未连接到邮件服务器")
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	return m.c.UidStore(seqset, item, []any{imap.SeenFlag}, nil)
}

/******************** 邮件解析 ********************/

// ParseMessage 解析主题、发件人和csv/xlsx附件，其他附件丢弃
func ParseMessage(r io.Reader) (*Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("创建邮件阅读器失败: %w", err)
	}

	header := mr.Header
	e := &Email{}
	e.Date, _ = header.Date()
	if e.Subject, err = header.Subject(); err != nil {
		e.Subject = decodeHeader(header.Get("Subject"))
	}
	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		e.From = from[0].Address
	} else {
		e.From = decodeHeader(header.Get("From"))
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return e, fmt.Errorf("读取邮件内容失败: %w", err)
		}

		h, ok := p.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		name, err := h.Filename()
		if err != nil || !isDataFile(name) {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, p.Body); err != nil {
			return e, fmt.Errorf("读取附件 %s 失败: %w", name, err)
		}
		e.Attachments = append(e.Attachments, &Attachment{Filename: name, Content: buf.Bytes()})
	}
	return e, nil
}

// decodeHeader 解码 =?charset?encoding?text?= 格式，失败时原样返回
func decodeHeader(header string) string {
	decoder := mime.WordDecoder{CharsetReader: charsetReader}
	decoded, err := decoder.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

// charsetReader GBK/GB2312与windows-1258转UTF-8
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "gbk", "gb2312":
		return transform.NewReader(input, simplifiedchinese.GBK.NewDecoder()), nil
	case "windows-1258", "cp1258":
		return transform.NewReader(input, charmap.Windows1258.NewDecoder()), nil
	default:
		return input, nil
	}
}

// latestDataset 带附件的邮件中最新的一封
func latestDataset(emails []*Email) *Email {
	var candidates []*Email
	for _, e := range emails {
		if len(e.Attachments) > 0 {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Date.After(candidates[j].Date)
	})
	return candidates[0]
}
