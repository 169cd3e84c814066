package email

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"os"

	"github.com/jordan-wright/email"
)

// SMTPSettings 报告邮件的发送配置
type SMTPSettings struct {
	Server     string
	Username   string
	Password   string
	Subject    string
	Recipients []string
}

// BuildReport 组装报告邮件，不存在的附件跳过
func BuildReport(s SMTPSettings, body string, attachments []string) (*email.Email, []string, error) {
	if len(s.Recipients) == 0 {
		return nil, nil, fmt.Errorf("没有配置收件人")
	}

	e := email.NewEmail()
	e.From = fmt.Sprintf("Population Report <%s>", s.Username)
	e.To = s.Recipients
	e.Subject = s.Subject
	e.Text = []byte(body)

	var skipped []string
	for _, path := range attachments {
		if _, err := os.Stat(path); err != nil {
			skipped = append(skipped, path)
			continue
		}
		if _, err := e.AttachFile(path); err != nil {
			return nil, skipped, fmt.Errorf("附件添加失败: %w", err)
		}
	}
	return e, skipped, nil
}

// SendReport 通过SMTP(SSL)发送报告邮件
func SendReport(s SMTPSettings, body string, attachments []string, logger Logger) error {
	e, skipped, err := BuildReport(s, body, attachments)
	if err != nil {
		return err
	}
	for _, p := range skipped {
		logger.Errorf("附件文件不存在: %s", p)
	}

	// 确保服务器地址包含端口
	smtpAddr := s.Server
	host, _, err := net.SplitHostPort(smtpAddr)
	if err != nil {
		host = smtpAddr
		smtpAddr = net.JoinHostPort(smtpAddr, "465") // 默认 SSL 端口
	}

	err = e.SendWithTLS(
		smtpAddr,
		smtp.PlainAuth("", s.Username, s.Password, host),
		&tls.Config{ServerName: host},
	)
	if err != nil {
		return fmt.Errorf("邮件发送失败: %w (Server: %s)", err, smtpAddr)
	}
	logger.Infof("报告邮件已发送给 %v", s.Recipients)
	return nil
}
