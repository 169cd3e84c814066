package email

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
)

type bufLogger struct{ lines []string }

func (l *bufLogger) Infof(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}
func (l *bufLogger) Errorf(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

type fakeMailService struct {
	emails       []*Email
	connectErr   error
	searchErr    error
	subject      string
	seen         []uint32
	disconnected bool
}

func (f *fakeMailService) Connect() error { return f.connectErr }
func (f *fakeMailService) Disconnect()    { f.disconnected = true }
func (f *fakeMailService) SearchDatasets(subject string) ([]*Email, error) {
	f.subject = subject
	return f.emails, f.searchErr
}
func (f *fakeMailService) MarkSeen(uid uint32) error {
	f.seen = append(f.seen, uid)
	return nil
}

func csvAttachment(name string) []*Attachment {
	return []*Attachment{{Filename: name, Content: []byte("Year,Region\n2016,A\n")}}
}

func TestLatestDataset(t *testing.T) {
	now := time.Now()
	emails := []*Email{
		{UID: 1, Subject: "population 2015", Date: now.Add(-2 * time.Hour), Attachments: csvAttachment("a.csv")},
		{UID: 2, Subject: "population notes", Date: now},
		{UID: 3, Subject: "population 2016", Date: now.Add(-time.Hour), Attachments: csvAttachment("b.csv")},
	}
	assert.Equal(t, uint32(3), latestDataset(emails).UID)
	assert.Nil(t, latestDataset(emails[1:2]))
	assert.Nil(t, latestDataset(nil))
}

func TestSearchCriteriaFiltersBySubject(t *testing.T) {
	since := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)
	c := searchCriteria("population", since)
	assert.Equal(t, "population", c.Header.Get("Subject"))
	assert.Equal(t, since, c.Since)
	assert.Equal(t, []string{imap.SeenFlag}, c.WithoutFlags)

	assert.Empty(t, searchCriteria("", since).Header)
}

func TestCharsetReaderAndDecodeHeader(t *testing.T) {
	encoded, err := simplifiedchinese.GBK.NewEncoder().String("人口数据")
	require.NoError(t, err)

	r, err := charsetReader("GBK", strings.NewReader(encoded))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, "人口数据", buf.String())

	assert.Equal(t, "Dân số", decodeHeader("=?utf-8?q?D=C3=A2n_s=E1=BB=91?="))
	assert.Equal(t, "plain", decodeHeader("plain"))
}

func TestHandlerSavesDataAttachments(t *testing.T) {
	dir := t.TempDir()
	h := NewAttachmentHandler("population", dir)
	logger := &bufLogger{}
	mail := &Email{
		UID:     9,
		Subject: "population 2016",
		Attachments: []*Attachment{
			{Filename: "../vietnam.csv", Content: []byte("Year,Region\n2016,A\n")},
			{Filename: "notes.txt", Content: []byte("ignored")},
		},
	}

	saved, err := h.Handle(mail, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "vietnam.csv")}, saved)
	assert.FileExists(t, saved[0])
	assert.NoFileExists(t, filepath.Join(dir, "notes.txt"))
	assert.True(t, h.IsProcessed(9))

	saved, err = h.Handle(mail, logger)
	require.NoError(t, err)
	assert.Empty(t, saved)

	saved, err = h.Handle(&Email{UID: 10, Subject: "other"}, logger)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestFetch(t *testing.T) {
	dir := t.TempDir()
	svc := &fakeMailService{emails: []*Email{
		{UID: 1, Subject: "Population 2015", Date: time.Now().Add(-time.Hour), Attachments: csvAttachment("old.csv")},
		{UID: 2, Subject: "Population 2016", Date: time.Now(), Attachments: csvAttachment("new.csv")},
	}}
	logger := &bufLogger{}

	saved, err := Fetch(svc, NewAttachmentHandler("population", dir), logger)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "new.csv")}, saved)
	assert.Equal(t, "population", svc.subject)
	assert.Equal(t, []uint32{2}, svc.seen)
	assert.True(t, svc.disconnected)
}

func TestFetchNothingToDo(t *testing.T) {
	svc := &fakeMailService{}
	saved, err := Fetch(svc, NewAttachmentHandler("population", t.TempDir()), &bufLogger{})
	require.NoError(t, err)
	assert.Empty(t, saved)
	assert.Empty(t, svc.seen)

	_, err = Fetch(&fakeMailService{connectErr: errors.New("refused")}, NewAttachmentHandler("population", t.TempDir()), &bufLogger{})
	assert.ErrorContains(t, err, "连接失败")

	_, err = Fetch(&fakeMailService{searchErr: errors.New("timeout")}, NewAttachmentHandler("population", t.TempDir()), &bufLogger{})
	assert.ErrorContains(t, err, "获取邮件失败")
}

func TestParseMessage(t *testing.T) {
	raw := "From: stats@example.com\r\n" +
		"Subject: population\r\n" +
		"Date: Mon, 02 Jan 2017 15:04:05 +0700\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=XYZ\r\n\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"see attachment\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/csv\r\n" +
		"Content-Disposition: attachment; filename=\"data.csv\"\r\n\r\n" +
		"Year,Region\r\n2016,A\r\n" +
		"--XYZ\r\n" +
		"Content-Type: application/pdf\r\n" +
		"Content-Disposition: attachment; filename=\"notes.pdf\"\r\n\r\n" +
		"%PDF-1.4\r\n" +
		"--XYZ--\r\n"

	e, err := ParseMessage(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "population", e.Subject)
	assert.Equal(t, "stats@example.com", e.From)
	require.Len(t, e.Attachments, 1)
	assert.Equal(t, "data.csv", e.Attachments[0].Filename)
	assert.Contains(t, string(e.Attachments[0].Content), "2016,A")
}

func TestLoadAttachment(t *testing.T) {
	df, err := LoadAttachment(&Attachment{Filename: "a.CSV", Content: []byte("Year,Sex ratio\n2011,NA\n")}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "NA", df.Col("Sex ratio").Elem(0).String())

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Year", "Region"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{2016, "South East"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	df, err = LoadAttachment(&Attachment{Filename: "a.xlsx", Content: buf.Bytes()}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "South East", df.Col("Region").Elem(0).String())

	_, err = LoadAttachment(&Attachment{Filename: "a.pdf"}, "", "")
	assert.Error(t, err)
}

func TestBuildReport(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "summary.xlsx")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0644))

	s := SMTPSettings{Username: "bot@example.com", Subject: "report", Recipients: []string{"a@example.com"}}
	e, skipped, err := BuildReport(s, "done", []string{existing, filepath.Join(dir, "missing.png")})
	require.NoError(t, err)
	assert.Len(t, e.Attachments, 1)
	assert.Equal(t, []string{filepath.Join(dir, "missing.png")}, skipped)
	assert.Equal(t, "report", e.Subject)

	_, _, err = BuildReport(SMTPSettings{}, "done", nil)
	assert.Error(t, err)
}
