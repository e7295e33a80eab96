package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"text/template"
	"time"
)

// LocalZone is the calendar used for the date in subject lines (UTC+8).
var LocalZone = time.FixedZone("UTC+8", 8*60*60)

// subjectData is what a subject template can reference.
type subjectData struct {
	Profile string
	Date    string
	Count   int
}

// RenderSubject executes a subject template. Date is the run day in
// LocalZone formatted as YYYY-MM-DD.
func RenderSubject(tmpl, profile string, now time.Time, count int) (string, error) {
	t, err := template.New("subject").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("invalid subject template: %w", err)
	}
	var buf bytes.Buffer
	err = t.Execute(&buf, subjectData{
		Profile: profile,
		Date:    now.In(LocalZone).Format("2006-01-02"),
		Count:   count,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render subject: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// buildMessage assembles one RFC 5322 HTML message addressed to a single
// recipient. The body is base64 encoded UTF-8.
func buildMessage(from mail.Address, to, subject, html string, now time.Time) []byte {
	var msg bytes.Buffer

	msg.WriteString("From: " + from.String() + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	msg.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	msg.WriteString("Content-Transfer-Encoding: base64\r\n")
	msg.WriteString("\r\n")

	encoded := base64.StdEncoding.EncodeToString([]byte(html))
	for len(encoded) > 76 {
		msg.WriteString(encoded[:76] + "\r\n")
		encoded = encoded[76:]
	}
	msg.WriteString(encoded + "\r\n")

	return msg.Bytes()
}

// ParseRecipients splits a comma-separated list, trimming blanks.
func ParseRecipients(list string) []string {
	var out []string
	for _, addr := range strings.Split(list, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
