package mailtemplates

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"path"
	"strings"
	"sync"
	texttemplate "text/template"

	root "github.com/rentalhq/backoffice"
	"github.com/rentalhq/backoffice/notifications"
)

// DefaultDir is the directory of the mail templates inside the embedded
// assets.
const DefaultDir = "assets/mail"

// TemplateFile represents an email template key. Every email template should
// have a key that identifies it, which is the filename without the extension.
type TemplateFile string

var (
	mu        sync.RWMutex
	templates fs.FS
	available map[TemplateFile]string
)

// MailTemplate is a notification template. File names the HTML body, the
// placeholder holds the subject and the plain body as text templates, used
// as a fallback for email clients that do not support HTML. SMSBody is the
// text template sent when the notification goes out by SMS.
type MailTemplate struct {
	File        TemplateFile
	Placeholder notifications.Notification
	SMSBody     string
}

// Load indexes the mail templates embedded in the binary.
func Load() error {
	return LoadFS(root.Assets, DefaultDir)
}

// LoadFS indexes every .html file under dir in fsys. The key of each
// template is its filename without the extension.
func LoadFS(fsys fs.FS, dir string) error {
	files := make(map[TemplateFile]string)
	if err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".html") {
			files[TemplateFile(strings.TrimSuffix(d.Name(), ".html"))] = p
		}
		return nil
	}); err != nil {
		return fmt.Errorf("cannot load mail templates: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	templates, available = fsys, files
	return nil
}

// Available returns the loaded templates and their paths.
func Available() map[TemplateFile]string {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[TemplateFile]string, len(available))
	for k, v := range available {
		out[k] = v
	}
	return out
}

func execText(name, tmpl string, data any) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	t, err := texttemplate.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", err
	}
	buf := new(bytes.Buffer)
	if err := t.Execute(buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ExecTemplate renders the email notification: the HTML body from the
// template file, the subject and the plain body from the placeholder.
func (mt MailTemplate) ExecTemplate(data any) (*notifications.Notification, error) {
	mu.RLock()
	p, ok := available[mt.File]
	fsys := templates
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("template %s not found", mt.File)
	}
	tmpl, err := htmltemplate.New(path.Base(p)).ParseFS(fsys, p)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, data); err != nil {
		return nil, err
	}
	n, err := mt.ExecPlain(data)
	if err != nil {
		return nil, err
	}
	n.Body = buf.String()
	return n, nil
}

// ExecPlain renders only the subject and the plain body.
func (mt MailTemplate) ExecPlain(data any) (*notifications.Notification, error) {
	subject, err := execText("subject", mt.Placeholder.Subject, data)
	if err != nil {
		return nil, err
	}
	plain, err := execText("plain", mt.Placeholder.PlainBody, data)
	if err != nil {
		return nil, err
	}
	return &notifications.Notification{Subject: subject, PlainBody: plain}, nil
}

// ExecSMS renders the SMS text into the plain body.
func (mt MailTemplate) ExecSMS(data any) (*notifications.Notification, error) {
	if mt.SMSBody == "" {
		return nil, fmt.Errorf("template %s has no sms body", mt.File)
	}
	body, err := execText("sms", mt.SMSBody, data)
	if err != nil {
		return nil, err
	}
	return &notifications.Notification{PlainBody: body}, nil
}
